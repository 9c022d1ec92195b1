package detector

import (
	"regexp"
	"strings"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// certainOutcome pairs a question pattern with the probability the pattern
// implies. Scheduled events (championships happen) sit near 1; physical
// impossibilities sit near 0.
type certainOutcome struct {
	pattern *regexp.Regexp
	prob    float64
}

var certainYesPatterns = []certainOutcome{
	{regexp.MustCompile(`super\s*bowl.*202[4-9]`), 0.99},
	{regexp.MustCompile(`nba\s*finals`), 0.99},
	{regexp.MustCompile(`world\s*series`), 0.99},
	{regexp.MustCompile(`sun.*rise`), 0.9999},
	{regexp.MustCompile(`earth.*rotate`), 0.9999},
}

var certainNoPatterns = []certainOutcome{
	{regexp.MustCompile(`alien.*contact.*202[4-6]`), 0.01},
	{regexp.MustCompile(`world.*end`), 0.001},
	{regexp.MustCompile(`asteroid.*hit.*earth`), 0.01},
	{regexp.MustCompile(`human.*mars.*202[4-5]`), 0.01},
}

// Resolution finds markets whose outcome is effectively known but whose price
// has not converged: pattern-certain questions trading away from their
// implied probability.
type Resolution struct {
	cfg config.ResolutionDetectorConfig
	now func() time.Time
}

func NewResolution(cfg config.ResolutionDetectorConfig) *Resolution {
	return &Resolution{cfg: cfg, now: time.Now}
}

func (d *Resolution) Name() string { return "resolution" }

func (d *Resolution) Detect(markets []domain.Market, _ domain.DetectionContext) []domain.Opportunity {
	now := d.now()
	var opps []domain.Opportunity
	for _, m := range tradeable(markets) {
		if efficientlyPriced(m.YesPrice) {
			continue
		}

		// End date in the past but still trading at a decided-looking price:
		// the event happened and the market has not settled yet. Follow the
		// price's lean; mid prices stay ambiguous and are skipped.
		if daysLeft, ok := m.DaysToResolution(now); ok && daysLeft <= 0 {
			if m.YesPrice >= 0.80 && m.YesPrice < 0.95 {
				opps = append(opps, d.resolved(m, domain.ActionBuyYes, (1-m.YesPrice)*100, now))
			} else if m.YesPrice <= 0.20 && m.NoPrice < 0.95 {
				opps = append(opps, d.resolved(m, domain.ActionBuyNo, (1-m.NoPrice)*100, now))
			}
			continue
		}

		q := strings.ToLower(m.Question)

		if co, ok := firstCertainMatch(q, certainYesPatterns); ok {
			// Certain YES trading below implied probability, margin applied.
			if m.YesPrice < co.prob-d.cfg.PriceMargin {
				opps = append(opps, d.opportunity(m, domain.ActionBuyYes,
					(co.prob-m.YesPrice)*100, co.prob*100, co.prob, now))
			}
			continue
		}
		if co, ok := firstCertainMatch(q, certainNoPatterns); ok {
			if m.YesPrice > co.prob+d.cfg.PriceMargin {
				opps = append(opps, d.opportunity(m, domain.ActionBuyNo,
					(m.YesPrice-co.prob)*100, (1-co.prob)*100, co.prob, now))
			}
		}
	}
	return opps
}

func (d *Resolution) opportunity(m domain.Market, action domain.Action, profitPct, confidence, impliedProb float64, now time.Time) domain.Opportunity {
	return domain.Opportunity{
		Type:              domain.TypeNearCertain,
		Action:            action,
		DetectorName:      d.Name(),
		ExpectedProfitPct: profitPct,
		Confidence:        clamp(confidence, 0, 100),
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"implied_probability": fmtFloat(impliedProb),
		},
		DetectedAt: now,
	}
}

func (d *Resolution) resolved(m domain.Market, action domain.Action, profitPct float64, now time.Time) domain.Opportunity {
	return domain.Opportunity{
		Type:              domain.TypeAlreadyResolved,
		Action:            action,
		DetectorName:      d.Name(),
		ExpectedProfitPct: profitPct,
		Confidence:        92,
		MarketID:          m.ID,
		MarketQuestion:    m.Question,
		YesPrice:          m.YesPrice,
		NoPrice:           m.NoPrice,
		Extra: map[string]string{
			"past_end_date": "true",
		},
		DetectedAt: now,
	}
}

func firstCertainMatch(q string, patterns []certainOutcome) (certainOutcome, bool) {
	for _, co := range patterns {
		if co.pattern.MatchString(q) {
			return co, true
		}
	}
	return certainOutcome{}, false
}
