package detector

import (
	"regexp"
	"strings"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// deadlineKeywords marks "X before Y" style questions whose YES price bleeds
// toward zero as the deadline approaches without the event occurring.
var deadlineKeywords = []string{
	"before", "by", "prior to", "until", "by end of", "by the end", "within",
}

// improbablePatterns are questions whose YES outcome is essentially
// impossible. The first five carry the highest confidence.
var improbablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`alien`),
	regexp.MustCompile(`ufo`),
	regexp.MustCompile(`asteroid.*hit`),
	regexp.MustCompile(`apocalypse`),
	regexp.MustCompile(`world.*end`),
	regexp.MustCompile(`zombie`),
	regexp.MustCompile(`vampire`),
	regexp.MustCompile(`unicorn`),
	regexp.MustCompile(`moon.*explode`),
	regexp.MustCompile(`sun.*explode`),
	regexp.MustCompile(`teleport`),
	regexp.MustCompile(`time.*travel`),
	regexp.MustCompile(`immortal`),
}

// TimeDecay exploits theta: deadline markets whose YES price decays daily,
// and improbable events near expiry whose NO is cheap carry.
type TimeDecay struct {
	cfg config.TimeDecayDetectorConfig
	now func() time.Time
}

func NewTimeDecay(cfg config.TimeDecayDetectorConfig) *TimeDecay {
	return &TimeDecay{cfg: cfg, now: time.Now}
}

func (d *TimeDecay) Name() string { return "time_decay" }

func (d *TimeDecay) Detect(markets []domain.Market, _ domain.DetectionContext) []domain.Opportunity {
	live := tradeable(markets)
	var opps []domain.Opportunity
	opps = append(opps, d.deadlineApproaching(live)...)
	opps = append(opps, d.improbableExpiring(live)...)
	return opps
}

// deadlineApproaching buys NO on deadline-shaped questions where the daily
// theta (yes/daysLeft) clears the configured floor. High YES means the event
// will likely happen; very low YES leaves nothing to collect.
func (d *TimeDecay) deadlineApproaching(markets []domain.Market) []domain.Opportunity {
	now := d.now()
	var opps []domain.Opportunity
	for _, m := range markets {
		daysLeft, ok := m.DaysToResolution(now)
		if !ok || daysLeft <= 0 || daysLeft > d.cfg.MaxDaysDeadline {
			continue
		}
		if !isDeadlineQuestion(m.Question) {
			continue
		}
		if m.YesPrice > 0.70 || m.YesPrice < 0.05 {
			continue
		}

		theta := m.YesPrice / max(daysLeft, 0.5)
		if theta < d.cfg.MinDailyTheta {
			continue
		}

		var confidence float64
		switch {
		case daysLeft <= 2:
			confidence = 85
		case daysLeft <= 5:
			confidence = 75
		case daysLeft <= 10:
			confidence = 65
		default:
			confidence = 55
		}

		dtr := daysLeft
		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeTimeDecay,
			Action:            domain.ActionBuyNo,
			DetectorName:      d.Name(),
			ExpectedProfitPct: m.YesPrice * 100, // max profit if NO resolves
			Confidence:        confidence,
			MarketID:          m.ID,
			MarketQuestion:    m.Question,
			YesPrice:          m.YesPrice,
			NoPrice:           m.NoPrice,
			DaysToResolution:  &dtr,
			Extra: map[string]string{
				"daily_theta": fmtFloat(theta),
				"days_left":   fmtDays(daysLeft),
			},
			DetectedAt: now,
		})
	}
	return opps
}

// improbableExpiring buys NO on near-impossible questions expiring within 30
// days. A YES under 0.05 counts as improbable even without a pattern hit.
func (d *TimeDecay) improbableExpiring(markets []domain.Market) []domain.Opportunity {
	now := d.now()
	var opps []domain.Opportunity
	for _, m := range markets {
		daysLeft, ok := m.DaysToResolution(now)
		if !ok || daysLeft <= 0 || daysLeft > 30 {
			continue
		}
		if m.YesPrice > d.cfg.MaxYesPriceImprobable {
			continue
		}

		q := strings.ToLower(m.Question)
		patternHit := matchesAny(q, improbablePatterns)
		if !patternHit && m.YesPrice >= 0.05 {
			continue
		}

		var confidence float64
		switch {
		case matchesAny(q, improbablePatterns[:5]):
			confidence = 95
		case m.YesPrice < 0.03:
			confidence = 90
		default:
			confidence = 80
		}

		dtr := daysLeft
		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeImprobableExpiring,
			Action:            domain.ActionBuyNo,
			DetectorName:      d.Name(),
			ExpectedProfitPct: m.YesPrice * 100,
			Confidence:        confidence,
			MarketID:          m.ID,
			MarketQuestion:    m.Question,
			YesPrice:          m.YesPrice,
			NoPrice:           m.NoPrice,
			DaysToResolution:  &dtr,
			Extra: map[string]string{
				"days_left":    fmtDays(daysLeft),
				"daily_return": fmtFloat(m.YesPrice / max(daysLeft, 0.5)),
			},
			DetectedAt: now,
		})
	}
	return opps
}

func isDeadlineQuestion(q string) bool {
	q = strings.ToLower(q)
	for _, kw := range deadlineKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func matchesAny(q string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
