package detector

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// correlationPair links two question patterns that should move together,
// with the correlation strength the price relation assumes.
type correlationPair struct {
	anchor  *regexp.Regexp
	derived *regexp.Regexp
	corr    float64
}

var correlationPairs = []correlationPair{
	{regexp.MustCompile(`trump.*win`), regexp.MustCompile(`republican.*win`), 0.95},
	{regexp.MustCompile(`bitcoin.*100k`), regexp.MustCompile(`crypto.*bull`), 0.80},
	{regexp.MustCompile(`fed.*raise.*rate`), regexp.MustCompile(`inflation.*high`), 0.70},
	{regexp.MustCompile(`shutdown`), regexp.MustCompile(`government.*fund`), 0.85},
	{regexp.MustCompile(`harris.*win`), regexp.MustCompile(`democrat.*win`), 0.95},
	{regexp.MustCompile(`recession`), regexp.MustCompile(`stock.*crash`), 0.75},
}

// Correlation trades divergence between market pairs a known relation binds:
// given the anchor's price, the derived market's fair price is
// anchor*corr + (1-corr)*0.5, and a gap beyond the threshold should converge.
type Correlation struct {
	cfg config.CorrelationDetectorConfig
	now func() time.Time
}

func NewCorrelation(cfg config.CorrelationDetectorConfig) *Correlation {
	return &Correlation{cfg: cfg, now: time.Now}
}

func (d *Correlation) Name() string { return "correlation" }

func (d *Correlation) Detect(markets []domain.Market, _ domain.DetectionContext) []domain.Opportunity {
	live := tradeable(markets)

	now := d.now()
	var opps []domain.Opportunity
	for _, pair := range correlationPairs {
		anchors := matchingMarkets(pair.anchor, live)
		derived := matchingMarkets(pair.derived, live)
		if len(anchors) == 0 || len(derived) == 0 {
			continue
		}

		for _, a := range anchors {
			for _, m := range derived {
				if a.ID == m.ID {
					continue
				}
				expected := a.YesPrice*pair.corr + (1-pair.corr)*0.5
				divergence := math.Abs(m.YesPrice - expected)
				if divergence < d.cfg.MinDivergence {
					continue
				}

				action := domain.ActionBuyYes
				if m.YesPrice >= expected {
					action = domain.ActionBuyNo
				}
				opps = append(opps, domain.Opportunity{
					Type:              domain.TypeCorrelationDivergence,
					Action:            action,
					DetectorName:      d.Name(),
					ExpectedProfitPct: divergence * 50, // partial convergence
					Confidence:        65,
					MarketID:          m.ID,
					MarketQuestion:    m.Question,
					YesPrice:          m.YesPrice,
					NoPrice:           m.NoPrice,
					Extra: map[string]string{
						"anchor_market":  a.ID,
						"anchor_price":   fmtFloat(a.YesPrice),
						"expected_price": fmtFloat(expected),
						"divergence":     fmtFloat(divergence),
						"correlation":    fmtFloat(pair.corr),
					},
					DetectedAt: now,
				})
			}
		}
	}
	return opps
}

func matchingMarkets(pattern *regexp.Regexp, markets []domain.Market) []domain.Market {
	var out []domain.Market
	for _, m := range markets {
		if pattern.MatchString(strings.ToLower(m.Question)) {
			out = append(out, m)
		}
	}
	return out
}
