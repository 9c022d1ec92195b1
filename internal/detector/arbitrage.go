package detector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// Arbitrage runs the three bounded-risk checks: YES/NO mismatch inside a
// single market, multi-outcome price-sum arbitrage across an event, and
// cross-venue spread capture. It is the highest-priority detector family.
type Arbitrage struct {
	cfg config.ArbitrageDetectorConfig
	now func() time.Time
}

func NewArbitrage(cfg config.ArbitrageDetectorConfig) *Arbitrage {
	return &Arbitrage{cfg: cfg, now: time.Now}
}

func (d *Arbitrage) Name() string { return "arbitrage" }

func (d *Arbitrage) Detect(markets []domain.Market, dctx domain.DetectionContext) []domain.Opportunity {
	live := tradeable(markets)

	var opps []domain.Opportunity
	opps = append(opps, d.yesNoMismatch(live)...)
	opps = append(opps, d.multiOutcome(dctx.Events)...)
	opps = append(opps, d.crossPlatform(live, dctx.CrossVenueMarkets)...)
	return opps
}

// yesNoMismatch fires when YES+NO sums below 1 by more than the configured
// mismatch: buying both sides locks in the gap at resolution. Sums above 1
// would require selling, which the engine does not do.
func (d *Arbitrage) yesNoMismatch(markets []domain.Market) []domain.Opportunity {
	var opps []domain.Opportunity
	for _, m := range markets {
		sum := m.PriceSum()
		if sum >= 1-d.cfg.MinYesNoMismatch {
			continue
		}
		profit := (1 - sum) * 100
		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeYesNoMismatch,
			Action:            domain.ActionBuyBoth,
			DetectorName:      d.Name(),
			ExpectedProfitPct: profit,
			Confidence:        99,
			MarketID:          m.ID,
			MarketQuestion:    m.Question,
			YesPrice:          m.YesPrice,
			NoPrice:           m.NoPrice,
			Extra: map[string]string{
				"price_sum": fmtFloat(sum),
			},
			DetectedAt: d.now(),
		})
	}
	return opps
}

// multiOutcome fires when the YES prices of an event's outcomes sum away from
// 1 by more than fees plus the configured profit floor. Sum above 1 means buy
// NO on every outcome; below 1, buy YES on every outcome. Fees are charged
// per leg, entry and exit.
func (d *Arbitrage) multiOutcome(events []domain.Event) []domain.Opportunity {
	var opps []domain.Opportunity
	for _, ev := range events {
		legs := make([]domain.OpportunityLeg, 0, len(ev.Markets))
		liquidity := 0.0
		sum := 0.0
		for _, m := range ev.Markets {
			if !m.Valid() || m.YesPrice <= 0 || m.YesPrice >= 1 {
				continue
			}
			legs = append(legs, domain.OpportunityLeg{
				MarketID: m.ID,
				Question: m.Question,
				YesPrice: m.YesPrice,
			})
			liquidity += m.Liquidity
			sum += m.YesPrice
		}
		if len(legs) < d.cfg.MinOutcomes || liquidity < d.cfg.MinEventLiquidity {
			continue
		}

		totalFeesPct := d.cfg.FeePerLegPct * float64(len(legs)) * 2
		margin := d.cfg.MinMultiOutcomeProfitPct/100 + totalFeesPct/100

		var action domain.Action
		var grossPct float64
		switch {
		case sum > 1+margin:
			action, grossPct = domain.ActionBuyAllNo, (sum-1)*100
		case sum < 1-margin:
			action, grossPct = domain.ActionBuyAllYes, (1-sum)*100
		default:
			continue
		}
		netPct := grossPct - totalFeesPct
		if netPct <= d.cfg.MinMultiOutcomeProfitPct {
			continue
		}

		n := float64(len(legs))
		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeMultiOutcomeArb,
			Action:            action,
			DetectorName:      d.Name(),
			ExpectedProfitPct: netPct,
			Confidence:        95, // execution risk across legs, never 99
			MarketID:          ev.ID,
			MarketQuestion:    ev.Title,
			YesPrice:          sum / n,
			NoPrice:           (n - sum) / n,
			Legs:              legs,
			Extra: map[string]string{
				"yes_price_sum": fmtFloat(sum),
				"outcome_count": strconv.Itoa(len(legs)),
				"gross_profit":  fmtFloat(grossPct),
				"fees_pct":      fmtFloat(totalFeesPct),
			},
			DetectedAt: d.now(),
		})
	}
	return opps
}

// crossPlatform fires when a home market trades cheaper than its textual
// match on the other venue by more than the configured spread. Only the
// cheaper-at-home direction is actionable since orders execute on the home
// venue alone.
func (d *Arbitrage) crossPlatform(markets, other []domain.Market) []domain.Opportunity {
	if len(other) == 0 {
		return nil
	}
	var opps []domain.Opportunity
	for _, m := range markets {
		match, score := bestTextMatch(m.Question, other)
		if score <= 0.5 {
			continue
		}
		spread := match.YesPrice - m.YesPrice
		if spread < d.cfg.MinCrossPlatformSpread {
			continue
		}
		opps = append(opps, domain.Opportunity{
			Type:              domain.TypeCrossPlatformArb,
			Action:            domain.ActionBuyYes,
			DetectorName:      d.Name(),
			ExpectedProfitPct: spread * 100,
			Confidence:        85, // requires price convergence
			MarketID:          m.ID,
			MarketQuestion:    m.Question,
			YesPrice:          m.YesPrice,
			NoPrice:           m.NoPrice,
			Extra: map[string]string{
				"other_venue_market": match.ID,
				"other_venue_price":  fmtFloat(match.YesPrice),
				"spread":             fmtFloat(spread),
				"match_score":        fmtFloat(score),
			},
			DetectedAt: d.now(),
		})
	}
	return opps
}

// bestTextMatch finds the candidate whose question best matches q, scoring
// 60% token-sequence similarity and 40% keyword overlap. Returns the best
// candidate and its combined score.
func bestTextMatch(q string, candidates []domain.Market) (domain.Market, float64) {
	qNorm := normalizeQuestion(q)
	qKeys := questionKeywords(q)

	var best domain.Market
	bestScore := 0.0
	for _, c := range candidates {
		textScore := tokenSimilarity(qNorm, normalizeQuestion(c.Question))

		keyScore := 0.0
		cKeys := questionKeywords(c.Question)
		if len(qKeys) > 0 && len(cKeys) > 0 {
			common := 0
			for k := range qKeys {
				if cKeys[k] {
					common++
				}
			}
			keyScore = float64(common) / float64(len(qKeys))
		}

		combined := textScore*0.6 + keyScore*0.4
		if combined > bestScore {
			bestScore = combined
			best = c
		}
	}
	return best, bestScore
}

var questionStopWords = map[string]bool{
	"will": true, "there": true, "be": true, "the": true, "a": true,
	"an": true, "at": true, "in": true, "on": true, "of": true,
	"for": true, "by": true, "is": true, "are": true, "was": true,
	"were": true, "to": true, "that": true, "and": true, "with": true,
	"before": true, "after": true,
}

func normalizeQuestion(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, f)
		if f != "" && !questionStopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func questionKeywords(q string) map[string]bool {
	keys := make(map[string]bool)
	for _, w := range normalizeQuestion(q) {
		if len(w) >= 3 {
			keys[w] = true
		}
	}
	return keys
}

// tokenSimilarity is the Dice coefficient over token multisets: cheap and
// order-insensitive, good enough for short market questions.
func tokenSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	counts := make(map[string]int, len(a))
	for _, w := range a {
		counts[w]++
	}
	common := 0
	for _, w := range b {
		if counts[w] > 0 {
			counts[w]--
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtDays(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
