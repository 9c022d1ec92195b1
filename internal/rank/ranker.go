// Package rank merges the detectors' raw output into a single ordered,
// de-conflicted opportunity list. The pipeline is threshold filter, per-market
// conflict resolution, composite scoring, stable descending sort; identical
// input always yields identical output.
package rank

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

const (
	typeWeight = 0.30
	evWeight   = 0.40
	confWeight = 0.30

	arbitrageBonus = 20
	boostPerSignal = 5
	maxBoost       = 15
	boostedConfCap = 98
)

// Ranker scores and orders opportunities. Stateless apart from config.
type Ranker struct {
	cfg    config.RankerConfig
	logger *slog.Logger
}

func New(cfg config.RankerConfig, logger *slog.Logger) *Ranker {
	return &Ranker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ranker")),
	}
}

// Rank runs the full pipeline over the detectors' combined output. The input
// slice is not mutated; opportunities in the result carry their final
// Confidence and RankScore.
func (r *Ranker) Rank(opps []domain.Opportunity) []domain.Opportunity {
	passed := r.filter(opps)
	resolved := r.resolveConflicts(passed)

	for i := range resolved {
		resolved[i].RankScore = score(resolved[i])
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].RankScore > resolved[j].RankScore
	})

	if len(opps) > 0 {
		r.logger.Debug("ranking complete",
			slog.Int("raw", len(opps)),
			slog.Int("ranked", len(resolved)),
		)
	}
	return resolved
}

// filter drops sub-threshold opportunities. Arbitrage types always pass:
// their risk is bounded by construction, not by confidence.
func (r *Ranker) filter(opps []domain.Opportunity) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.IsArbitrage() {
			out = append(out, o)
			continue
		}
		if o.Confidence < r.cfg.MinConfidence || o.ExpectedProfitPct < r.cfg.MinProfitPct {
			continue
		}
		out = append(out, o)
	}
	return out
}

// resolveConflicts reduces each market's signals to a single opportunity.
// Opposing directions keep only the most confident signal; agreeing signals
// keep the best expected value with a confidence boost for the confirmation.
// Group iteration follows first appearance in the input, which is detector
// registration order, so the reduction is deterministic.
func (r *Ranker) resolveConflicts(opps []domain.Opportunity) []domain.Opportunity {
	groups := make(map[string][]domain.Opportunity)
	var order []string
	for _, o := range opps {
		if _, seen := groups[o.MarketID]; !seen {
			order = append(order, o.MarketID)
		}
		groups[o.MarketID] = append(groups[o.MarketID], o)
	}

	out := make([]domain.Opportunity, 0, len(order))
	for _, id := range order {
		group := groups[id]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		if hasOpposingDirections(group) {
			out = append(out, mostConfident(group))
		} else {
			out = append(out, r.mergeAgreeing(group))
		}
	}
	return out
}

func hasOpposingDirections(group []domain.Opportunity) bool {
	var yes, no bool
	for _, o := range group {
		yes = yes || o.Action.YesFlavored()
		no = no || o.Action.NoFlavored()
	}
	return yes && no
}

// mostConfident picks the winner of an opposing-direction group: highest
// confidence, then highest expected profit, then input order.
func mostConfident(group []domain.Opportunity) domain.Opportunity {
	best := group[0]
	for _, o := range group[1:] {
		if o.Confidence > best.Confidence ||
			(o.Confidence == best.Confidence && o.ExpectedProfitPct > best.ExpectedProfitPct) {
			best = o
		}
	}
	return best
}

// mergeAgreeing keeps the same-direction signal with the highest expected
// value (confidence × profit) and boosts its confidence by 5 points per extra
// confirming signal, at most 15, never past 98. The agreeing detectors are
// recorded in extra.confirmedBy.
func (r *Ranker) mergeAgreeing(group []domain.Opportunity) domain.Opportunity {
	best := group[0]
	bestEV := best.Confidence * best.ExpectedProfitPct
	for _, o := range group[1:] {
		if ev := o.Confidence * o.ExpectedProfitPct; ev > bestEV {
			best, bestEV = o, ev
		}
	}

	boost := float64(min((len(group)-1)*boostPerSignal, maxBoost))
	boosted := best.Confidence + boost
	if boosted > boostedConfCap {
		boosted = boostedConfCap
	}
	// A signal already above the cap keeps its own confidence.
	if boosted > best.Confidence {
		best.Confidence = boosted
	}

	names := make([]string, 0, len(group))
	for _, o := range group {
		names = append(names, o.DetectorName)
	}
	extra := make(map[string]string, len(best.Extra)+2)
	for k, v := range best.Extra {
		extra[k] = v
	}
	extra["confirmedBy"] = strings.Join(names, ",")
	extra["signalCount"] = fmt.Sprintf("%d", len(group))
	best.Extra = extra

	return best
}

// score computes the composite rank score from normalized type priority,
// expected value, and confidence, with a flat bonus for arbitrage types.
func score(o domain.Opportunity) float64 {
	typeNorm := float64(o.TypePriorityValue()) / 100
	evNorm := clamp((o.ExpectedValue()+100)/200, 0, 1)
	confNorm := o.Confidence / 100

	s := 100 * (typeWeight*typeNorm + evWeight*evNorm + confWeight*confNorm)
	if o.IsArbitrage() {
		s += arbitrageBonus
	}
	return clamp(s, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
