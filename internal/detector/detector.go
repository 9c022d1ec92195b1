// Package detector implements the opportunity detectors: independent,
// stateless analyzers that each encode one inequality or pattern test
// against a market batch. Detectors are pure with respect to their inputs
// and treat missing or zero fields as "no signal", never as an error.
package detector

import (
	"github.com/quantfold/polyscout/internal/domain"
)

// Detector is the contract every strategy implements. Detect must not mutate
// its inputs, must not panic on malformed data, and may return an empty
// slice.
type Detector interface {
	Name() string
	Detect(markets []domain.Market, dctx domain.DetectionContext) []domain.Opportunity
}

// tradeable filters the batch down to markets whose prices carry signal.
// Shared by all detectors; individual detectors layer their own filters on
// top.
func tradeable(markets []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.Valid() && m.Tradeable() {
			out = append(out, m)
		}
	}
	return out
}

// efficientlyPriced reports whether a price sits in the boundary noise band
// where resolution-style detectors should not fire: the market has already
// converged.
func efficientlyPriced(price float64) bool {
	return price < 0.01 || price > 0.99
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
