package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/polyscout/internal/domain"
)

// Runner fans a market batch out to every detector on a bounded worker pool
// and joins the results in detector order, so a run over the same input is
// deterministic regardless of scheduling. A panicking or failing detector is
// recorded and skipped; the remaining detectors' output still flows through.
type Runner struct {
	detectors []Detector
	poolSize  int
	logger    *slog.Logger

	mu    sync.Mutex
	stats map[string]*domain.DetectorStats
	now   func() time.Time
}

func NewRunner(detectors []Detector, poolSize int, logger *slog.Logger) *Runner {
	if poolSize <= 0 {
		poolSize = 1
	}
	stats := make(map[string]*domain.DetectorStats, len(detectors))
	for _, d := range detectors {
		stats[d.Name()] = &domain.DetectorStats{Name: d.Name()}
	}
	return &Runner{
		detectors: detectors,
		poolSize:  poolSize,
		logger:    logger.With(slog.String("component", "detector_runner")),
		stats:     stats,
		now:       time.Now,
	}
}

// Run executes every detector against the batch and returns the concatenated
// opportunities in detector order. It never returns a detector error: a
// failed detector contributes nothing this cycle.
func (r *Runner) Run(ctx context.Context, markets []domain.Market, dctx domain.DetectionContext) []domain.Opportunity {
	results := make([][]domain.Opportunity, len(r.detectors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.poolSize)
	for i, d := range r.detectors {
		i, d := i, d
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}
			results[i] = r.runOne(d, markets, dctx)
			return nil
		})
	}
	_ = g.Wait()

	var joined []domain.Opportunity
	for _, opps := range results {
		joined = append(joined, opps...)
	}
	return joined
}

// runOne invokes a single detector, converting a panic into a recorded error.
func (r *Runner) runOne(d Detector, markets []domain.Market, dctx domain.DetectionContext) (opps []domain.Opportunity) {
	started := r.now()
	defer func() {
		if p := recover(); p != nil {
			opps = nil
			r.recordScan(d.Name(), 0, fmt.Errorf("detector %s: panic: %v", d.Name(), p))
		}
	}()

	opps = d.Detect(markets, dctx)
	r.recordScan(d.Name(), len(opps), nil)

	r.logger.Debug("detector scan complete",
		slog.String("detector", d.Name()),
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", r.now().Sub(started)),
	)
	return opps
}

func (r *Runner) recordScan(name string, found int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.stats[name]
	if st == nil {
		st = &domain.DetectorStats{Name: name}
		r.stats[name] = st
	}
	st.TotalScans++
	st.OpportunitiesFound += int64(found)
	scanned := r.now()
	st.LastScan = &scanned
	if err != nil {
		st.Errors++
		r.logger.Error("detector failed", slog.String("detector", name), slog.String("error", err.Error()))
	}
}

// Stats returns a snapshot of per-detector counters, in detector order.
func (r *Runner) Stats() []domain.DetectorStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DetectorStats, 0, len(r.detectors))
	for _, d := range r.detectors {
		if st := r.stats[d.Name()]; st != nil {
			out = append(out, *st)
		}
	}
	return out
}
