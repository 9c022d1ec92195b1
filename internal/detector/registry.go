package detector

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantfold/polyscout/internal/config"
)

// Factory builds a detector from the detector configuration section.
type Factory func(cfg config.DetectorConfig) (Detector, error)

// Registry maps a detector name to its factory. Registration order is
// preserved: it is the stable tie-break used by the ranker and the order
// detectors run in. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name. Re-registering a name
// replaces the factory but keeps its original position in the order.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("detector %q: not registered", name)
	}
	return f, nil
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// CreateAll instantiates the detectors listed in cfg.Enabled, in registration
// order. A name absent from the registry is simply not run, and an error
// constructing one detector does not abort the others; both are logged and
// skipped.
func (r *Registry) CreateAll(cfg config.DetectorConfig, logger *slog.Logger) []Detector {
	enabled := make(map[string]bool, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		enabled[name] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	detectors := make([]Detector, 0, len(cfg.Enabled))
	for _, name := range r.order {
		if !enabled[name] {
			continue
		}
		d, err := r.factories[name](cfg)
		if err != nil {
			logger.Error("detector construction failed, skipping",
				slog.String("detector", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		detectors = append(detectors, d)
	}
	return detectors
}

// DefaultRegistry returns a registry with the compile-time detector set.
// There is no dynamic loading: the list below is the whole universe.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("arbitrage", func(cfg config.DetectorConfig) (Detector, error) {
		return NewArbitrage(cfg.Arbitrage), nil
	})
	r.Register("time_decay", func(cfg config.DetectorConfig) (Detector, error) {
		return NewTimeDecay(cfg.TimeDecay), nil
	})
	r.Register("resolution", func(cfg config.DetectorConfig) (Detector, error) {
		return NewResolution(cfg.Resolution), nil
	})
	r.Register("whale", func(cfg config.DetectorConfig) (Detector, error) {
		return NewWhale(cfg.Whale), nil
	})
	r.Register("momentum", func(cfg config.DetectorConfig) (Detector, error) {
		return NewMomentum(cfg.Momentum), nil
	})
	r.Register("mispricing", func(cfg config.DetectorConfig) (Detector, error) {
		return NewMispricing(cfg.Mispricing), nil
	})
	r.Register("correlation", func(cfg config.DetectorConfig) (Detector, error) {
		return NewCorrelation(cfg.Correlation), nil
	})
	return r
}
