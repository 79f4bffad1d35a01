package ml

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry caches loaded model bundles keyed by filesystem path and
// memoizes the per-bundle explainer and anomaly monitor. It is
// constructed once at startup and passed by reference to handlers; the
// cache only ever grows (one path per process in practice).
//
// The lock is held across the whole load so concurrent first requests
// for an unseen path perform a single read instead of racing.
type Registry struct {
	mu               sync.Mutex
	bundles          map[string]*Bundle
	explainers       map[string]*Explainer
	monitors         map[string]*AnomalyMonitor
	anomalyThreshold float64
	metrics          MetricsInterface
}

func NewRegistry(anomalyThreshold float64, metrics MetricsInterface) *Registry {
	return &Registry{
		bundles:          make(map[string]*Bundle),
		explainers:       make(map[string]*Explainer),
		monitors:         make(map[string]*AnomalyMonitor),
		anomalyThreshold: anomalyThreshold,
		metrics:          metrics,
	}
}

// GetBundle returns the bundle for a path, loading and caching it on
// first reference. A missing file is not an error: callers get nil and
// surface NotReady themselves. A present-but-invalid artifact is an
// error and is not cached, so a repaired file can be picked up later.
func (r *Registry) GetBundle(path string) (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bundles[path]; ok {
		return b, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	b, err := LoadBundle(path)
	if err != nil {
		return nil, err
	}

	r.bundles[path] = b
	if r.metrics != nil {
		r.metrics.BundleLoadsInc()
	}
	log.Info().
		Str("path", path).
		Str("model_version", b.Metadata.ModelVersion).
		Int("features", len(b.FeatureNames)).
		Strs("classes", b.Classes).
		Msg("Model bundle loaded")

	// Explainer construction is best-effort: failure degrades
	// predictions to "no explanation", it never blocks loading.
	if b.Trees == nil {
		r.explainers[path] = nil
		log.Debug().Str("path", path).Msg("Bundle carries no contribution trees, explanations disabled")
	} else if ex, err := NewExplainer(b.Trees, b.Background, len(b.FeatureNames), len(b.Classes)); err != nil {
		r.explainers[path] = nil
		log.Warn().Err(err).Str("path", path).Msg("Explainer unavailable, predictions will omit explanations")
	} else {
		r.explainers[path] = ex
	}

	// Same posture for the anomaly monitor.
	if mon, err := NewAnomalyMonitor(b.Background, r.anomalyThreshold); err != nil {
		r.monitors[path] = nil
		log.Debug().Err(err).Str("path", path).Msg("Anomaly monitor disabled")
	} else {
		r.monitors[path] = mon
	}

	return b, nil
}

// Explainer returns the memoized explainer for a loaded bundle, nil
// when explanation is unavailable.
func (r *Registry) Explainer(path string) *Explainer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.explainers[path]
}

// Monitor returns the memoized anomaly monitor for a loaded bundle,
// nil when the bundle had no background sample.
func (r *Registry) Monitor(path string) *AnomalyMonitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitors[path]
}

// Loaded reports how many distinct bundles are resident.
func (r *Registry) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}
