package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/logsift/logsift/pkg/obs"
	"github.com/logsift/logsift/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Engine applies retention policies against the log store. It runs on a
// fixed schedule and can be triggered on demand with identical semantics.
type Engine struct {
	store    storage.Store
	policies Repository
	log      *logrus.Logger
	interval time.Duration

	// now is swappable for tests
	now func() time.Time
}

// New creates a retention engine
func New(store storage.Store, policies Repository, log *logrus.Logger, interval time.Duration) *Engine {
	return &Engine{
		store:    store,
		policies: policies,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

// ApplyPolicy applies a single policy and returns the number of entries
// deleted. A nil source list sweeps all sources in one pass; otherwise
// the per-source deletions are summed.
func (e *Engine) ApplyPolicy(ctx context.Context, p Policy) (int, error) {
	threshold := p.Threshold(e.now())

	if len(p.ApplyToSources) == 0 {
		deleted, err := e.store.DeleteOlderThan(ctx, threshold, "")
		if err != nil {
			return 0, fmt.Errorf("retention policy %q: %w", p.Name, err)
		}
		return deleted, nil
	}

	total := 0
	for _, source := range p.ApplyToSources {
		deleted, err := e.store.DeleteOlderThan(ctx, threshold, source)
		if err != nil {
			return total, fmt.Errorf("retention policy %q, source %q: %w", p.Name, source, err)
		}
		e.log.WithFields(logrus.Fields{
			"policy":  p.Name,
			"source":  source,
			"deleted": deleted,
		}).Debug("retention sweep for source complete")
		total += deleted
	}
	return total, nil
}

// ApplyAll applies every enabled policy. A failure on one policy is
// logged and skipped; it never aborts the rest of the sweep.
func (e *Engine) ApplyAll(ctx context.Context) (int, error) {
	policies, err := e.policies.AllEnabled()
	if err != nil {
		return 0, fmt.Errorf("failed to load retention policies: %w", err)
	}
	if len(policies) == 0 {
		e.log.Debug("no enabled retention policies, skipping sweep")
		return 0, nil
	}

	obs.Get().SweepsTotal.Inc()

	total := 0
	for _, p := range policies {
		deleted, err := e.ApplyPolicy(ctx, p)
		if err != nil {
			e.log.WithError(err).WithField("policy", p.Name).
				Error("retention policy failed, continuing with remaining policies")
			continue
		}
		e.log.WithFields(logrus.Fields{
			"policy":  p.Name,
			"deleted": deleted,
			"max_age": p.MaxAgeDays,
		}).Info("retention policy applied")
		obs.Get().EntriesDeletedTotal.Add(float64(deleted))
		total += deleted
	}
	return total, nil
}

// Run drives scheduled sweeps until the context is cancelled. Each tick
// is wrapped in isolate-and-continue handling: a failed sweep is logged
// and the ticker keeps going.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.WithField("interval", e.interval).Info("retention engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info("retention engine stopped")
			return
		case <-ticker.C:
			start := time.Now()
			deleted, err := e.ApplyAll(ctx)
			if err != nil {
				e.log.WithError(err).Error("retention sweep failed")
				continue
			}
			e.log.WithFields(logrus.Fields{
				"deleted":  deleted,
				"duration": time.Since(start).Round(time.Millisecond),
			}).Info("retention sweep complete")
		}
	}
}
