package engine

import (
	"context"
	"fmt"

	"github.com/seantiz/modreg/internal/model"
)

// SyncReport describes the outcome of reconciling a declared baseline.
type SyncReport struct {
	// Skipped is set when the store was unavailable and nothing was written.
	Skipped bool          `json:"skipped"`
	Reason  string        `json:"reason,omitempty"`
	Created []string      `json:"created"`
	Updated []string      `json:"updated"`
	Failed  []SyncFailure `json:"failed,omitempty"`
}

// SyncFailure records a descriptor that could not be written.
type SyncFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Changed reports whether any record was written.
func (r SyncReport) Changed() bool {
	return len(r.Created)+len(r.Updated) > 0
}

// Sync writes every declared descriptor into the store, overwriting existing
// records with the same key. Records absent from declared are left alone.
// Each descriptor is written independently; one failure does not stop the
// rest. Dependency and core rules are not applied: the baseline wins.
func (e *Engine) Sync(ctx context.Context, declared []model.Descriptor) SyncReport {
	const op = "sync"
	report := SyncReport{Created: []string{}, Updated: []string{}}

	if err := e.store.Ready(ctx); err != nil {
		e.logger.Warn("module sync skipped", "error", err)
		report.Skipped = true
		report.Reason = err.Error()
		observe(op, err)
		return report
	}

	for _, d := range declared {
		created, err := e.upsert(ctx, d)
		switch {
		case err != nil:
			e.logger.Error("module sync failed", "module", d.Key, "error", err)
			report.Failed = append(report.Failed, SyncFailure{Key: d.Key, Error: err.Error()})
		case created:
			report.Created = append(report.Created, d.Key)
		default:
			report.Updated = append(report.Updated, d.Key)
		}
	}

	e.cache.InvalidateAll(ctx)
	e.events.Publish(Event{Type: EventSynced})
	observe(op, nil)
	e.logger.Info("modules synced",
		"created", len(report.Created),
		"updated", len(report.Updated),
		"failed", len(report.Failed),
	)
	return report
}

func (e *Engine) upsert(ctx context.Context, d model.Descriptor) (bool, error) {
	if err := model.ValidateKey(d.Key); err != nil {
		return false, err
	}

	unlock := e.locks.lock(d.Key)
	defer unlock()

	m := &model.Module{Key: d.Key}
	d.Apply(m)
	created, err := e.store.Upsert(ctx, m)
	if err != nil {
		return false, fmt.Errorf("upsert module: %w", err)
	}
	return created, nil
}
