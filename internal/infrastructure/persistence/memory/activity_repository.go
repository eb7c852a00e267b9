// Package memory provides in-memory implementations of the storage ports,
// used by the activity view and by ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/activity"
)

var _ ports.ActivityRepository = (*ActivityRepository)(nil)

// ActivityRepository keeps the most recent activity records. When capacity is
// reached the oldest record is dropped.
type ActivityRepository struct {
	capacity int

	mu      sync.RWMutex
	records map[uuid.UUID]*activity.Record
	order   []uuid.UUID
}

// NewActivityRepository creates a repository holding up to capacity records.
// Zero or less means unbounded.
func NewActivityRepository(capacity int) *ActivityRepository {
	return &ActivityRepository{
		capacity: capacity,
		records:  make(map[uuid.UUID]*activity.Record),
	}
}

// Save stores a record. Callers should not modify it afterwards.
func (r *ActivityRepository) Save(_ context.Context, record *activity.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; !exists {
		r.order = append(r.order, record.ID)
	}
	r.records[record.ID] = record

	for r.capacity > 0 && len(r.order) > r.capacity {
		delete(r.records, r.order[0])
		r.order = r.order[1:]
	}
	return nil
}

// FindByID returns one record.
func (r *ActivityRepository) FindByID(_ context.Context, id uuid.UUID) (*activity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("activity record not found: %s", id)
	}
	return record, nil
}

// FindRecent returns up to limit records, newest first.
func (r *ActivityRepository) FindRecent(_ context.Context, limit int) ([]*activity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*activity.Record, 0, len(r.records))
	for _, rec := range r.records {
		matches = append(matches, rec)
	}
	newestFirst(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindBetween returns records whose time falls within [start, end], newest first.
func (r *ActivityRepository) FindBetween(_ context.Context, start, end time.Time) ([]*activity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*activity.Record
	for _, rec := range r.records {
		if !rec.Time.Before(start) && !rec.Time.After(end) {
			matches = append(matches, rec)
		}
	}
	newestFirst(matches)
	return matches, nil
}

func newestFirst(records []*activity.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})
}
