// Package snapshots keeps the append-only, time-ordered SOV history of each brand.
package snapshots

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
)

// Store persists immutable SOV snapshots
type Store interface {
	// Append adds a snapshot to the end of its brand's history. It fails with
	// models.ErrSnapshotOutOfOrder when takenAt precedes the latest snapshot.
	Append(ctx context.Context, snap *models.SOVSnapshot) error
	// Query returns snapshots with from <= takenAt <= to in ascending order.
	// A zero bound is open.
	Query(ctx context.Context, brandID string, from, to time.Time) ([]*models.SOVSnapshot, error)
	// Latest returns the most recent snapshot, or nil when there is none.
	Latest(ctx context.Context, brandID string) (*models.SOVSnapshot, error)
}

// history is one brand's ordered log. Callers hold mu.
type history struct {
	mu     sync.Mutex
	loaded bool
	snaps  []*models.SOVSnapshot
}

func (h *history) checkOrder(snap *models.SOVSnapshot) error {
	if n := len(h.snaps); n > 0 && snap.TakenAt.Before(h.snaps[n-1].TakenAt) {
		return fmt.Errorf("%w: %s precedes latest %s for brand %s",
			models.ErrSnapshotOutOfOrder,
			snap.TakenAt.Format(time.RFC3339Nano),
			h.snaps[n-1].TakenAt.Format(time.RFC3339Nano),
			snap.BrandID)
	}
	return nil
}

func (h *history) between(from, to time.Time) []*models.SOVSnapshot {
	start := 0
	if !from.IsZero() {
		start = sort.Search(len(h.snaps), func(i int) bool {
			return !h.snaps[i].TakenAt.Before(from)
		})
	}
	var out []*models.SOVSnapshot
	for _, s := range h.snaps[start:] {
		if !to.IsZero() && s.TakenAt.After(to) {
			break
		}
		out = append(out, s.Clone())
	}
	return out
}

func (h *history) latest() *models.SOVSnapshot {
	if len(h.snaps) == 0 {
		return nil
	}
	return h.snaps[len(h.snaps)-1].Clone()
}

// histories hands out one log per brand so brands never contend
type histories struct {
	mu     sync.Mutex
	brands map[string]*history
}

func (hs *histories) get(brandID string) *history {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.brands == nil {
		hs.brands = make(map[string]*history)
	}
	h, ok := hs.brands[brandID]
	if !ok {
		h = &history{}
		hs.brands[brandID] = h
	}
	return h
}

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	histories
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, snap *models.SOVSnapshot) error {
	if snap == nil || snap.BrandID == "" {
		return fmt.Errorf("%w: snapshot requires a brand id", models.ErrInvalidInput)
	}
	h := m.get(snap.BrandID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkOrder(snap); err != nil {
		return err
	}
	h.snaps = append(h.snaps, snap.Clone())
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, brandID string, from, to time.Time) ([]*models.SOVSnapshot, error) {
	h := m.get(brandID)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.between(from, to), nil
}

func (m *MemoryStore) Latest(ctx context.Context, brandID string) (*models.SOVSnapshot, error) {
	h := m.get(brandID)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest(), nil
}
