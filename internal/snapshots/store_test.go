package snapshots

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func snapAt(brandID string, offset time.Duration, brandShare float64) *models.SOVSnapshot {
	return &models.SOVSnapshot{
		BrandID:           brandID,
		TakenAt:           base.Add(offset),
		MentionCounts:     map[string]int{"Acme": 1},
		TotalMentions:     1,
		ShareOfVoice:      map[string]float64{"Acme": brandShare},
		BrandShare:        brandShare,
		AIVisibilityScore: brandShare,
		CalculationMethod: models.MethodEntityCount,
		Entities:          []string{"Acme"},
	}
}

func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"blob":   func() Store { return NewBlobStore(storage.NewMemoryStorage()) },
	}
}

func TestStore_AppendQueryLatest(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			latest, err := s.Latest(ctx, "b1")
			require.NoError(t, err)
			assert.Nil(t, latest)

			for i := 0; i < 5; i++ {
				require.NoError(t, s.Append(ctx, snapAt("b1", time.Duration(i)*time.Hour, float64(i))))
			}
			require.NoError(t, s.Append(ctx, snapAt("b2", 0, 50)))

			all, err := s.Query(ctx, "b1", time.Time{}, time.Time{})
			require.NoError(t, err)
			require.Len(t, all, 5)
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].TakenAt.Before(all[i-1].TakenAt))
			}

			// Inclusive bounds
			ranged, err := s.Query(ctx, "b1", base.Add(time.Hour), base.Add(3*time.Hour))
			require.NoError(t, err)
			require.Len(t, ranged, 3)
			assert.Equal(t, 1.0, ranged[0].BrandShare)
			assert.Equal(t, 3.0, ranged[2].BrandShare)

			latest, err = s.Latest(ctx, "b1")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, 4.0, latest.BrandShare)
		})
	}
}

func TestStore_RejectsOutOfOrder(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			require.NoError(t, s.Append(ctx, snapAt("b1", time.Hour, 1)))
			err := s.Append(ctx, snapAt("b1", 0, 2))
			assert.ErrorIs(t, err, models.ErrSnapshotOutOfOrder)

			// Equal timestamps keep arrival order
			require.NoError(t, s.Append(ctx, snapAt("b1", time.Hour, 3)))
			all, err := s.Query(ctx, "b1", time.Time{}, time.Time{})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, 3.0, all[1].BrandShare)
		})
	}
}

func TestStore_SnapshotsAreImmutable(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			snap := snapAt("b1", 0, 10)
			require.NoError(t, s.Append(ctx, snap))

			snap.ShareOfVoice["Acme"] = 99
			got, err := s.Latest(ctx, "b1")
			require.NoError(t, err)
			got.MentionCounts["Acme"] = 42

			again, err := s.Latest(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, 10.0, again.ShareOfVoice["Acme"])
			assert.Equal(t, 1, again.MentionCounts["Acme"])
		})
	}
}

func TestStore_ConcurrentAppendsSerialize(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			var (
				mu    sync.Mutex
				clock = base
				wg    sync.WaitGroup
			)
			next := func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				clock = clock.Add(time.Millisecond)
				return clock
			}

			errs := make(chan error, 50)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					snap := snapAt("b1", 0, 0)
					snap.TakenAt = next()
					if err := s.Append(ctx, snap); err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)

			all, err := s.Query(ctx, "b1", time.Time{}, time.Time{})
			require.NoError(t, err)
			// Every append either landed in order or was rejected as out of order
			rejected := 0
			for err := range errs {
				assert.ErrorIs(t, err, models.ErrSnapshotOutOfOrder)
				rejected++
			}
			assert.Equal(t, 50, len(all)+rejected)
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].TakenAt.Before(all[i-1].TakenAt))
			}
		})
	}
}

func TestBlobStore_ReloadsHistory(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStorage()

	first := NewBlobStore(backend)
	for i := 0; i < 3; i++ {
		require.NoError(t, first.Append(ctx, snapAt("b1", time.Duration(i)*time.Minute, float64(i))))
	}
	// Two snapshots at the same instant
	require.NoError(t, first.Append(ctx, snapAt("b1", 2*time.Minute, 7)))

	names, err := backend.List(ctx, "snapshots/b1/")
	require.NoError(t, err)
	assert.Len(t, names, 4)

	second := NewBlobStore(backend)
	all, err := second.Query(ctx, "b1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, want := range []float64{0, 1, 2, 7} {
		assert.Equal(t, want, all[i].BrandShare, fmt.Sprintf("snapshot %d", i))
	}

	err = second.Append(ctx, snapAt("b1", 0, 1))
	assert.ErrorIs(t, err, models.ErrSnapshotOutOfOrder)
}

func TestStore_RequiresBrandID(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := newStore().Append(context.Background(), &models.SOVSnapshot{})
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}
