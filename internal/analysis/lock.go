package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var errLockTimeout = errors.New("brand lock wait timed out")

// brandLocks serializes mutate, recompute and append per brand. Brands do
// not contend with each other.
type brandLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newBrandLocks() *brandLocks {
	return &brandLocks{locks: make(map[string]chan struct{})}
}

func (l *brandLocks) get(brandID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[brandID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[brandID] = ch
	}
	return ch
}

func (l *brandLocks) acquire(ctx context.Context, brandID string, timeout time.Duration) error {
	ch := l.get(brandID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return errLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *brandLocks) release(brandID string) {
	<-l.get(brandID)
}

// withBrandLock runs fn holding the brand lock. Each wait is bounded by
// LockTimeout and retried with exponential backoff up to LockRetries times.
func (s *Service) withBrandLock(ctx context.Context, brandID string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.LockTimeout
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.config.LockRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.locks.acquire(ctx, brandID, s.config.LockTimeout)
		if err == nil || errors.Is(err, errLockTimeout) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			logrus.WithFields(logrus.Fields{
				"brand_id": brandID,
				"attempts": attempt,
			}).Warn("Gave up waiting for brand lock")
			return fmt.Errorf("%w: brand %s is busy", models.ErrSnapshotWriteConflict, brandID)
		}
		return err
	}
	defer s.locks.release(brandID)

	return fn()
}
