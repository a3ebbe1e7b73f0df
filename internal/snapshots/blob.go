package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

// Object names sort lexically in time order: fixed-width UTC timestamp, then
// a per-brand sequence number for snapshots taken at the same instant.
const keyTimeLayout = "20060102T150405.000000000Z"

// BlobStore writes every snapshot as its own JSON object and caches each
// brand's history after the first read.
type BlobStore struct {
	histories
	storage storage.StorageInterface
	prefix  string
}

var _ Store = (*BlobStore)(nil)

func NewBlobStore(s storage.StorageInterface) *BlobStore {
	return &BlobStore{storage: s, prefix: "snapshots/"}
}

func (b *BlobStore) brandPrefix(brandID string) string {
	return b.prefix + brandID + "/"
}

func (b *BlobStore) key(snap *models.SOVSnapshot, seq int) string {
	return fmt.Sprintf("%s%s-%09d.json", b.brandPrefix(snap.BrandID), snap.TakenAt.UTC().Format(keyTimeLayout), seq)
}

// load fills the cache from storage. Callers hold h.mu.
func (b *BlobStore) load(ctx context.Context, brandID string, h *history) error {
	if h.loaded {
		return nil
	}
	names, err := b.storage.List(ctx, b.brandPrefix(brandID))
	if err != nil {
		return fmt.Errorf("failed to list snapshots for brand %s: %w", brandID, err)
	}

	snaps := make([]*models.SOVSnapshot, 0, len(names))
	for _, name := range names {
		data, err := b.storage.Retrieve(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to read snapshot %s: %w", name, err)
		}
		var snap models.SOVSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("failed to decode snapshot %s: %w", name, err)
		}
		snaps = append(snaps, &snap)
	}

	h.snaps = snaps
	h.loaded = true
	logrus.WithField("brand_id", brandID).Debugf("Loaded %d snapshots from storage", len(snaps))
	return nil
}

func (b *BlobStore) Append(ctx context.Context, snap *models.SOVSnapshot) error {
	if snap == nil || snap.BrandID == "" {
		return fmt.Errorf("%w: snapshot requires a brand id", models.ErrInvalidInput)
	}
	h := b.get(snap.BrandID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := b.load(ctx, snap.BrandID, h); err != nil {
		return err
	}
	if err := h.checkOrder(snap); err != nil {
		return err
	}

	stored := snap.Clone()
	stored.TakenAt = stored.TakenAt.UTC()
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := b.storage.Store(ctx, b.key(stored, len(h.snaps)), data); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	h.snaps = append(h.snaps, stored)
	return nil
}

func (b *BlobStore) Query(ctx context.Context, brandID string, from, to time.Time) ([]*models.SOVSnapshot, error) {
	h := b.get(brandID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := b.load(ctx, brandID, h); err != nil {
		return nil, err
	}
	return h.between(from, to), nil
}

func (b *BlobStore) Latest(ctx context.Context, brandID string) (*models.SOVSnapshot, error) {
	h := b.get(brandID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := b.load(ctx, brandID, h); err != nil {
		return nil, err
	}
	return h.latest(), nil
}
