package repository

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"rms-connector-service/internal/models"
	"gorm.io/gorm"
)

// Item lookup cache TTLs. SKU assignments change rarely; misses are cached
// briefly so a newly created item is picked up within a cycle or two.
const (
	itemCacheTTL     = 1 * time.Hour
	itemMissCacheTTL = 2 * time.Minute
)

// ItemRepository implements ItemResolver on the RMS item table with an
// in-memory cache in front of it.
type ItemRepository struct {
	db    *gorm.DB
	cache *gocache.Cache
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{
		db:    db,
		cache: gocache.New(itemCacheTTL, 10*time.Minute),
	}
}

var _ ItemResolver = (*ItemRepository)(nil)

type itemMiss struct{}

// ResolveItemIDBySKU returns the RMS item id for a SKU. The second return
// is false when no item carries that lookup code.
func (r *ItemRepository) ResolveItemIDBySKU(ctx context.Context, sku string) (int64, bool, error) {
	if cached, found := r.cache.Get(sku); found {
		if _, miss := cached.(itemMiss); miss {
			return 0, false, nil
		}
		return cached.(int64), true, nil
	}

	var item models.Item
	err := r.db.WithContext(ctx).
		Where("\"ItemLookupCode\" = ?", sku).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.cache.Set(sku, itemMiss{}, itemMissCacheTTL)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classifyStoreError("resolve item by sku", err)
	}

	r.cache.Set(sku, item.ID, itemCacheTTL)
	return item.ID, true, nil
}
