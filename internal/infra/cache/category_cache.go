package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/rs/zerolog"
)

const categoriesKey = "catalog:categories"

// カテゴリ一覧のcache-aside。キャッシュが落ちていてもDBから返す
type CachedCategoryRepository struct {
	repo.CategoryRepository
	store Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedCategoryRepository(db repo.CategoryRepository, store Store, ttl time.Duration, log zerolog.Logger) *CachedCategoryRepository {
	return &CachedCategoryRepository{CategoryRepository: db, store: store, ttl: ttl, log: log}
}

func (c *CachedCategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	b, err := c.store.Get(ctx, categoriesKey)
	if err == nil {
		var cs []model.Category
		if jerr := json.Unmarshal(b, &cs); jerr == nil {
			return cs, nil
		}
	} else if !errors.Is(err, ErrMiss) {
		c.log.Warn().Err(err).Msg("category cache get failed")
	}

	cs, err := c.CategoryRepository.List(ctx)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(cs); err == nil {
		if err := c.store.Set(ctx, categoriesKey, b, c.ttl); err != nil {
			c.log.Warn().Err(err).Msg("category cache set failed")
		}
	}
	return cs, nil
}

// カテゴリを変更したら呼ぶ
func (c *CachedCategoryRepository) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, categoriesKey)
}
