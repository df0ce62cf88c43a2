package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketStructure/internal/domain/models"
	domrepo "MarketStructure/internal/domain/repository"
	"MarketStructure/pkg/cache"
)

const levelsKeyPrefix = "levels"

// CachedLevelSnapshots stores historical anchors in the cache as JSON.
type CachedLevelSnapshots struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCachedLevelSnapshots(c cache.Service, ttl time.Duration) *CachedLevelSnapshots {
	return &CachedLevelSnapshots{cache: c, ttl: ttl}
}

func (s *CachedLevelSnapshots) Save(ctx context.Context, instrument string, levels []models.AnchorLevel) error {
	if err := s.cache.Set(ctx, cache.GenerateKey(levelsKeyPrefix, instrument), levels, s.ttl); err != nil {
		return fmt.Errorf("save levels %s: %w", instrument, err)
	}
	return nil
}

func (s *CachedLevelSnapshots) Load(ctx context.Context, instrument string) ([]models.AnchorLevel, bool, error) {
	var levels []models.AnchorLevel
	err := s.cache.Get(ctx, cache.GenerateKey(levelsKeyPrefix, instrument), &levels)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load levels %s: %w", instrument, err)
	}
	return levels, true, nil
}

var _ domrepo.LevelSnapshots = (*CachedLevelSnapshots)(nil)
