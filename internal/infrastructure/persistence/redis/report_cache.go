package redis

import (
	"context"
	"errors"
	"time"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/query"
)

// ReportCache caches verified report lists per case.
type ReportCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewReportCache creates a report cache. A non-positive ttl uses TTLReports.
func NewReportCache(cache *Cache, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = TTLReports
	}
	return &ReportCache{cache: cache, ttl: ttl}
}

var _ query.ReportCache = (*ReportCache)(nil)

func (r *ReportCache) GetReports(ctx context.Context, caseID string) ([]query.ReportDTO, bool, error) {
	var out []query.ReportDTO
	err := r.cache.Get(ctx, ReportsKey(caseID), &out)
	switch {
	case err == nil:
		return out, true, nil
	case errors.Is(err, ErrCacheMiss):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (r *ReportCache) SetReports(ctx context.Context, caseID string, reports []query.ReportDTO) error {
	if reports == nil {
		reports = []query.ReportDTO{}
	}
	return r.cache.Set(ctx, ReportsKey(caseID), reports, r.ttl)
}

func (r *ReportCache) Invalidate(ctx context.Context, caseID string) error {
	return r.cache.Delete(ctx, ReportsKey(caseID))
}
