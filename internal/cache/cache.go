package cache

import (
	"context"
	"time"

	"scalepos/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.WeightReport, bool, error)
	Set(ctx context.Context, key string, value *domain.WeightReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.WeightReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.WeightReport, _ time.Duration) error {
	return nil
}
