package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"scalepos/backend/internal/domain"
)

func TestRedisReportCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() {
		_ = c.Close()
	})

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	report := &domain.WeightReport{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-31",
		Summary: domain.WeightReportSummary{
			TotalWeight:   12.5,
			TotalRevenue:  480.75,
			LineItemCount: 9,
			AverageWeight: 1.389,
		},
		TopProducts: []domain.ProductWeightStats{
			{ProductID: "prod-beef", ProductName: "Ground Beef", TotalWeight: 8.2, Revenue: 328.00, SaleCount: 6},
		},
		SalesCount: 7,
	}

	key := "reports:weight:2026-08-01:2026-08-31"
	if err := c.Set(ctx, key, report, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Summary.TotalWeight != report.Summary.TotalWeight {
		t.Fatalf("expected total weight %g got %g", report.Summary.TotalWeight, got.Summary.TotalWeight)
	}
	if len(got.TopProducts) != 1 || got.TopProducts[0].ProductID != "prod-beef" {
		t.Fatalf("unexpected top products: %+v", got.TopProducts)
	}
}

func TestRedisReportCacheMiss(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() {
		_ = c.Close()
	})

	_, ok, err := c.Get(context.Background(), "reports:weight:absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss")
	}
}

func TestRedisReportCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedisReportCache(mr.Addr(), "", 0)
	t.Cleanup(func() {
		_ = c.Close()
	})

	ctx := context.Background()
	key := "reports:weight:ttl"
	if err := c.Set(ctx, key, &domain.WeightReport{SalesCount: 1}, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected entry to expire")
	}
}
