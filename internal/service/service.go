package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalepos/backend/internal/cache"
	"scalepos/backend/internal/domain"
	"scalepos/backend/internal/pricing"
	"scalepos/backend/internal/store"
	"scalepos/backend/internal/xid"
)

// Settings holds the injectable business policy. Zero values fall back to the
// domain defaults in New. TaxRate is a pointer because zero is a legitimate
// configured rate, not an absent one.
type Settings struct {
	TaxRate                *float64
	MaxWeight              float64
	MaxGramWeight          float64
	LowStockThreshold      float64
	LoyaltyDollarsPerPoint float64
	ReportCacheTTL         time.Duration
	DefaultLocationID      string
}

// LowStockFunc receives the product id and post-sale level whenever a sale
// leaves a product at or below the threshold.
type LowStockFunc func(productID string, newStock float64)

type Service struct {
	repo     store.Repository
	reports  cache.ReportCache
	settings Settings
	taxRate  float64
	lowStock LowStockFunc

	wg sync.WaitGroup
}

func New(repo store.Repository, reports cache.ReportCache, settings Settings) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	taxRate := domain.DefaultTaxRate
	if settings.TaxRate != nil && *settings.TaxRate >= 0 {
		taxRate = *settings.TaxRate
	}
	if settings.MaxWeight == 0 {
		settings.MaxWeight = domain.DefaultMaxWeight
	}
	if settings.MaxGramWeight == 0 {
		settings.MaxGramWeight = domain.DefaultMaxGramWeight
	}
	if settings.LowStockThreshold == 0 {
		settings.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	if settings.LoyaltyDollarsPerPoint == 0 {
		settings.LoyaltyDollarsPerPoint = domain.DefaultLoyaltyDollarsPerPoint
	}
	if settings.ReportCacheTTL == 0 {
		settings.ReportCacheTTL = 5 * time.Minute
	}
	if settings.DefaultLocationID == "" {
		settings.DefaultLocationID = "main-store"
	}

	return &Service{
		repo:     repo,
		reports:  reports,
		settings: settings,
		taxRate:  taxRate,
	}
}

// SetLowStockFunc installs the low stock signal hook. Call before serving.
func (s *Service) SetLowStockFunc(fn LowStockFunc) {
	s.lowStock = fn
}

// Wait blocks until all detached loyalty updates have finished. Used during
// shutdown and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) bounds() pricing.Bounds {
	return pricing.Bounds{
		MaxWeight:     s.settings.MaxWeight,
		MaxGramWeight: s.settings.MaxGramWeight,
	}
}

// Checkout prices a cart, records the sale with its inventory impact in one
// transaction, then kicks off loyalty accrual in the background. A cart is
// never rejected for insufficient stock; levels floor at zero.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.CashierID == "" {
		return nil, fmt.Errorf("%w: cashier_id is required", store.ErrValidation)
	}
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: payment_method is required", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale must contain at least one item", store.ErrValidation)
	}
	if req.LocationID == "" {
		req.LocationID = s.settings.DefaultLocationID
	}

	bounds := s.bounds()
	items := make([]domain.SaleLineItem, 0, len(req.Items))
	deductions := make([]store.StockDeduction, 0, len(req.Items))

	for i, line := range req.Items {
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("item %d: product %s: %w", i, line.ProductID, store.ErrNotFound)
			}
			return nil, err
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is not active", store.ErrValidation, product.ID)
		}

		item := domain.SaleLineItem{
			ID:          uuid.NewString(),
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.UnitPrice,
		}

		if product.SellByWeight {
			if line.Weight == nil {
				return nil, fmt.Errorf("%w: product %s is sold by weight and requires a weight", store.ErrValidation, product.ID)
			}
			weight := pricing.RoundWeight(*line.Weight)
			if err := pricing.ValidateWeight(*product, weight, bounds); err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}

			quote := pricing.Price(*product, weight)
			item.Quantity = 1
			item.Weight = &weight
			item.LineTotal = quote.Total
			deductions = append(deductions, store.StockDeduction{ProductID: product.ID, Amount: weight})
		} else {
			if line.Quantity < 1 {
				return nil, fmt.Errorf("%w: product %s requires a quantity of at least 1", store.ErrValidation, product.ID)
			}
			quote := pricing.Price(*product, float64(line.Quantity))
			item.Quantity = line.Quantity
			item.LineTotal = quote.Total
			deductions = append(deductions, store.StockDeduction{ProductID: product.ID, Amount: float64(line.Quantity)})
		}

		items = append(items, item)
	}

	totals := pricing.Aggregate(items, s.taxRate)

	sale := domain.Sale{
		ID:            uuid.NewString(),
		SaleNumber:    xid.New("SALE"),
		CustomerID:    req.CustomerID,
		CashierID:     req.CashierID,
		Items:         items,
		Subtotal:      totals.Subtotal,
		TaxAmount:     totals.TaxAmount,
		TotalAmount:   totals.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleStatusCompleted,
		LocationID:    req.LocationID,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     time.Now().UTC(),
	}

	created, movements, err := s.repo.CreateSale(ctx, sale, deductions)
	if err != nil {
		return nil, err
	}

	if s.lowStock != nil {
		for _, m := range movements {
			if m.NewStock <= s.settings.LowStockThreshold {
				s.lowStock(m.ProductID, m.NewStock)
			}
		}
	}

	if created.CustomerID != nil {
		customerID := *created.CustomerID
		amount := created.TotalAmount
		at := created.CreatedAt
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			loyaltyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.AccrueLoyalty(loyaltyCtx, customerID, amount, at); err != nil {
				log.Printf("[service] WARN: loyalty accrual failed customer=%s sale=%s: %v", customerID, created.ID, err)
			}
		}()
	}

	return &domain.CheckoutResponse{
		Sale:  *created,
		Items: created.Items,
		Summary: domain.CheckoutSummary{
			TotalItems:  totals.Summary.TotalItems,
			TotalWeight: totals.Summary.TotalWeight,
			Subtotal:    totals.Subtotal,
			TaxAmount:   totals.TaxAmount,
			TotalAmount: totals.TotalAmount,
		},
	}, nil
}

// AccrueLoyalty awards one point per whole ten dollars of the sale amount and
// advances the customer's running totals. The store applies the deltas
// atomically, so concurrent accruals for one customer cannot lose an
// increment. Points never decrease.
func (s *Service) AccrueLoyalty(ctx context.Context, customerID string, saleAmount float64, at time.Time) error {
	points := int(math.Floor(saleAmount / s.settings.LoyaltyDollarsPerPoint))
	return s.repo.AccrueCustomerStats(ctx, customerID, saleAmount, points, at)
}

// QuotePrice prices a single line without touching inventory.
func (s *Service) QuotePrice(ctx context.Context, req domain.PriceQuoteRequest) (*domain.PriceQuoteResponse, error) {
	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	value := req.QuantityOrWeight
	if product.SellByWeight {
		value = pricing.RoundWeight(value)
		if err := pricing.ValidateWeight(*product, value, s.bounds()); err != nil {
			return nil, err
		}
	} else {
		if value < 1 || value != math.Trunc(value) {
			return nil, fmt.Errorf("%w: quantity must be a whole number of at least 1", store.ErrValidation)
		}
	}

	quote := pricing.Price(*product, value)
	return &domain.PriceQuoteResponse{
		ProductID:        product.ID,
		Total:            quote.Total,
		UnitPriceUsed:    quote.UnitPriceUsed,
		DisplayUnitPrice: quote.DisplayUnitPrice,
	}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.UnitPrice <= 0 {
		return nil, fmt.Errorf("%w: unit_price must be greater than 0", store.ErrValidation)
	}
	if !req.Unit.Valid() {
		return nil, fmt.Errorf("%w: unknown unit %q", store.ErrValidation, req.Unit)
	}
	if req.SellByWeight && req.Unit.Discrete() {
		return nil, fmt.Errorf("%w: sell-by-weight products need a measured unit", store.ErrValidation)
	}
	if !req.SellByWeight && !req.Unit.Discrete() {
		return nil, fmt.Errorf("%w: measured units require sell_by_weight", store.ErrValidation)
	}
	if req.InitialStock < 0 || req.MinStock < 0 {
		return nil, fmt.Errorf("%w: stock values cannot be negative", store.ErrValidation)
	}

	product := domain.Product{
		ID:            uuid.NewString(),
		Name:          req.Name,
		UnitPrice:     req.UnitPrice,
		Unit:          req.Unit,
		SellByWeight:  req.SellByWeight,
		StockQuantity: req.InitialStock,
		MinStock:      req.MinStock,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}

	return s.repo.CreateProduct(ctx, product)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		existing.Name = name
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice <= 0 {
			return nil, fmt.Errorf("%w: unit_price must be greater than 0", store.ErrValidation)
		}
		existing.UnitPrice = *req.UnitPrice
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return nil, fmt.Errorf("%w: min_stock cannot be negative", store.ErrValidation)
		}
		existing.MinStock = *req.MinStock
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	return s.repo.UpdateProduct(ctx, *existing)
}

// RestockProduct raises the stock level and logs a restock movement.
func (s *Service) RestockProduct(ctx context.Context, productID string, req domain.RestockRequest) (*domain.InventoryMovement, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be greater than 0", store.ErrValidation)
	}

	level, err := s.repo.AdjustStock(ctx, productID, req.Quantity)
	if err != nil {
		return nil, err
	}

	movement := domain.InventoryMovement{
		ID:            uuid.NewString(),
		ProductID:     productID,
		MovementType:  domain.MovementRestock,
		QuantityDelta: req.Quantity,
		PreviousStock: level.Previous,
		NewStock:      level.New,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertInventoryMovement(ctx, movement); err != nil {
		return nil, err
	}
	return &movement, nil
}

// AdjustStock applies a manual correction in either direction and logs an
// adjustment movement. Downward corrections clamp at zero like sales do.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustmentRequest) (*domain.InventoryMovement, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: adjustment delta cannot be 0", store.ErrValidation)
	}

	level, err := s.repo.AdjustStock(ctx, productID, req.Delta)
	if err != nil {
		return nil, err
	}

	movement := domain.InventoryMovement{
		ID:            uuid.NewString(),
		ProductID:     productID,
		MovementType:  domain.MovementAdjustment,
		QuantityDelta: level.New - level.Previous,
		PreviousStock: level.Previous,
		NewStock:      level.New,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertInventoryMovement(ctx, movement); err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListInventoryMovements(ctx, productID, limit)
}

func (s *Service) CustomerStats(ctx context.Context, id string) (*domain.CustomerAccount, error) {
	return s.repo.GetCustomerStats(ctx, id)
}

// WeightReport aggregates sell-by-weight sales in [start, end]. Dates are
// inclusive calendar days in UTC. Results are cached for a short TTL.
func (s *Service) WeightReport(ctx context.Context, startDate, endDate string) (*domain.WeightReport, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date %q", store.ErrValidation, startDate)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end date %q", store.ErrValidation, endDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date precedes start date", store.ErrValidation)
	}

	key := fmt.Sprintf("reports:weight:%s:%s", startDate, endDate)
	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
	}

	sales, err := s.repo.QuerySales(ctx, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	report := buildWeightReport(startDate, endDate, sales)

	if err := s.reports.Set(ctx, key, report, s.settings.ReportCacheTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
	}

	return report, nil
}

func buildWeightReport(startDate, endDate string, sales []domain.Sale) *domain.WeightReport {
	type acc struct {
		name   string
		weight float64
		rev    float64
		sales  map[string]bool
	}

	byProduct := make(map[string]*acc)
	summary := domain.WeightReportSummary{}
	salesSeen := make(map[string]bool)

	for _, sale := range sales {
		for _, item := range sale.Items {
			if item.Weight == nil {
				continue
			}
			summary.TotalWeight += *item.Weight
			summary.TotalRevenue += item.LineTotal
			summary.LineItemCount++
			salesSeen[sale.ID] = true

			a := byProduct[item.ProductID]
			if a == nil {
				a = &acc{name: item.ProductName, sales: make(map[string]bool)}
				byProduct[item.ProductID] = a
			}
			a.weight += *item.Weight
			a.rev += item.LineTotal
			a.sales[sale.ID] = true
		}
	}

	if summary.LineItemCount > 0 {
		summary.AverageWeight = pricing.RoundWeight(summary.TotalWeight / float64(summary.LineItemCount))
	}
	summary.TotalWeight = pricing.RoundWeight(summary.TotalWeight)
	summary.TotalRevenue = pricing.RoundCurrency(summary.TotalRevenue)

	top := make([]domain.ProductWeightStats, 0, len(byProduct))
	for id, a := range byProduct {
		top = append(top, domain.ProductWeightStats{
			ProductID:   id,
			ProductName: a.name,
			TotalWeight: pricing.RoundWeight(a.weight),
			Revenue:     pricing.RoundCurrency(a.rev),
			SaleCount:   len(a.sales),
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalWeight != top[j].TotalWeight {
			return top[i].TotalWeight > top[j].TotalWeight
		}
		return top[i].ProductID < top[j].ProductID
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return &domain.WeightReport{
		StartDate:   startDate,
		EndDate:     endDate,
		Summary:     summary,
		TopProducts: top,
		SalesCount:  len(salesSeen),
	}
}
