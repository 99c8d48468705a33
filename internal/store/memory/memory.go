package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalepos/backend/internal/domain"
	"scalepos/backend/internal/store"
)

// Store is a mutex-guarded in-memory Repository used by tests and dev mode.
type Store struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	sales     map[string]domain.Sale
	movements []domain.InventoryMovement
	customers map[string]domain.CustomerAccount
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		sales:     make(map[string]domain.Sale),
		movements: make([]domain.InventoryMovement, 0, 128),
		customers: make(map[string]domain.CustomerAccount),
	}
}

// NewSeeded returns a store pre-loaded with a small produce catalog and one
// customer, for dev mode and service tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []domain.Product{
		{ID: "prod-tomato", Name: "Roma Tomatoes", UnitPrice: 4.50, Unit: domain.UnitKilogram, SellByWeight: true, StockQuantity: 120, MinStock: 10},
		{ID: "prod-beef", Name: "Ground Beef", UnitPrice: 40.00, Unit: domain.UnitKilogram, SellByWeight: true, StockQuantity: 35, MinStock: 5},
		{ID: "prod-saffron", Name: "Saffron Threads", UnitPrice: 0.05, Unit: domain.UnitGram, SellByWeight: true, StockQuantity: 200, MinStock: 20},
		{ID: "prod-oil", Name: "Olive Oil (bulk)", UnitPrice: 12.00, Unit: domain.UnitLiter, SellByWeight: true, StockQuantity: 60, MinStock: 8},
		{ID: "prod-eggs", Name: "Egg Carton", UnitPrice: 10.00, Unit: domain.UnitPiece, SellByWeight: false, StockQuantity: 500, MinStock: 50},
		{ID: "prod-bread", Name: "Sourdough Loaf", UnitPrice: 6.25, Unit: domain.UnitPiece, SellByWeight: false, StockQuantity: 40, MinStock: 6},
	}
	for _, p := range seed {
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	s.customers["cust-1"] = domain.CustomerAccount{ID: "cust-1", Name: "Walk-in Regular", LastVisit: now}
	return s
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.UnitPrice <= 0 || !product.Unit.Valid() {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.UnitPrice <= 0 {
		return nil, store.ErrValidation
	}

	// Only the editable columns change. Stock belongs to AdjustStock and
	// CreateSale; carrying the caller's copy here would let a stale read
	// overwrite a concurrent sale's deduction.
	existing.Name = product.Name
	existing.UnitPrice = product.UnitPrice
	existing.MinStock = product.MinStock
	existing.Active = product.Active
	s.products[existing.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) SetProductStock(_ context.Context, id string, newStock float64) error {
	if newStock < 0 {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	product.StockQuantity = newStock
	s.products[id] = product
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta float64) (store.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustStockLocked(id, delta)
}

// adjustStockLocked applies delta with the floor-at-zero rule. Callers hold mu.
func (s *Store) adjustStockLocked(id string, delta float64) (store.StockLevel, error) {
	product, ok := s.products[id]
	if !ok {
		return store.StockLevel{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}

	previous := product.StockQuantity
	next := previous + delta
	if next < 0 {
		next = 0
	}
	product.StockQuantity = next
	s.products[id] = product
	return store.StockLevel{Previous: previous, New: next}, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, deductions []store.StockDeduction) (*domain.Sale, []domain.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, nil, store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	// Everything below mutates under one lock, so a validation failure on any
	// deduction must happen before the first write.
	for _, d := range deductions {
		if _, ok := s.products[d.ProductID]; !ok {
			return nil, nil, fmt.Errorf("product %s: %w", d.ProductID, store.ErrNotFound)
		}
	}

	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = uuid.NewString()
		}
		sale.Items[i].SaleID = sale.ID
	}

	movements := make([]domain.InventoryMovement, 0, len(deductions))
	for _, d := range deductions {
		level, err := s.adjustStockLocked(d.ProductID, -d.Amount)
		if err != nil {
			return nil, nil, err
		}
		movement := domain.InventoryMovement{
			ID:              uuid.NewString(),
			ProductID:       d.ProductID,
			MovementType:    domain.MovementSale,
			QuantityDelta:   -d.Amount,
			PreviousStock:   level.Previous,
			NewStock:        level.New,
			ReferenceSaleID: sale.ID,
			CreatedAt:       sale.CreatedAt,
		}
		s.movements = append(s.movements, movement)
		movements = append(movements, movement)
	}

	s.sales[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, movements, nil
}

func (s *Store) QuerySales(_ context.Context, from, to time.Time) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.Before(sales[j].CreatedAt) })
	return sales, nil
}

func (s *Store) InsertInventoryMovement(_ context.Context, movement domain.InventoryMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ProductID == "" {
		return store.ErrValidation
	}
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, movement)
	return nil
}

func (s *Store) ListInventoryMovements(_ context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.InventoryMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		if productID != "" && s.movements[i].ProductID != productID {
			continue
		}
		result = append(result, s.movements[i])
	}
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.CustomerAccount) (*domain.CustomerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerStats(_ context.Context, id string) (*domain.CustomerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) AccrueCustomerStats(_ context.Context, id string, spentDelta float64, pointsDelta int, lastVisit time.Time) error {
	if pointsDelta < 0 {
		return fmt.Errorf("loyalty points may not decrease: %w", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	customer.TotalSpent = math.Round((customer.TotalSpent+spentDelta)*100) / 100
	customer.LoyaltyPoints += pointsDelta
	customer.LastVisit = lastVisit
	s.customers[id] = customer
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	copySale := sale
	copySale.Items = make([]domain.SaleLineItem, len(sale.Items))
	copy(copySale.Items, sale.Items)
	for i := range copySale.Items {
		if sale.Items[i].Weight != nil {
			w := *sale.Items[i].Weight
			copySale.Items[i].Weight = &w
		}
	}
	if sale.CustomerID != nil {
		id := *sale.CustomerID
		copySale.CustomerID = &id
	}
	return copySale
}
