package store

import (
	"context"
	"errors"
	"time"

	"scalepos/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// StockLevel is the before/after pair of an atomic stock change.
type StockLevel struct {
	Previous float64
	New      float64
}

// StockDeduction is one line's stock impact inside a sale. Amount is the raw
// captured value: a piece count for discrete products, the weight value for
// sell-by-weight products regardless of unit.
type StockDeduction struct {
	ProductID string
	Amount    float64
}

// Repository is the ledger store contract. CreateSale is the single
// transactional boundary of the checkout path: header, line items, clamped
// stock decrements and movement records commit or fail together, with
// deductions applied one at a time in cart order. Stock never goes negative
// and a sale is never rejected for insufficiency; the level floors at zero.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductStock(ctx context.Context, id string, newStock float64) error

	// AdjustStock applies delta atomically, clamping the result at zero.
	AdjustStock(ctx context.Context, id string, delta float64) (StockLevel, error)

	CreateSale(ctx context.Context, sale domain.Sale, deductions []StockDeduction) (*domain.Sale, []domain.InventoryMovement, error)
	QuerySales(ctx context.Context, from, to time.Time) ([]domain.Sale, error)

	InsertInventoryMovement(ctx context.Context, movement domain.InventoryMovement) error
	ListInventoryMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error)

	CreateCustomer(ctx context.Context, customer domain.CustomerAccount) (*domain.CustomerAccount, error)
	GetCustomerStats(ctx context.Context, id string) (*domain.CustomerAccount, error)

	// AccrueCustomerStats adds spentDelta and pointsDelta to the customer's
	// running totals in one atomic write. pointsDelta must not be negative;
	// points never decrease.
	AccrueCustomerStats(ctx context.Context, id string, spentDelta float64, pointsDelta int, lastVisit time.Time) error
}
