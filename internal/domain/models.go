package domain

import "time"

// Unit is the measure a product is stocked and sold in.
type Unit string

const (
	UnitKilogram   Unit = "kilogram"
	UnitGram       Unit = "gram"
	UnitPiece      Unit = "piece"
	UnitLiter      Unit = "liter"
	UnitMilliliter Unit = "milliliter"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKilogram, UnitGram, UnitPiece, UnitLiter, UnitMilliliter:
		return true
	}
	return false
}

// Discrete reports whether the unit counts whole items rather than a measure.
func (u Unit) Discrete() bool {
	return u == UnitPiece
}

type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementRestock    MovementType = "restock"
	MovementAdjustment MovementType = "adjustment"
)

const SaleStatusCompleted = "completed"

// Default business policy. All of these are injectable through config; none
// may be inlined in calculation logic.
const (
	DefaultTaxRate                = 0.16
	DefaultMaxWeight              = 50.0
	DefaultMaxGramWeight          = 5.0
	DefaultLowStockThreshold      = 5.0
	DefaultLoyaltyDollarsPerPoint = 10.0
)

// Product is stocked in StockQuantity units of Unit. When SellByWeight is
// false the unit must be discrete (piece).
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	UnitPrice     float64   `json:"unit_price"`
	Unit          Unit      `json:"unit"`
	SellByWeight  bool      `json:"sell_by_weight"`
	StockQuantity float64   `json:"stock_quantity"`
	MinStock      float64   `json:"min_stock"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name         string  `json:"name"`
	UnitPrice    float64 `json:"unit_price"`
	Unit         Unit    `json:"unit"`
	SellByWeight bool    `json:"sell_by_weight"`
	InitialStock float64 `json:"initial_stock"`
	MinStock     float64 `json:"min_stock"`
}

type ProductUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	MinStock  *float64 `json:"min_stock,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

// SaleLineItem is immutable once the sale is recorded. Weight is present only
// for sell-by-weight lines, whose quantity is always 1.
type SaleLineItem struct {
	ID          string   `json:"id"`
	SaleID      string   `json:"sale_id"`
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Quantity    int      `json:"quantity"`
	Weight      *float64 `json:"weight,omitempty"`
	UnitPrice   float64  `json:"unit_price"`
	LineTotal   float64  `json:"line_total"`
}

type Sale struct {
	ID            string         `json:"id"`
	SaleNumber    string         `json:"sale_number"`
	CustomerID    *string        `json:"customer_id,omitempty"`
	CashierID     string         `json:"cashier_id"`
	Items         []SaleLineItem `json:"items"`
	Subtotal      float64        `json:"subtotal"`
	TaxAmount     float64        `json:"tax_amount"`
	TotalAmount   float64        `json:"total_amount"`
	PaymentMethod string         `json:"payment_method"`
	Status        string         `json:"status"`
	LocationID    string         `json:"location_id"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// InventoryMovement is the audit record of one stock change.
// Invariant: NewStock = max(0, PreviousStock + QuantityDelta).
type InventoryMovement struct {
	ID              string       `json:"id"`
	ProductID       string       `json:"product_id"`
	MovementType    MovementType `json:"movement_type"`
	QuantityDelta   float64      `json:"quantity_delta"`
	PreviousStock   float64      `json:"previous_stock"`
	NewStock        float64      `json:"new_stock"`
	ReferenceSaleID string       `json:"reference_sale_id,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

type CustomerAccount struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TotalSpent    float64   `json:"total_spent"`
	LoyaltyPoints int       `json:"loyalty_points"`
	LastVisit     time.Time `json:"last_visit"`
}

type CheckoutItem struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`
}

type CheckoutRequest struct {
	CustomerID    *string        `json:"customer_id,omitempty"`
	CashierID     string         `json:"cashier_id"`
	Items         []CheckoutItem `json:"items"`
	PaymentMethod string         `json:"payment_method"`
	LocationID    string         `json:"location_id,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

type CheckoutSummary struct {
	TotalItems  int     `json:"total_items"`
	TotalWeight float64 `json:"total_weight"`
	Subtotal    float64 `json:"subtotal"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
}

type CheckoutResponse struct {
	Sale    Sale            `json:"sale"`
	Items   []SaleLineItem  `json:"items"`
	Summary CheckoutSummary `json:"summary"`
}

type PriceQuoteRequest struct {
	ProductID        string  `json:"product_id"`
	QuantityOrWeight float64 `json:"quantity_or_weight"`
}

type PriceQuoteResponse struct {
	ProductID        string  `json:"product_id"`
	Total            float64 `json:"total"`
	UnitPriceUsed    float64 `json:"unit_price_used"`
	DisplayUnitPrice float64 `json:"display_unit_price"`
}

type RestockRequest struct {
	Quantity float64 `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

type StockAdjustmentRequest struct {
	Delta float64 `json:"delta"`
	Notes string  `json:"notes,omitempty"`
}

type WeightReportSummary struct {
	TotalWeight   float64 `json:"total_weight"`
	TotalRevenue  float64 `json:"total_revenue"`
	LineItemCount int     `json:"line_item_count"`
	AverageWeight float64 `json:"average_weight"`
}

type ProductWeightStats struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	TotalWeight float64 `json:"total_weight"`
	Revenue     float64 `json:"revenue"`
	SaleCount   int     `json:"sale_count"`
}

type WeightReport struct {
	StartDate   string               `json:"start_date"`
	EndDate     string               `json:"end_date"`
	Summary     WeightReportSummary  `json:"summary"`
	TopProducts []ProductWeightStats `json:"top_products_by_weight"`
	SalesCount  int                  `json:"sales_count"`
}

type MovementListResponse struct {
	Movements []InventoryMovement `json:"movements"`
}
