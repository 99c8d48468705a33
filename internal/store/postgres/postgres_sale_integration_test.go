package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"scalepos/backend/internal/domain"
	"scalepos/backend/internal/store"
)

func TestCreateSaleClampsStockAtZero(t *testing.T) {
	databaseURL := os.Getenv("SCALEPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SCALEPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-sale-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)
	saleNumber := fmt.Sprintf("SALE-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_line_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price, unit, sell_by_weight, stock_quantity, min_stock, active, created_at, updated_at)
		VALUES ($1, 'Integration Carton', 10.00, 'piece', false, 2, 0, true, now(), now())
	`, productID); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	sale := domain.Sale{
		ID:         saleID,
		SaleNumber: saleNumber,
		CashierID:  "cashier-it",
		Items: []domain.SaleLineItem{
			{ProductID: productID, ProductName: "Integration Carton", Quantity: 5, UnitPrice: 10.00, LineTotal: 50.00},
		},
		Subtotal:      50.00,
		TaxAmount:     8.00,
		TotalAmount:   58.00,
		PaymentMethod: "cash",
		LocationID:    "main-store",
	}
	deductions := []store.StockDeduction{{ProductID: productID, Amount: 5}}

	created, movements, err := s.CreateSale(ctx, sale, deductions)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.ID != saleID {
		t.Fatalf("expected sale id %s got %s", saleID, created.ID)
	}
	if len(movements) != 1 {
		t.Fatalf("expected 1 movement got %d", len(movements))
	}
	if movements[0].PreviousStock != 2 || movements[0].NewStock != 0 {
		t.Fatalf("expected stock 2 -> 0, got %g -> %g", movements[0].PreviousStock, movements[0].NewStock)
	}
	if movements[0].QuantityDelta != -5 {
		t.Fatalf("expected movement delta -5 got %g", movements[0].QuantityDelta)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQuantity != 0 {
		t.Fatalf("expected stock clamped at 0, got %g", product.StockQuantity)
	}
}
