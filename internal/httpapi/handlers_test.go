package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"scalepos/backend/internal/cache"
	"scalepos/backend/internal/domain"
	"scalepos/backend/internal/service"
	"scalepos/backend/internal/store/memory"
)

// newTestAPI builds a full API over an in-memory store and a real Service so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, service.Settings{})
	return New(svc, "*")
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestHandleSales_MixedCart(t *testing.T) {
	handler := newTestAPI(t).Handler()

	weight := 0.755
	rec := postJSON(t, handler, "/api/sales", domain.CheckoutRequest{
		CashierID:     "cashier-1",
		PaymentMethod: "cash",
		Items: []domain.CheckoutItem{
			{ProductID: "prod-beef", Weight: &weight},
			{ProductID: "prod-eggs", Quantity: 3},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Summary.TotalAmount != 69.83 {
		t.Fatalf("expected total 69.83, got %g", resp.Summary.TotalAmount)
	}
	if resp.Sale.SaleNumber == "" {
		t.Fatal("expected a sale number")
	}
}

func TestHandleSales_UnknownProduct(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := postJSON(t, handler, "/api/sales", domain.CheckoutRequest{
		CashierID:     "cashier-1",
		PaymentMethod: "cash",
		Items:         []domain.CheckoutItem{{ProductID: "prod-ghost", Quantity: 1}},
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSales_ExcessiveWeight(t *testing.T) {
	handler := newTestAPI(t).Handler()

	weight := 51.0
	rec := postJSON(t, handler, "/api/sales", domain.CheckoutRequest{
		CashierID:     "cashier-1",
		PaymentMethod: "cash",
		Items:         []domain.CheckoutItem{{ProductID: "prod-beef", Weight: &weight}},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSales_MethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandlePriceQuote_GramProduct(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := postJSON(t, handler, "/api/price-quote", domain.PriceQuoteRequest{
		ProductID:        "prod-saffron",
		QuantityOrWeight: 0.5,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.PriceQuoteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Total != 25.00 {
		t.Fatalf("expected total 25.00, got %g", resp.Total)
	}
	if resp.DisplayUnitPrice != 50.0 {
		t.Fatalf("expected display price 50, got %g", resp.DisplayUnitPrice)
	}
}

func TestHandleProducts_CreateAndList(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := postJSON(t, handler, "/api/products", domain.ProductCreateRequest{
		Name:         "Cheddar Wedge",
		UnitPrice:    18.00,
		Unit:         domain.UnitKilogram,
		SellByWeight: true,
		InitialStock: 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, req)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	found := false
	for _, p := range body.Products {
		if p.Name == "Cheddar Wedge" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected created product in listing")
	}
}

func TestHandleProducts_RejectsUnknownField(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := postJSON(t, handler, "/api/products", map[string]any{
		"name":       "Mystery",
		"unit_price": 1.00,
		"unit":       "piece",
		"flavor":     "grape",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestHandleRestockAndMovements(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := postJSON(t, handler, "/api/products/prod-bread/restock", domain.RestockRequest{
		Quantity: 10,
		Notes:    "weekly order",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var movement domain.InventoryMovement
	if err := json.NewDecoder(rec.Body).Decode(&movement); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if movement.NewStock != 50 {
		t.Fatalf("expected stock 50 after restock, got %g", movement.NewStock)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/products/prod-bread/movements", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, req)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	var list domain.MovementListResponse
	if err := json.NewDecoder(listRec.Body).Decode(&list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(list.Movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(list.Movements))
	}
	if list.Movements[0].MovementType != domain.MovementRestock {
		t.Fatalf("expected restock movement, got %s", list.Movements[0].MovementType)
	}
}

func TestHandleAdjust_NegativeDeltaClamps(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := postJSON(t, handler, "/api/products/prod-bread/adjust", domain.StockAdjustmentRequest{
		Delta: -100,
		Notes: "shrinkage audit",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var movement domain.InventoryMovement
	if err := json.NewDecoder(rec.Body).Decode(&movement); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if movement.NewStock != 0 {
		t.Fatalf("expected clamp at 0, got %g", movement.NewStock)
	}
}

func TestHandleCustomer(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/customers/cust-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var customer domain.CustomerAccount
	if err := json.NewDecoder(rec.Body).Decode(&customer); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if customer.ID != "cust-1" {
		t.Fatalf("expected cust-1, got %q", customer.ID)
	}

	missing := httptest.NewRequest(http.MethodGet, "/api/customers/cust-nobody", nil)
	missingRec := httptest.NewRecorder()
	handler.ServeHTTP(missingRec, missing)
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missingRec.Code)
	}
}

func TestHandleWeightReport_RequiresRange(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/weight", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without range, got %d", rec.Code)
	}

	ranged := httptest.NewRequest(http.MethodGet, "/api/reports/weight?start=2026-08-01&end=2026-08-31", nil)
	rangedRec := httptest.NewRecorder()
	handler.ServeHTTP(rangedRec, ranged)

	if rangedRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rangedRec.Code, rangedRec.Body.String())
	}
	var report domain.WeightReport
	if err := json.NewDecoder(rangedRec.Body).Decode(&report); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if report.StartDate != "2026-08-01" {
		t.Fatalf("expected start date echoed, got %q", report.StartDate)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected allow-origin header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
