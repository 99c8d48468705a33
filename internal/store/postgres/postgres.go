package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"scalepos/backend/internal/domain"
	"scalepos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit_price, unit, sell_by_weight, stock_quantity, min_stock, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Unit, &p.SellByWeight, &p.StockQuantity, &p.MinStock, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price, unit, sell_by_weight, stock_quantity, min_stock, active, created_at
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Unit, &p.SellByWeight, &p.StockQuantity, &p.MinStock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.UnitPrice <= 0 || !product.Unit.Valid() {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price, unit, sell_by_weight, stock_quantity, min_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.Name, product.UnitPrice, product.Unit, product.SellByWeight,
		product.StockQuantity, product.MinStock, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.UnitPrice <= 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, unit_price = $3, min_stock = $4, active = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.UnitPrice, product.MinStock, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) SetProductStock(ctx context.Context, id string, newStock float64) error {
	if newStock < 0 {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = $2, updated_at = now()
		WHERE id = $1
	`, id, newStock)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// adjustStockQuery applies a delta in one statement so concurrent sales can
// never base their writes on the same stale read. GREATEST clamps at zero.
const adjustStockQuery = `
	WITH prev AS (
		SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE
	)
	UPDATE products p
	SET stock_quantity = GREATEST(0, p.stock_quantity + $2), updated_at = now()
	FROM prev
	WHERE p.id = $1
	RETURNING prev.stock_quantity, p.stock_quantity
`

func (s *Store) AdjustStock(ctx context.Context, id string, delta float64) (store.StockLevel, error) {
	var level store.StockLevel
	err := s.db.QueryRowContext(ctx, adjustStockQuery, id, delta).Scan(&level.Previous, &level.New)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.StockLevel{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return store.StockLevel{}, err
	}
	return level, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, deductions []store.StockDeduction) (*domain.Sale, []domain.InventoryMovement, error) {
	if len(sale.Items) == 0 {
		return nil, nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, sale_number, customer_id, cashier_id, subtotal, tax_amount, total_amount,
			payment_method, status, location_id, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.SaleNumber, sale.CustomerID, sale.CashierID, sale.Subtotal, sale.TaxAmount,
		sale.TotalAmount, sale.PaymentMethod, sale.Status, sale.LocationID, nullIfEmpty(sale.Notes), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("sale number %s: %w", sale.SaleNumber, store.ErrConflict)
		}
		return nil, nil, err
	}

	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = uuid.NewString()
		}
		sale.Items[i].SaleID = sale.ID
		item := sale.Items[i]
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_line_items (id, sale_id, product_id, product_name, quantity, weight, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Quantity, item.Weight, item.UnitPrice, item.LineTotal)
		if err != nil {
			return nil, nil, err
		}
	}

	// Deductions run one at a time in cart order so the movement log reads in
	// the order the cashier rang the items up.
	movements := make([]domain.InventoryMovement, 0, len(deductions))
	for _, d := range deductions {
		var level store.StockLevel
		err := pgTx.QueryRowContext(ctx, adjustStockQuery, d.ProductID, -d.Amount).Scan(&level.Previous, &level.New)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, fmt.Errorf("product %s: %w", d.ProductID, store.ErrNotFound)
			}
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
		if err := insertMovementTx(ctx, pgTx, movement); err != nil {
			return nil, nil, err
		}
		movements = append(movements, movement)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	return &sale, movements, nil
}

func (s *Store) QuerySales(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_number, customer_id, cashier_id, subtotal, tax_amount, total_amount,
		       payment_method, status, location_id, COALESCE(notes, ''), created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]string, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.SaleNumber, &sale.CustomerID, &sale.CashierID,
			&sale.Subtotal, &sale.TaxAmount, &sale.TotalAmount, &sale.PaymentMethod,
			&sale.Status, &sale.LocationID, &sale.Notes, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		index[sale.ID] = len(sales)
		ids = append(ids, sale.ID)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, weight, unit_price, line_total
		FROM sale_line_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.SaleLineItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Weight, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		if i, ok := index[item.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

func (s *Store) InsertInventoryMovement(ctx context.Context, movement domain.InventoryMovement) error {
	if movement.ProductID == "" {
		return store.ErrValidation
	}
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, movement_type, quantity_delta, previous_stock, new_stock, reference_sale_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ProductID, movement.MovementType, movement.QuantityDelta,
		movement.PreviousStock, movement.NewStock, nullIfEmpty(movement.ReferenceSaleID),
		nullIfEmpty(movement.Notes), movement.CreatedAt)
	return err
}

func insertMovementTx(ctx context.Context, pgTx *sql.Tx, movement domain.InventoryMovement) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, movement_type, quantity_delta, previous_stock, new_stock, reference_sale_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ProductID, movement.MovementType, movement.QuantityDelta,
		movement.PreviousStock, movement.NewStock, nullIfEmpty(movement.ReferenceSaleID),
		nullIfEmpty(movement.Notes), movement.CreatedAt)
	return err
}

func (s *Store) ListInventoryMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, movement_type, quantity_delta, previous_stock, new_stock,
		       COALESCE(reference_sale_id, ''), COALESCE(notes, ''), created_at
		FROM inventory_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.MovementType, &m.QuantityDelta,
			&m.PreviousStock, &m.NewStock, &m.ReferenceSaleID, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.CustomerAccount) (*domain.CustomerAccount, error) {
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, total_spent, loyalty_points, last_visit)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, customer.TotalSpent, customer.LoyaltyPoints, customer.LastVisit)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerStats(ctx context.Context, id string) (*domain.CustomerAccount, error) {
	var c domain.CustomerAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, total_spent, loyalty_points, last_visit
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TotalSpent, &c.LoyaltyPoints, &c.LastVisit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.LastVisit = c.LastVisit.UTC()
	return &c, nil
}

// AccrueCustomerStats applies the deltas in a single UPDATE so concurrent
// accruals for the same customer cannot lose an increment.
func (s *Store) AccrueCustomerStats(ctx context.Context, id string, spentDelta float64, pointsDelta int, lastVisit time.Time) error {
	if pointsDelta < 0 {
		return fmt.Errorf("loyalty points may not decrease: %w", store.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET total_spent = ROUND((total_spent + $2)::numeric, 2), loyalty_points = loyalty_points + $3, last_visit = $4
		WHERE id = $1
	`, id, spentDelta, pointsDelta, lastVisit)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
