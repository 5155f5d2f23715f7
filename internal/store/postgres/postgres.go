// Package postgres implements store.Store on PostgreSQL. Row locks are
// SELECT ... FOR UPDATE inside a pgx transaction, bounded by lock_timeout.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
	codeDeadlockDetected = "40P01"
	codeSerialization    = "40001"
)

// Store is a store.Store backed by a pgx connection pool.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, lockTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(pool, lockTimeout, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, lockTimeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, lockTimeout: lockTimeout, logger: logger}
}

// Migrate applies the schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info("schema applied")
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithinTx runs fn in a database transaction with lock_timeout set for
// its duration. Lock timeouts and deadlocks surface as
// *domain.ContentionError.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
		fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	if err := fn(&pgTx{tx: tx, lockTimeout: s.lockTimeout}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit", s.lockTimeout)
	}
	committed = true
	return nil
}

// CreateCustomer inserts the customer and its opening asset rows in one
// transaction.
func (s *Store) CreateCustomer(ctx context.Context, c *domain.Customer, assets []*domain.Asset) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO customers (customer_id, username, password_hash, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.CustomerID, c.Username, c.PasswordHash, c.Email, string(c.Role), c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCustomerAlreadyExists
		}
		return fmt.Errorf("insert customer: %w", err)
	}

	for _, a := range assets {
		if err := a.Check(); err != nil {
			return err
		}
		if err := upsertAsset(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

const customerColumns = `customer_id, username, password_hash, email, role, created_at`

// GetCustomer retrieves a customer by ID.
func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, s.pool, customerID)
}

// GetCustomerByUsername retrieves a customer by login name.
func (s *Store) GetCustomerByUsername(ctx context.Context, username string) (*domain.Customer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE username = $1`, username)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("username %s: %w", username, domain.ErrCustomerNotFound)
	}
	return c, err
}

// CountCustomers returns the number of provisioned customers.
func (s *Store) CountCustomers(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

const assetColumns = `customer_id, symbol, size::text, usable_size::text, updated_at`

// GetAsset reads a committed asset row without locking it.
func (s *Store) GetAsset(ctx context.Context, customerID, symbol string) (*domain.Asset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE customer_id = $1 AND symbol = $2`,
		customerID, symbol)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("asset %s for customer %s: %w", symbol, customerID, domain.ErrAssetNotFound)
	}
	return a, err
}

// ListAssets returns the customer's asset rows ordered by symbol.
func (s *Store) ListAssets(ctx context.Context, customerID, symbol string) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE customer_id = $1`
	args := []any{customerID}
	if symbol != "" {
		query += ` AND symbol = $2`
		args = append(args, symbol)
	}
	query += ` ORDER BY symbol`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

const orderColumns = `order_id, customer_id, asset_name, side, size::text, price::text, status, create_date, updated_at`

// GetOrder reads a committed order without locking it.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return o, err
}

// ListOrders returns matching orders newest first.
func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]*domain.Order, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.StartDate != nil {
		add("create_date >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("create_date <= $%d", *f.EndDate)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY create_date DESC, order_id`
	return s.queryOrders(ctx, query, args...)
}

// ListPendingOrdersBefore returns PENDING orders created before cutoff,
// oldest first.
func (s *Store) ListPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'PENDING' AND create_date < $1
		ORDER BY create_date, order_id
		LIMIT $2
	`, cutoff, limit)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// pgTx is a store.Tx over one pgx transaction.
type pgTx struct {
	tx          pgx.Tx
	lockTimeout time.Duration
}

func (t *pgTx) GetAssetForUpdate(ctx context.Context, customerID, symbol string) (*domain.Asset, error) {
	key := domain.AssetKey(customerID, symbol)
	query := `SELECT ` + assetColumns + ` FROM assets WHERE customer_id = $1 AND symbol = $2 FOR UPDATE`

	a, err := scanAsset(t.tx.QueryRow(ctx, query, customerID, symbol))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError(err, key, t.lockTimeout)
	}

	// No row to lock. Serialize first acquisition on an advisory lock
	// and look again in case a concurrent creator committed meanwhile.
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return nil, mapError(err, key, t.lockTimeout)
	}
	a, err = scanAsset(t.tx.QueryRow(ctx, query, customerID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("asset %s for customer %s: %w", symbol, customerID, domain.ErrAssetNotFound)
	}
	if err != nil {
		return nil, mapError(err, key, t.lockTimeout)
	}
	return a, nil
}

func (t *pgTx) SaveAsset(ctx context.Context, a *domain.Asset) error {
	if err := a.Check(); err != nil {
		return err
	}
	return mapError(upsertAsset(ctx, t.tx, a), a.Key(), t.lockTimeout)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1 FOR UPDATE`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, mapError(err, domain.OrderKey(orderID), t.lockTimeout)
	}
	return o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (order_id, customer_id, asset_name, side, size, price, status, create_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.OrderID, o.CustomerID, o.AssetName, string(o.Side), o.Size.String(), o.Price.String(),
		string(o.Status), o.CreateDate, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	return nil
}

func (t *pgTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = $2 WHERE order_id = $3
	`, string(o.Status), o.UpdatedAt, o.OrderID)
	if err != nil {
		return mapError(err, o.Key(), t.lockTimeout)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", o.OrderID, domain.ErrOrderNotFound)
	}
	return nil
}

func (t *pgTx) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, customerID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getCustomer(ctx context.Context, q querier, customerID string) (*domain.Customer, error) {
	row := q.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE customer_id = $1`, customerID)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", customerID, domain.ErrCustomerNotFound)
	}
	return c, err
}

// errAmountScale reports an amount NUMERIC(19,2) would round on write.
var errAmountScale = fmt.Errorf("amount exceeds %d decimal places", domain.AmountScale)

func upsertAsset(ctx context.Context, q querier, a *domain.Asset) error {
	for _, v := range []decimal.Decimal{a.Size, a.UsableSize} {
		if domain.CheckScale("size", v) != nil {
			return fmt.Errorf("save asset %s: %s: %w", a.Key(), v, errAmountScale)
		}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO assets (customer_id, symbol, size, usable_size, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id, symbol) DO UPDATE
		SET size = EXCLUDED.size, usable_size = EXCLUDED.usable_size, updated_at = EXCLUDED.updated_at
	`, a.CustomerID, a.Symbol, a.Size.String(), a.UsableSize.String(), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save asset %s: %w", a.Key(), err)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	var role string
	if err := row.Scan(&c.CustomerID, &c.Username, &c.PasswordHash, &c.Email, &role, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Role = domain.Role(role)
	return &c, nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var a domain.Asset
	var sizeStr, usableStr string
	if err := row.Scan(&a.CustomerID, &a.Symbol, &sizeStr, &usableStr, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Size, err = decimal.NewFromString(sizeStr); err != nil {
		return nil, fmt.Errorf("parse size: %w", err)
	}
	if a.UsableSize, err = decimal.NewFromString(usableStr); err != nil {
		return nil, fmt.Errorf("parse usable size: %w", err)
	}
	return &a, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var side, status, sizeStr, priceStr string
	if err := row.Scan(&o.OrderID, &o.CustomerID, &o.AssetName, &side, &sizeStr, &priceStr,
		&status, &o.CreateDate, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	var err error
	if o.Size, err = decimal.NewFromString(sizeStr); err != nil {
		return nil, fmt.Errorf("parse size: %w", err)
	}
	if o.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return &o, nil
}

// mapError converts lock waits, deadlocks and racing first inserts into
// *domain.ContentionError. Other errors pass through.
func mapError(err error, resource string, wait time.Duration) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerialization, codeUniqueViolation:
			return &domain.ContentionError{Resource: resource, Wait: wait}
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}
