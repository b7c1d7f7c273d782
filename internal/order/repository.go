package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	// CreateWithTx writes the order and its lines inside the caller's
	// transaction, so checkout commits order, stock decrement and cart
	// clear as one unit.
	CreateWithTx(ctx context.Context, tx pgx.Tx, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// Lines returns the order's lines; ErrEmptyOrder when there are none.
	Lines(ctx context.Context, orderID string) ([]Line, error)
	// UpdateLineCount is the administrative correction path. The order
	// total is repriced in the same transaction.
	UpdateLineCount(ctx context.Context, orderID, productID string, count int) (*Order, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, shipping_info_id, shipping_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.UserID, o.ShippingInfoID, o.ShippingPrice, o.TotalPrice, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Lines {
		if o.Lines[i].ID == "" {
			o.Lines[i].ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, count)
			VALUES ($1, $2, $3, $4)
		`, o.Lines[i].ID, o.ID, o.Lines[i].ProductID, o.Lines[i].Count)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, shipping_info_id, shipping_price, total_price, created_at
		FROM orders WHERE id=$1
	`, orderID).Scan(&o.ID, &o.UserID, &o.ShippingInfoID, &o.ShippingPrice, &o.TotalPrice, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.lines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, shipping_info_id, shipping_price, total_price, created_at
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ShippingInfoID, &o.ShippingPrice, &o.TotalPrice, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range orders {
		lines, err := r.lines(ctx, orders[i].ID)
		if err != nil && !errors.Is(err, ErrEmptyOrder) {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (r *PostgresRepository) Lines(ctx context.Context, orderID string) ([]Line, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	lines, err := r.lines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	return lines, nil
}

func (r *PostgresRepository) lines(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, count FROM order_items
		WHERE order_id=$1 ORDER BY product_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Count); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return lines, nil
}

func (r *PostgresRepository) UpdateLineCount(ctx context.Context, orderID, productID string, count int) (*Order, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lineID string
	err = tx.QueryRow(ctx, `
		UPDATE order_items SET count=$3
		WHERE order_id=$1 AND product_id=$2
		RETURNING id
	`, orderID, productID, count).Scan(&lineID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("update order line: %w", err)
	}

	// Reprice the total from the corrected lines at current product prices,
	// keeping the recorded shipping fee.
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET total_price = shipping_price + COALESCE((
			SELECT SUM(oi.count * p.price)
			FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id=$1
		), 0)
		WHERE id=$1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("reprice order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.GetByID(ctx, orderID)
}
