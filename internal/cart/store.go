package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query subset shared by *pgxpool.Pool and pgx.Tx, so every
// store method can run either standalone or inside a caller-owned
// transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store holds the SQL primitives for the cart aggregate. Business rules
// (reconciliation, stock checks) live in Service; the store only reads and
// writes rows.
type Store interface {
	GetOrCreate(ctx context.Context, q Querier, userID string) (*Cart, error)
	Lines(ctx context.Context, q Querier, cartID string) ([]Line, error)
	// LinesForUpdate joins each line with the product's current stock and
	// price, locking the product rows in a stable order.
	LinesForUpdate(ctx context.Context, q Querier, cartID string) ([]LineStock, error)
	UpsertLine(ctx context.Context, q Querier, cartID, productID string, count int) (*Line, error)
	SetLineCount(ctx context.Context, q Querier, lineID string, count int) error
	DeleteLine(ctx context.Context, q Querier, cartID, productID string) (int, error)
	DeleteAllLines(ctx context.Context, q Querier, cartID string) error
	// RefreshTotals recomputes total_items from the lines and returns the
	// new value.
	RefreshTotals(ctx context.Context, q Querier, cartID string) (int, error)
}

type PostgresStore struct{}

func NewPostgresStore() *PostgresStore {
	return &PostgresStore{}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, q Querier, userID string) (*Cart, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row, so two
	// concurrent first accesses converge on one cart.
	var c Cart
	err := q.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, total_items, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, total_items, updated_at
	`, uuid.NewString(), userID).Scan(&c.ID, &c.UserID, &c.TotalItems, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) Lines(ctx context.Context, q Querier, cartID string) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT id, product_id, count FROM cart_items
		WHERE cart_id=$1 ORDER BY product_id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Count); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return lines, nil
}

func (s *PostgresStore) LinesForUpdate(ctx context.Context, q Querier, cartID string) ([]LineStock, error) {
	// ORDER BY product_id keeps the lock acquisition order stable across
	// concurrent carts sharing products.
	rows, err := q.Query(ctx, `
		SELECT ci.id, ci.product_id, ci.count, p.stock, p.price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1
		ORDER BY ci.product_id
		FOR UPDATE OF ci, p
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("lock cart lines: %w", err)
	}
	defer rows.Close()

	var lines []LineStock
	for rows.Next() {
		var ls LineStock
		if err := rows.Scan(&ls.ID, &ls.ProductID, &ls.Count, &ls.Stock, &ls.Price); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return lines, nil
}

func (s *PostgresStore) UpsertLine(ctx context.Context, q Querier, cartID, productID string, count int) (*Line, error) {
	var l Line
	err := q.QueryRow(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET count = EXCLUDED.count
		RETURNING id, product_id, count
	`, uuid.NewString(), cartID, productID, count).Scan(&l.ID, &l.ProductID, &l.Count)
	if err != nil {
		return nil, fmt.Errorf("upsert cart line: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) SetLineCount(ctx context.Context, q Querier, lineID string, count int) error {
	tag, err := q.Exec(ctx, `UPDATE cart_items SET count=$2 WHERE id=$1`, lineID, count)
	if err != nil {
		return fmt.Errorf("set line count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteLine(ctx context.Context, q Querier, cartID, productID string) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2
		RETURNING count
	`, cartID, productID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("delete cart line: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteAllLines(ctx context.Context, q Querier, cartID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	return nil
}

func (s *PostgresStore) RefreshTotals(ctx context.Context, q Querier, cartID string) (int, error) {
	var total int
	err := q.QueryRow(ctx, `
		UPDATE carts
		SET total_items = COALESCE((SELECT SUM(count) FROM cart_items WHERE cart_id=$1), 0),
		    updated_at = now()
		WHERE id=$1
		RETURNING total_items
	`, cartID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("refresh cart totals: %w", err)
	}
	return total, nil
}
