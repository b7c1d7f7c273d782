package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidPrice = errors.New("price must be zero or greater")
	ErrInvalidStock = errors.New("stock must be zero or greater")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	Get(ctx context.Context, productID string) (Product, error)
	Upsert(ctx context.Context, p *Product) error

	// LockWithTx reads a product under a row lock so that a concurrent
	// add-to-cart or checkout cannot race past the stock check.
	LockWithTx(ctx context.Context, tx pgx.Tx, productID string) (Product, error)
	// DecrementWithTx subtracts qty from the product's stock. Callers must
	// hold the row lock and have verified qty <= stock; the CHECK constraint
	// on the column is the last line of defence.
	DecrementWithTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (Product, error) {
	var p Product
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, price, stock, category, rating
		FROM products WHERE id=$1
	`, productID)
	if err := row.Scan(&p.ID, &p.Title, &p.Price, &p.Stock, &p.Category, &p.Rating); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, p *Product) error {
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Rating.IsZero() {
		p.Rating = decimal.NewFromInt(5)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, title, price, stock, category, rating)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title=EXCLUDED.title, price=EXCLUDED.price, stock=EXCLUDED.stock,
		    category=EXCLUDED.category, rating=EXCLUDED.rating
	`, p.ID, p.Title, p.Price, p.Stock, p.Category, p.Rating)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LockWithTx(ctx context.Context, tx pgx.Tx, productID string) (Product, error) {
	var p Product
	row := tx.QueryRow(ctx, `
		SELECT id, title, price, stock, category, rating
		FROM products WHERE id=$1
		FOR UPDATE
	`, productID)
	if err := row.Scan(&p.ID, &p.Title, &p.Price, &p.Stock, &p.Category, &p.Rating); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) DecrementWithTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2 WHERE id=$1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
