package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nordmart/shopcore/internal/metrics"
	"github.com/nordmart/shopcore/internal/product"
)

// ProductLedger is the slice of the product repository the cart needs:
// reading stock and price under a row lock for products not yet in the cart.
type ProductLedger interface {
	LockWithTx(ctx context.Context, tx pgx.Tx, productID string) (product.Product, error)
}

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Service implements the cart aggregate rules: one line per product, counts
// truthful against live stock, total_items recomputed at every commit point.
// Every mutating operation runs reconcile-then-check-then-write inside one
// transaction with the product rows locked, so two concurrent adds cannot
// both pass a stale stock check.
type Service struct {
	pool     DBPool
	store    Store
	products ProductLedger
}

func NewService(pool DBPool, store Store, products ProductLedger) *Service {
	return &Service{pool: pool, store: store, products: products}
}

// Get returns the user's cart, creating it lazily on first access. It is a
// plain read: stock reconciliation is an explicit operation, never a side
// effect of a getter.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.store.GetOrCreate(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if c.Lines, err = s.store.Lines(ctx, s.pool, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// AddLine adds requested count of a product, merging into an existing line
// if one exists. The increment is rejected whole with ErrInsufficientStock
// when the merged count would exceed stock; the cart is then left exactly as
// it was before the call.
func (s *Service) AddLine(ctx context.Context, userID, productID string, count int) (*Line, error) {
	if productID == "" || count <= 0 {
		return nil, ErrInvalidArgument
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := s.store.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Reconcile first so a stale over-count from a previous shortage cannot
	// mask the real capacity left for this add.
	lines, _, err := s.reconcile(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}

	existing := 0
	stock := -1
	for _, ls := range lines {
		if ls.ProductID == productID {
			existing = ls.Count
			stock = ls.Stock
			break
		}
	}
	if stock < 0 {
		p, err := s.products.LockWithTx(ctx, tx, productID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown product %q", ErrInvalidArgument, productID)
			}
			return nil, err
		}
		stock = p.Stock
	}

	newTotal := existing + count
	if newTotal > stock {
		return nil, fmt.Errorf("%w: want %d of %q, %d available", ErrInsufficientStock, newTotal, productID, stock)
	}

	line, err := s.store.UpsertLine(ctx, tx, c.ID, productID, newTotal)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.RefreshTotals(ctx, tx, c.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return line, nil
}

// RemoveLine deletes the line for a product. ErrNotFound if no such line.
func (s *Service) RemoveLine(ctx context.Context, userID, productID string) error {
	if productID == "" {
		return ErrInvalidArgument
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := s.store.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if _, _, err := s.reconcile(ctx, tx, c.ID); err != nil {
		return err
	}
	if _, err := s.store.DeleteLine(ctx, tx, c.ID, productID); err != nil {
		return err
	}
	if _, err := s.store.RefreshTotals(ctx, tx, c.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Clear removes all lines and resets total_items. Idempotent.
func (s *Service) Clear(ctx context.Context, userID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.ClearWithTx(ctx, tx, userID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ClearWithTx is Clear running inside a caller-owned transaction; checkout
// uses it so the cart empties atomically with the order write.
func (s *Service) ClearWithTx(ctx context.Context, tx pgx.Tx, userID string) error {
	c, err := s.store.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAllLines(ctx, tx, c.ID); err != nil {
		return err
	}
	_, err = s.store.RefreshTotals(ctx, tx, c.ID)
	return err
}

// Reconcile clamps every line's count down to the product's current stock
// and recomputes total_items, so the cart invariant holds even after a
// silent correction. Lines whose product is out of stock are dropped.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Cart, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, _, err := s.ReconcileWithTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// ReconcileWithTx reconciles inside a caller-owned transaction and returns
// the cart together with the locked line/stock/price snapshot. Checkout
// prices its order lines from this snapshot while the locks are held.
func (s *Service) ReconcileWithTx(ctx context.Context, tx pgx.Tx, userID string) (*Cart, []LineStock, error) {
	c, err := s.store.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	lines, total, err := s.reconcile(ctx, tx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	c.TotalItems = total
	c.Lines = toLines(lines)
	return c, lines, nil
}

// TotalPrice sums count*price over the reconciled lines. Zero for an empty
// cart.
func (s *Service) TotalPrice(ctx context.Context, userID string) (decimal.Decimal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := s.store.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	lines, _, err := s.reconcile(ctx, tx, c.ID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, ls := range lines {
		total = total.Add(ls.Price.Mul(decimal.NewFromInt(int64(ls.Count))))
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

func (s *Service) reconcile(ctx context.Context, tx pgx.Tx, cartID string) ([]LineStock, int, error) {
	lines, err := s.store.LinesForUpdate(ctx, tx, cartID)
	if err != nil {
		return nil, 0, err
	}

	kept := lines[:0]
	for _, ls := range lines {
		if ls.Count > ls.Stock {
			metrics.CartLinesReconciled.Inc()
			if ls.Stock <= 0 {
				if _, err := s.store.DeleteLine(ctx, tx, cartID, ls.ProductID); err != nil {
					return nil, 0, err
				}
				continue
			}
			if err := s.store.SetLineCount(ctx, tx, ls.ID, ls.Stock); err != nil {
				return nil, 0, err
			}
			ls.Count = ls.Stock
		}
		kept = append(kept, ls)
	}

	total, err := s.store.RefreshTotals(ctx, tx, cartID)
	if err != nil {
		return nil, 0, err
	}
	return kept, total, nil
}
