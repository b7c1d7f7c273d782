package shipping

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Service enforces the selection rules: the first address a user creates is
// selected automatically, and switching the selection deselects the old row
// and selects the new one in a single transaction.
type Service struct {
	pool   DBPool
	store  Store
	prices PriceLookup
}

func NewService(pool DBPool, store Store, prices PriceLookup) *Service {
	return &Service{pool: pool, store: store, prices: prices}
}

// Create stores a new shipping address for the user, caching the shipping
// fee from the price lookup. The new row is auto-selected when the user has
// no selected address yet.
func (s *Service) Create(ctx context.Context, userID, address, receiver, receiverID string) (*Info, error) {
	if userID == "" || address == "" || receiver == "" {
		return nil, ErrInvalidArgument
	}

	price, err := s.prices.PriceFor(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("shipping price lookup: %w", err)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("shipping price lookup returned negative price %s", price)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	hasSelected, err := s.store.HasSelected(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	info := &Info{
		UserID:     userID,
		Address:    address,
		Receiver:   receiver,
		ReceiverID: receiverID,
		Selected:   !hasSelected,
		Price:      price,
	}
	if err := s.store.Insert(ctx, tx, info); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}

// Select makes the given shipping info the user's selected one, atomically
// deselecting the previous selection. Selecting the already-selected row is
// a no-op. ErrForbidden if the row belongs to another user.
func (s *Service) Select(ctx context.Context, userID, id string) (*Info, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	info, err := s.store.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if info.UserID != userID {
		return nil, ErrForbidden
	}
	if info.Selected {
		// Already the selection; nothing to write, and no transient
		// deselect-reselect becomes observable.
		return info, tx.Commit(ctx)
	}

	if err := s.store.DeselectAll(ctx, tx, userID); err != nil {
		return nil, err
	}
	if err := s.store.SetSelected(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	info.Selected = true
	return info, nil
}

// Selected returns the user's selected shipping info, or nil when the user
// has none.
func (s *Service) Selected(ctx context.Context, userID string) (*Info, error) {
	return s.store.Selected(ctx, s.pool, userID)
}

// SelectedWithTx reads the selection inside a caller-owned transaction;
// checkout snapshots the shipping fee through it.
func (s *Service) SelectedWithTx(ctx context.Context, tx pgx.Tx, userID string) (*Info, error) {
	return s.store.Selected(ctx, tx, userID)
}

// List returns all of the user's shipping addresses, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]Info, error) {
	return s.store.ListByUser(ctx, s.pool, userID)
}
