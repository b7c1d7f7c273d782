package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordmart/shopcore/internal/cart"
	"github.com/nordmart/shopcore/internal/order"
	"github.com/nordmart/shopcore/internal/payment"
	"github.com/nordmart/shopcore/internal/shipping"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	lastTx *fakeTx
	begun  int
}

func (p *fakePool) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	p.lastTx = &fakeTx{}
	p.begun++
	return p.lastTx, nil
}

type fakeVerifier struct {
	conf payment.Confirmation
	err  error
}

func (v *fakeVerifier) Verify(_ context.Context, reference string) (payment.Confirmation, error) {
	if v.err != nil {
		return payment.Confirmation{}, v.err
	}
	c := v.conf
	c.Reference = reference
	return c, nil
}

type fakeCarts struct {
	lines   []cart.LineStock
	cleared bool
	err     error
}

func (c *fakeCarts) ReconcileWithTx(_ context.Context, _ pgx.Tx, userID string) (*cart.Cart, []cart.LineStock, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	total := 0
	for _, ls := range c.lines {
		total += ls.Count
	}
	return &cart.Cart{ID: "cart-1", UserID: userID, TotalItems: total, Lines: toLines(c.lines)}, c.lines, nil
}

func toLines(ls []cart.LineStock) []cart.Line {
	out := make([]cart.Line, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Line)
	}
	return out
}

func (c *fakeCarts) ClearWithTx(_ context.Context, _ pgx.Tx, _ string) error {
	c.cleared = true
	return nil
}

type fakeShipping struct {
	info *shipping.Info
	err  error
}

func (s *fakeShipping) SelectedWithTx(_ context.Context, _ pgx.Tx, _ string) (*shipping.Info, error) {
	return s.info, s.err
}

type fakeOrders struct {
	created *order.Order
	err     error
}

func (o *fakeOrders) CreateWithTx(_ context.Context, _ pgx.Tx, ord *order.Order) error {
	if o.err != nil {
		return o.err
	}
	ord.ID = "order-1"
	o.created = ord
	return nil
}

type fakeStock struct {
	decremented map[string]int
	failOn      string
}

func (s *fakeStock) DecrementWithTx(_ context.Context, _ pgx.Tx, productID string, qty int) error {
	if productID == s.failOn {
		return errors.New("stock write failed")
	}
	if s.decremented == nil {
		s.decremented = make(map[string]int)
	}
	s.decremented[productID] += qty
	return nil
}

type fakePublisher struct {
	published []*order.Order
	err       error
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, o *order.Order) error {
	p.published = append(p.published, o)
	return p.err
}

type fixture struct {
	pool      *fakePool
	verifier  *fakeVerifier
	carts     *fakeCarts
	shipping  *fakeShipping
	orders    *fakeOrders
	stock     *fakeStock
	publisher *fakePublisher
	coord     *Coordinator
}

func lineStock(productID string, count, stock int, price string) cart.LineStock {
	return cart.LineStock{
		Line:  cart.Line{ID: "line-" + productID, ProductID: productID, Count: count},
		Stock: stock,
		Price: decimal.RequireFromString(price),
	}
}

func newFixture() *fixture {
	f := &fixture{
		pool:     &fakePool{},
		verifier: &fakeVerifier{conf: payment.Confirmation{Approved: true, UserID: "user-1"}},
		carts: &fakeCarts{lines: []cart.LineStock{
			lineStock("p1", 11, 20, "5.00"),
		}},
		shipping: &fakeShipping{info: &shipping.Info{
			ID:       "ship-1",
			UserID:   "user-1",
			Selected: true,
			Price:    decimal.RequireFromString("1400"),
		}},
		orders:    &fakeOrders{},
		stock:     &fakeStock{},
		publisher: &fakePublisher{},
	}
	f.coord = NewCoordinator(f.pool, f.verifier, f.carts, f.shipping, f.orders, f.stock, f.publisher, nil)
	return f
}

func TestCreateOrderFromPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("approved payment creates the order atomically", func(t *testing.T) {
		f := newFixture()

		res, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.NoError(t, err)

		assert.Equal(t, StateOrderCreated, res.State)
		assert.Equal(t, "user-1", res.UserID)
		require.NotNil(t, res.Order)
		assert.Equal(t, "order-1", res.Order.ID)
		assert.Equal(t, "ship-1", res.Order.ShippingInfoID)
		assert.True(t, res.Order.TotalPrice.Equal(decimal.RequireFromString("1455")),
			"total = %s", res.Order.TotalPrice)
		require.Len(t, res.Order.Lines, 1)
		assert.Equal(t, 11, res.Order.Lines[0].Count)

		assert.Equal(t, 11, f.stock.decremented["p1"])
		assert.True(t, f.carts.cleared, "cart must be cleared")
		require.NotNil(t, f.pool.lastTx)
		assert.True(t, f.pool.lastTx.committed)
		require.Len(t, f.publisher.published, 1)
		assert.Equal(t, "order-1", f.publisher.published[0].ID)
	})

	t.Run("rejected payment touches nothing", func(t *testing.T) {
		f := newFixture()
		f.verifier.conf.Approved = false

		res, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.NoError(t, err)

		assert.Equal(t, StatePaymentRejected, res.State)
		assert.Nil(t, res.Order)
		assert.Zero(t, f.pool.begun, "no transaction may start")
		assert.False(t, f.carts.cleared)
		assert.Nil(t, f.orders.created)
		assert.Empty(t, f.stock.decremented)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("unknown reference surfaces the verifier error", func(t *testing.T) {
		f := newFixture()
		f.verifier.err = payment.ErrInvalidPayment

		res, err := f.coord.CreateOrderFromPayment(ctx, "missing")
		require.ErrorIs(t, err, payment.ErrInvalidPayment)
		assert.Equal(t, StatePendingPaymentCheck, res.State)
		assert.Zero(t, f.pool.begun)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture()
		f.carts.lines = nil

		_, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.ErrorIs(t, err, ErrEmptyCart)
		require.NotNil(t, f.pool.lastTx)
		assert.True(t, f.pool.lastTx.rolledBack)
		assert.Nil(t, f.orders.created)
	})

	t.Run("no shipping info selected", func(t *testing.T) {
		f := newFixture()
		f.shipping.info = nil

		_, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.ErrorIs(t, err, ErrNoShippingSelected)
		assert.True(t, f.pool.lastTx.rolledBack)
		assert.Nil(t, f.orders.created)
	})

	t.Run("stock write failure rolls the whole sequence back", func(t *testing.T) {
		f := newFixture()
		f.carts.lines = []cart.LineStock{
			lineStock("p1", 2, 10, "5.00"),
			lineStock("p2", 1, 10, "7.50"),
		}
		f.stock.failOn = "p2"

		_, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.Error(t, err)
		assert.True(t, f.pool.lastTx.rolledBack)
		assert.False(t, f.pool.lastTx.committed)
		assert.False(t, f.carts.cleared, "cart clear runs after the failed decrement")
		assert.Empty(t, f.publisher.published)
	})

	t.Run("order create failure rolls back", func(t *testing.T) {
		f := newFixture()
		f.orders.err = errors.New("insert failed")

		_, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.Error(t, err)
		assert.True(t, f.pool.lastTx.rolledBack)
		assert.Empty(t, f.stock.decremented)
		assert.False(t, f.carts.cleared)
	})

	t.Run("publish failure does not fail the checkout", func(t *testing.T) {
		f := newFixture()
		f.publisher.err = errors.New("broker down")

		res, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, StateOrderCreated, res.State)
	})

	t.Run("nil publisher is allowed", func(t *testing.T) {
		f := newFixture()
		f.coord = NewCoordinator(f.pool, f.verifier, f.carts, f.shipping, f.orders, f.stock, nil, nil)

		res, err := f.coord.CreateOrderFromPayment(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, StateOrderCreated, res.State)
	})
}
