package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nordmart/shopcore/internal/cart"
	"github.com/nordmart/shopcore/internal/metrics"
	"github.com/nordmart/shopcore/internal/order"
	"github.com/nordmart/shopcore/internal/payment"
	"github.com/nordmart/shopcore/internal/shipping"
)

var (
	// ErrEmptyCart rejects checkout of a cart with no lines left after
	// reconciliation; an order must own at least one line.
	ErrEmptyCart = errors.New("cart has no lines to check out")
	// ErrNoShippingSelected rejects checkout for a buyer without a
	// selected shipping address to snapshot.
	ErrNoShippingSelected = errors.New("no shipping info selected")
)

// State is the coordinator's terminal outcome for one payment reference.
type State string

const (
	StatePendingPaymentCheck State = "pending_payment_check"
	StatePaymentRejected     State = "payment_rejected"
	StateOrderCreated        State = "order_created"
)

// Result is returned to the caller: the terminal state, and on
// StateOrderCreated the persisted order plus buyer summary.
type Result struct {
	State   State                `json:"state"`
	UserID  string               `json:"userId,omitempty"`
	Order   *order.Order         `json:"order,omitempty"`
	Payment payment.Confirmation `json:"payment"`
}

// CartService is the slice of the cart aggregate checkout needs: the locked
// reconcile snapshot to price from, and the atomic clear.
type CartService interface {
	ReconcileWithTx(ctx context.Context, tx pgx.Tx, userID string) (*cart.Cart, []cart.LineStock, error)
	ClearWithTx(ctx context.Context, tx pgx.Tx, userID string) error
}

type ShippingService interface {
	SelectedWithTx(ctx context.Context, tx pgx.Tx, userID string) (*shipping.Info, error)
}

type OrderStore interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, o *order.Order) error
}

type StockLedger interface {
	DecrementWithTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error
}

// Publisher announces a committed order. Publishing is best effort; a
// brokerless deployment passes nil.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *order.Order) error
}

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Coordinator turns an approved payment confirmation into a persisted
// order, stock decrement and cart clear, all inside one transaction: a
// failure anywhere between order creation and cart clear rolls the whole
// sequence back.
type Coordinator struct {
	pool      DBPool
	verifier  payment.Verifier
	carts     CartService
	shipping  ShippingService
	orders    OrderStore
	stock     StockLedger
	publisher Publisher
	logger    *zap.Logger
}

func NewCoordinator(
	pool DBPool,
	verifier payment.Verifier,
	carts CartService,
	ship ShippingService,
	orders OrderStore,
	stock StockLedger,
	publisher Publisher,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		pool:      pool,
		verifier:  verifier,
		carts:     carts,
		shipping:  ship,
		orders:    orders,
		stock:     stock,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateOrderFromPayment runs the checkout workflow for an external payment
// reference. A rejected payment returns StatePaymentRejected and touches
// nothing; an unknown reference propagates payment.ErrInvalidPayment.
func (c *Coordinator) CreateOrderFromPayment(ctx context.Context, reference string) (Result, error) {
	conf, err := c.verifier.Verify(ctx, reference)
	if err != nil {
		metrics.CheckoutRejected.WithLabelValues("invalid_payment").Inc()
		return Result{State: StatePendingPaymentCheck}, err
	}

	if !conf.Approved {
		metrics.CheckoutRejected.WithLabelValues("payment_rejected").Inc()
		c.logger.Info("checkout rejected by payment service",
			zap.String("reference", reference),
			zap.String("user_id", conf.UserID))
		return Result{State: StatePaymentRejected, UserID: conf.UserID, Payment: conf}, nil
	}

	o, err := c.createOrder(ctx, conf.UserID)
	if err != nil {
		return Result{State: StatePendingPaymentCheck, UserID: conf.UserID, Payment: conf}, err
	}

	metrics.OrdersCreated.Inc()
	c.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("total_price", o.TotalPrice.String()))

	if c.publisher != nil {
		if err := c.publisher.PublishOrderCreated(ctx, o); err != nil {
			// The order is committed; losing the event must not fail the
			// checkout.
			c.logger.Warn("publish order created", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	return Result{State: StateOrderCreated, UserID: o.UserID, Order: o, Payment: conf}, nil
}

func (c *Coordinator) createOrder(ctx context.Context, userID string) (*order.Order, error) {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Reconcile clamps every line to live stock and leaves the product rows
	// locked, so the counts written below stay coverable until commit.
	_, lines, err := c.carts.ReconcileWithTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		metrics.CheckoutRejected.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	ship, err := c.shipping.SelectedWithTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if ship == nil {
		metrics.CheckoutRejected.WithLabelValues("no_shipping_info").Inc()
		return nil, ErrNoShippingSelected
	}

	o := &order.Order{
		UserID:         userID,
		ShippingInfoID: ship.ID,
		ShippingPrice:  ship.Price,
		CreatedAt:      time.Now().UTC(),
	}

	total := decimal.Zero
	for _, ls := range lines {
		total = total.Add(ls.Price.Mul(decimal.NewFromInt(int64(ls.Count))))
		o.Lines = append(o.Lines, order.Line{ProductID: ls.ProductID, Count: ls.Count})
	}
	o.TotalPrice = total.Add(ship.Price)

	if err := c.orders.CreateWithTx(ctx, tx, o); err != nil {
		return nil, err
	}
	for _, ls := range lines {
		if err := c.stock.DecrementWithTx(ctx, tx, ls.ProductID, ls.Count); err != nil {
			return nil, err
		}
	}
	if err := c.carts.ClearWithTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}
