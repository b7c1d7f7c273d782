package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nordmart/shopcore/internal/cart"
	"github.com/nordmart/shopcore/internal/checkout"
	"github.com/nordmart/shopcore/internal/order"
	"github.com/nordmart/shopcore/internal/payment"
	"github.com/nordmart/shopcore/internal/product"
	"github.com/nordmart/shopcore/internal/shipping"
)

// CartService is the cart surface the HTTP layer consumes.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddLine(ctx context.Context, userID, productID string, count int) (*cart.Line, error)
	RemoveLine(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
	Reconcile(ctx context.Context, userID string) (*cart.Cart, error)
	TotalPrice(ctx context.Context, userID string) (decimal.Decimal, error)
}

type ShippingService interface {
	Create(ctx context.Context, userID, address, receiver, receiverID string) (*shipping.Info, error)
	Select(ctx context.Context, userID, id string) (*shipping.Info, error)
	Selected(ctx context.Context, userID string) (*shipping.Info, error)
	List(ctx context.Context, userID string) ([]shipping.Info, error)
}

type OrderRepository interface {
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	Lines(ctx context.Context, orderID string) ([]order.Line, error)
	UpdateLineCount(ctx context.Context, orderID, productID string, count int) (*order.Order, error)
}

type ProductRepository interface {
	Get(ctx context.Context, productID string) (product.Product, error)
	Upsert(ctx context.Context, p *product.Product) error
}

type CheckoutCoordinator interface {
	CreateOrderFromPayment(ctx context.Context, reference string) (checkout.Result, error)
}

type Handler struct {
	carts    CartService
	shipping ShippingService
	orders   OrderRepository
	products ProductRepository
	checkout CheckoutCoordinator
	logger   *zap.Logger
}

func NewHandler(
	carts CartService,
	ship ShippingService,
	orders OrderRepository,
	products ProductRepository,
	co CheckoutCoordinator,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		carts:    carts,
		shipping: ship,
		orders:   orders,
		products: products,
		checkout: co,
		logger:   logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "shopcore"})
}

// --- products

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if p.Title == "" {
		writeError(w, http.StatusBadRequest, "missing title")
		return
	}
	if err := h.products.Upsert(r.Context(), &p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- cart

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetCartTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.carts.TotalPrice(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"totalPrice": total})
}

func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"productId"`
		Count     int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	line, err := h.carts.AddLine(r.Context(), chi.URLParam(r, "userId"), body.ProductID, body.Count)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	err := h.carts.RemoveLine(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), chi.URLParam(r, "userId")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReconcileCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Reconcile(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- shipping

func (h *Handler) CreateShippingInfo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address    string `json:"address"`
		Receiver   string `json:"receiver"`
		ReceiverID string `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	info, err := h.shipping.Create(r.Context(), chi.URLParam(r, "userId"), body.Address, body.Receiver, body.ReceiverID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) ListShippingInfo(w http.ResponseWriter, r *http.Request) {
	infos, err := h.shipping.List(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) GetSelectedShippingInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.shipping.Selected(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "no shipping info selected")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) SelectShippingInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.shipping.Select(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "shippingInfoId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- orders

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) GetOrderLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.orders.Lines(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) UpdateOrderLine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	o, err := h.orders.UpdateLineCount(r.Context(), chi.URLParam(r, "orderId"), chi.URLParam(r, "productId"), body.Count)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// --- checkout

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentReference string `json:"paymentReference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "missing paymentReference")
		return
	}

	res, err := h.checkout.CreateOrderFromPayment(r.Context(), body.PaymentReference)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.State == checkout.StatePaymentRejected {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes;
// anything unknown is a 500 and gets logged with its cause.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidArgument),
		errors.Is(err, shipping.ErrInvalidArgument),
		errors.Is(err, order.ErrInvalidCount),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInvalidStock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, shipping.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrLineNotFound),
		errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shipping.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, payment.ErrInvalidPayment):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrEmptyOrder):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrNoShippingSelected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
