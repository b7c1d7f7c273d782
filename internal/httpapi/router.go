package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/{productId}", h.GetProduct)
		r.Put("/", h.UpsertProduct)
	})

	r.Route("/api/cart/{userId}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Get("/total", h.GetCartTotal)
		r.Post("/items", h.AddCartLine)
		r.Delete("/items/{productId}", h.RemoveCartLine)
		r.Delete("/items", h.ClearCart)
		r.Post("/reconcile", h.ReconcileCart)
	})

	r.Route("/api/shipping/{userId}", func(r chi.Router) {
		r.Post("/", h.CreateShippingInfo)
		r.Get("/", h.ListShippingInfo)
		r.Get("/selected", h.GetSelectedShippingInfo)
		r.Post("/{shippingInfoId}/select", h.SelectShippingInfo)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/{orderId}", h.GetOrder)
		r.Get("/{orderId}/lines", h.GetOrderLines)
		r.Patch("/{orderId}/lines/{productId}", h.UpdateOrderLine)
		r.Get("/user/{userId}", h.ListOrders)
	})

	r.Post("/api/checkout", h.Checkout)

	return r
}
