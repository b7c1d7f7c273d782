package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrLineNotFound = errors.New("order line not found")
	ErrInvalidCount = errors.New("count must be a positive integer")
	// ErrEmptyOrder signals an order with zero lines. Callers rely on it to
	// detect a malformed order, so it is an error, not an empty list.
	ErrEmptyOrder = errors.New("order has no lines")
)

// Line is the quantity of one product captured into a finalized order.
type Line struct {
	ID        string `json:"lineId"`
	ProductID string `json:"productId"`
	Count     int    `json:"count"`
}

// Order is the immutable record created at checkout. TotalPrice is the sum
// of count*price over the lines, at the product prices current at creation
// time, plus the shipping fee added once. ShippingPrice keeps that fee so an
// administrative line correction can reprice the total without re-deriving
// it.
type Order struct {
	ID             string          `json:"orderId"`
	UserID         string          `json:"userId"`
	ShippingInfoID string          `json:"shippingInfoId"`
	ShippingPrice  decimal.Decimal `json:"shippingPrice"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	CreatedAt      time.Time       `json:"createdAt"`
	Lines          []Line          `json:"lines,omitempty"`
}
