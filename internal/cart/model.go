package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidArgument   = errors.New("product and a positive count are required")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("cart line not found")
)

// Line is one requested quantity of one product within a user's cart.
// At most one line exists per (cart, product) pair.
type Line struct {
	ID        string `json:"lineId"`
	ProductID string `json:"productId"`
	Count     int    `json:"count"`
}

// Cart is the per-user aggregate. TotalItems always equals the sum of the
// line counts at every commit point; it is recomputed inside the same
// transaction as any line mutation, never adjusted piecemeal.
type Cart struct {
	ID         string    `json:"cartId"`
	UserID     string    `json:"userId"`
	TotalItems int       `json:"totalItems"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Lines      []Line    `json:"lines"`
}

// LineStock is a cart line joined with the product's live stock and price,
// read under a row lock. Reconciliation and checkout pricing both work from
// this snapshot.
type LineStock struct {
	Line
	Stock int
	Price decimal.Decimal
}

// toLines strips the stock/price columns from a reconciled snapshot.
func toLines(ls []LineStock) []Line {
	out := make([]Line, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Line)
	}
	return out
}
