package product

import "github.com/shopspring/decimal"

// Product is one sellable item. Stock is the authoritative available
// quantity; it is decremented when an order is created and never goes
// negative.
type Product struct {
	ID       string          `json:"productId"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category,omitempty"`
	Rating   decimal.Decimal `json:"rating"`
}
