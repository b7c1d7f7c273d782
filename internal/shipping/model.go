package shipping

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidArgument = errors.New("address and receiver are required")
	ErrNotFound        = errors.New("shipping info not found")
	ErrForbidden       = errors.New("shipping info belongs to another user")
)

// Info is one shipping address of a user. Per user at most one Info is
// selected at any time; the first one ever created is selected
// automatically. Price is the shipping fee cached at creation time.
type Info struct {
	ID         string          `json:"shippingInfoId"`
	UserID     string          `json:"userId"`
	Address    string          `json:"address"`
	Receiver   string          `json:"receiver"`
	ReceiverID string          `json:"receiverId"`
	Selected   bool            `json:"isSelected"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  time.Time       `json:"createdAt"`
}
