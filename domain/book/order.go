package book

import "errors"

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// ParseSide maps the wire representation of a side to its enum value.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, ErrInvalidSide
	}
}

var (
	ErrInvalidQuantity = errors.New("book: quantity must be positive")
	ErrInvalidPrice    = errors.New("book: price must be positive")
	ErrInvalidSide     = errors.New("book: side must be buy or sell")
	ErrSelfTrade       = errors.New("book: order crosses own resting order")
)

// Order is a limit order. Qty is the remaining quantity and is mutated
// in place as the order fills; an order with Qty == 0 never rests in a
// ladder. Seq is the arrival sequence number and breaks price ties.
type Order struct {
	ID     string
	UserID string
	Symbol string
	Side   Side
	Price  int64
	Qty    int64
	Seq    uint64

	next *Order
	prev *Order
}

// Reset clears the order for pool reuse.
func (o *Order) Reset() { *o = Order{} }

// Validate reports the first invalid field as a named error.
func (o *Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return ErrInvalidSide
	}
	if o.Price <= 0 {
		return ErrInvalidPrice
	}
	if o.Qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
