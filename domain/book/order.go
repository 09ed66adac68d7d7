package book

import "errors"

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

var (
	ErrNotFound     = errors.New("order not found")
	ErrUnauthorized = errors.New("requester does not own order")
)

// Order is a resting or incoming request to trade. Price and identity
// fields are immutable once the order rests; only Remaining is mutated,
// and only by the matching loop.
type Order struct {
	ID        uint64
	Trader    string
	Side      Side
	Price     int64 // quote units per base unit, > 0
	Remaining int64 // open base quantity, > 0 while resting
	CreatedAt uint64 // logical sequence, FIFO tie-break within a level

	next *Order
	prev *Order
}

// Next walks the FIFO queue of the order's price level.
func (o *Order) Next() *Order {
	return o.next
}
