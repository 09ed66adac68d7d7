// Package ledger holds the escrow contract the engine settles against.
package ledger

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient available balance")
	ErrInsufficientEscrow = errors.New("insufficient escrowed balance")
	ErrInsufficientPool   = errors.New("custody pool underfunded")
	ErrBadAmount          = errors.New("amount must be positive")
)

// Ledger escrows and releases funds and pays trade proceeds out of custody.
//
// Escrow moves a trader's available balance into the custody pool, tagged
// as reserved for that trader. Spend marks reserved escrow as consumed by a
// trade, leaving the funds in the pool for Transfer to pay out. Release is
// the cancellation path: reserved escrow goes back to the trader.
type Ledger interface {
	Escrow(trader, asset string, amount int64) error
	Spend(trader, asset string, amount int64) error
	Release(trader, asset string, amount int64) error
	Transfer(asset, to string, amount int64) error
}
