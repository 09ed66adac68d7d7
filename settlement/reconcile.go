package settlement

import (
	"errors"
	"fmt"

	"matchd/domain/book"
)

// ErrLedgerDivergence means durable escrow does not match the replayed
// book. A crash between the WAL intent and settlement leaves fills
// committed while both parties' escrow is still reserved; starting in that
// state would strand the consumed escrow silently.
var ErrLedgerDivergence = errors.New("ledger diverges from replayed book")

type escrowLister interface {
	ForEachEscrow(fn func(trader, asset string, amount int64))
}

// Reconcile checks, for every trader and asset, that the escrowed balance
// equals the reservation implied by the resting book (buy: remaining*price
// quote, sell: remaining base). It must run after Replay and before the
// coordinator accepts traffic; any mismatch refuses startup for operator
// reconciliation.
func Reconcile(b *book.OrderBook, led escrowLister, baseAsset, quoteAsset string) error {
	expected := make(map[string]map[string]int64)
	reserve := func(trader, asset string, amount int64) {
		assets, ok := expected[trader]
		if !ok {
			assets = make(map[string]int64)
			expected[trader] = assets
		}
		assets[asset] += amount
	}

	collect := func(lvl *book.PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			if o.Side == book.Buy {
				reserve(o.Trader, quoteAsset, o.Remaining*o.Price)
			} else {
				reserve(o.Trader, baseAsset, o.Remaining)
			}
		}
		return true
	}
	b.BidsWalk(collect)
	b.AsksWalk(collect)

	var mismatch error
	led.ForEachEscrow(func(trader, asset string, escrowed int64) {
		if mismatch != nil {
			return
		}
		want := expected[trader][asset]
		if escrowed != want {
			mismatch = fmt.Errorf("%w: %s %s escrowed %d, book reserves %d",
				ErrLedgerDivergence, trader, asset, escrowed, want)
			return
		}
		delete(expected[trader], asset)
	})
	if mismatch != nil {
		return mismatch
	}

	// reservations with no escrow behind them are the same fault inverted
	for trader, assets := range expected {
		for asset, want := range assets {
			if want != 0 {
				return fmt.Errorf("%w: %s %s escrowed 0, book reserves %d",
					ErrLedgerDivergence, trader, asset, want)
			}
		}
	}
	return nil
}
