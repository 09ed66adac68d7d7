package engine

import (
	"errors"
	"math"

	"matchd/domain/book"
	"matchd/fees"
	"matchd/infra/memory"
)

// ErrInvalidOrder rejects malformed placements before any state change.
var ErrInvalidOrder = errors.New("invalid order")

// MaxNotional bounds price*amount so that escrow requirements, per-trade
// notionals, and the fee product notional*feeBps all stay within int64.
const MaxNotional = math.MaxInt64 / fees.MaxBps

// Trade records one match event. Execution always happens at the resting
// (maker) order's price; price improvement accrues to the taker.
type Trade struct {
	TakerID   uint64
	MakerID   uint64
	Taker     string
	Maker     string
	TakerSide book.Side
	Amount    int64
	Price     int64
	Notional  int64 // Amount * Price, quote units
	Fee       int64 // filled in by the settlement layer
}

// MatchingEngine crosses incoming orders against the opposite side of the
// book. It mutates in-memory book state only; it performs no transfers.
type MatchingEngine struct {
	book *book.OrderBook
	pool *memory.Pool[book.Order]
}

func New(b *book.OrderBook) *MatchingEngine {
	return &MatchingEngine{
		book: b,
		pool: memory.NewPool(func() *book.Order { return &book.Order{} }),
	}
}

func (e *MatchingEngine) Book() *book.OrderBook { return e.book }

// Place runs the matching loop for a new limit order. The caller assigns id
// (the sequencer lives with the coordinator so the WAL intent can carry it).
// The returned order is a snapshot; it keeps the id even when fully filled
// and rests in the book only while Remaining is non-zero.
func (e *MatchingEngine) Place(id uint64, trader string, side book.Side, price, amount int64) (book.Order, []Trade, error) {
	if price <= 0 || amount <= 0 || amount > MaxNotional/price {
		return book.Order{}, nil, ErrInvalidOrder
	}

	o := e.pool.Get()
	*o = book.Order{
		ID:        id,
		Trader:    trader,
		Side:      side,
		Price:     price,
		Remaining: amount,
		CreatedAt: id,
	}

	var trades []Trade
	for o.Remaining > 0 {
		lvl := e.bestOpposite(side)
		if lvl == nil || !crosses(side, price, lvl.Price) {
			break
		}

		maker := lvl.Head()
		qty := min(o.Remaining, maker.Remaining)

		trades = append(trades, Trade{
			TakerID:   o.ID,
			MakerID:   maker.ID,
			Taker:     o.Trader,
			Maker:     maker.Trader,
			TakerSide: side,
			Amount:    qty,
			Price:     lvl.Price,
			Notional:  qty * lvl.Price,
		})

		o.Remaining -= qty
		maker.Remaining -= qty

		if maker.Remaining == 0 {
			e.book.RemoveHead(side.Opposite(), lvl)
			e.pool.Put(maker)
		} else {
			// partially filled maker keeps the head of its level;
			// its price is unchanged so sort order holds
			lvl.Reduce(qty)
		}
	}

	out := *o
	if o.Remaining > 0 {
		e.book.Insert(o)
	} else {
		e.pool.Put(o)
	}
	return out, trades, nil
}

// Cancel removes a resting order. The removed order is returned so residual
// escrow can be released; callers must not retain it past that.
func (e *MatchingEngine) Cancel(orderID uint64, requester string) (book.Order, error) {
	o, err := e.book.Cancel(orderID, requester)
	if err != nil {
		return book.Order{}, err
	}
	out := *o
	e.pool.Put(o)
	return out, nil
}

func (e *MatchingEngine) bestOpposite(side book.Side) *book.PriceLevel {
	if side == book.Buy {
		return e.book.BestAsk()
	}
	return e.book.BestBid()
}

// crosses reports whether an incoming order at limit can trade against a
// resting level at rest. Once the best level fails this, no worse level can
// cross either.
func crosses(side book.Side, limit, rest int64) bool {
	if side == book.Buy {
		return rest <= limit
	}
	return rest >= limit
}
