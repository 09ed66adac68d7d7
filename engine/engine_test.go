package engine

import (
	"errors"
	"testing"

	"matchd/domain/book"
)

func newTestEngine() *MatchingEngine {
	return New(book.New())
}

func TestRestOnEmptyBook(t *testing.T) {
	e := newTestEngine()

	o, trades, err := e.Place(1, "alice", book.Sell, 100, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	if o.Remaining != 10 {
		t.Errorf("remaining = %d, want 10", o.Remaining)
	}
	if e.Book().BestAsk() == nil || e.Book().BestAsk().Price != 100 {
		t.Error("order should rest on the ask side at 100")
	}
}

func TestFullMatchEmptiesBook(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 100, 10)

	o, trades, err := e.Place(2, "bob", book.Buy, 100, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.Amount != 10 || tr.Price != 100 || tr.Notional != 1000 {
		t.Errorf("trade = %+v, want amount=10 price=100 notional=1000", tr)
	}
	if tr.Taker != "bob" || tr.Maker != "alice" || tr.TakerSide != book.Buy {
		t.Errorf("trade parties = %+v", tr)
	}
	if o.Remaining != 0 {
		t.Errorf("taker remaining = %d, want 0", o.Remaining)
	}
	if e.Book().Resting() != 0 {
		t.Error("book should be empty after a full match")
	}
}

func TestExecutionAtMakerPrice(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 100, 5)

	// buyer willing to pay 110 still executes at the resting 100
	_, trades, _ := e.Place(2, "bob", book.Buy, 110, 5)
	if len(trades) != 1 || trades[0].Price != 100 {
		t.Fatalf("trades = %+v, want one trade at 100", trades)
	}
}

func TestPartialFillWalksLevels(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 100, 5)
	e.Place(2, "carol", book.Sell, 101, 5)

	o, trades, err := e.Place(3, "bob", book.Buy, 101, 8)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Amount != 5 || trades[0].Price != 100 {
		t.Errorf("first trade = %+v, want 5 @ 100", trades[0])
	}
	if trades[1].Amount != 3 || trades[1].Price != 101 {
		t.Errorf("second trade = %+v, want 3 @ 101", trades[1])
	}
	if o.Remaining != 0 {
		t.Errorf("taker remaining = %d, want 0", o.Remaining)
	}

	// maker at 101 keeps 2 units; nothing rests on the bid side
	rest, err := e.Book().GetOrder(2)
	if err != nil || rest.Remaining != 2 {
		t.Errorf("resting maker = %+v (err=%v), want remaining 2", rest, err)
	}
	if e.Book().BestBid() != nil {
		t.Error("fully filled taker must not rest")
	}
}

func TestNoCrossBelowLimit(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 105, 5)

	o, trades, _ := e.Place(2, "bob", book.Buy, 100, 5)
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	if o.Remaining != 5 {
		t.Errorf("remaining = %d, want 5", o.Remaining)
	}
	if e.Book().BestBid().Price != 100 || e.Book().BestAsk().Price != 105 {
		t.Error("both orders should rest")
	}
}

func TestSellTakerCrossesBids(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Buy, 102, 4)
	e.Place(2, "carol", book.Buy, 100, 4)

	_, trades, _ := e.Place(3, "bob", book.Sell, 100, 6)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	// best bid first, at the maker's price
	if trades[0].Price != 102 || trades[0].Amount != 4 {
		t.Errorf("first trade = %+v, want 4 @ 102", trades[0])
	}
	if trades[1].Price != 100 || trades[1].Amount != 2 {
		t.Errorf("second trade = %+v, want 2 @ 100", trades[1])
	}
}

func TestFIFOTieBreak(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "first", book.Sell, 100, 3)
	e.Place(2, "second", book.Sell, 100, 3)

	_, trades, _ := e.Place(3, "bob", book.Buy, 100, 4)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Maker != "first" || trades[0].Amount != 3 {
		t.Errorf("first fill = %+v, want full fill of earliest maker", trades[0])
	}
	if trades[1].Maker != "second" || trades[1].Amount != 1 {
		t.Errorf("second fill = %+v", trades[1])
	}
}

func TestInvalidOrder(t *testing.T) {
	e := newTestEngine()
	if _, _, err := e.Place(1, "alice", book.Buy, 0, 10); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("zero price: err = %v, want ErrInvalidOrder", err)
	}
	if _, _, err := e.Place(2, "alice", book.Buy, 100, 0); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("zero amount: err = %v, want ErrInvalidOrder", err)
	}
	if _, _, err := e.Place(3, "alice", book.Buy, -1, 10); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("negative price: err = %v, want ErrInvalidOrder", err)
	}
	if e.Book().Resting() != 0 {
		t.Error("rejected orders must not touch the book")
	}
}

func TestOverflowingNotionalRejected(t *testing.T) {
	e := newTestEngine()

	// price*amount wraps int64
	if _, _, err := e.Place(1, "alice", book.Buy, 1<<32+1, 1<<32); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("wrapping product: err = %v, want ErrInvalidOrder", err)
	}
	// product fits int64 but exceeds the fee arithmetic bound
	if _, _, err := e.Place(2, "alice", book.Buy, MaxNotional, 2); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("oversized notional: err = %v, want ErrInvalidOrder", err)
	}
	if e.Book().Resting() != 0 {
		t.Error("rejected orders must not touch the book")
	}

	// the largest permitted order is still accepted
	if _, _, err := e.Place(3, "alice", book.Buy, MaxNotional, 1); err != nil {
		t.Errorf("max notional order rejected: %v", err)
	}
}

func TestFilledTakerSnapshotStable(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 100, 10)

	// a fully filled taker goes back to the pool; the snapshot handed to
	// the caller must survive later placements reusing that allocation
	o, _, err := e.Place(2, "bob", book.Buy, 100, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	for i := uint64(3); i < 10; i++ {
		e.Place(i, "carol", book.Sell, int64(100+i), 1)
	}

	if o.ID != 2 || o.Trader != "bob" || o.Remaining != 0 {
		t.Errorf("taker snapshot mutated by later placements: %+v", o)
	}
	if _, err := e.Book().GetOrder(2); !errors.Is(err, book.ErrNotFound) {
		t.Error("fully filled taker must not rest")
	}
}

func TestCancelReturnsResidual(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 100, 10)
	e.Place(2, "bob", book.Buy, 100, 4)

	removed, err := e.Cancel(1, "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed.Remaining != 6 {
		t.Errorf("removed remaining = %d, want 6", removed.Remaining)
	}
	if e.Book().Resting() != 0 {
		t.Error("book should be empty after cancel")
	}
}

func TestCancelUnauthorized(t *testing.T) {
	e := newTestEngine()
	e.Place(1, "alice", book.Sell, 100, 10)

	if _, err := e.Cancel(1, "mallory"); !errors.Is(err, book.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := e.Cancel(42, "alice"); !errors.Is(err, book.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNoZeroRemainingRests(t *testing.T) {
	e := newTestEngine()
	for i := uint64(1); i <= 20; i++ {
		side := book.Buy
		if i%2 == 0 {
			side = book.Sell
		}
		e.Place(i, "t", side, int64(95+i%10), int64(1+i%4))
	}

	check := func(lvl *book.PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			if o.Remaining <= 0 {
				t.Errorf("order %d resting with remaining %d", o.ID, o.Remaining)
			}
		}
		return true
	}
	e.Book().BidsWalk(check)
	e.Book().AsksWalk(check)
}
