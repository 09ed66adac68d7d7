package book

// OrderBook owns the two sorted sides of a single trading pair.
// It is single-writer: callers serialize access (see settlement.Coordinator).
type OrderBook struct {
	bids *levelTree
	asks *levelTree

	// resting orders by id, for cancellation and queries
	index map[uint64]*Order
}

func New() *OrderBook {
	return &OrderBook{
		bids:  newLevelTree(),
		asks:  newLevelTree(),
		index: make(map[uint64]*Order),
	}
}

// BestBid returns the highest-priced bid level, or nil when the side is empty.
func (b *OrderBook) BestBid() *PriceLevel {
	return b.bids.Max()
}

// BestAsk returns the lowest-priced ask level, or nil when the side is empty.
func (b *OrderBook) BestAsk() *PriceLevel {
	return b.asks.Min()
}

// Insert rests an order on its own side. FIFO within a level follows from
// enqueueing at the tail.
func (b *OrderBook) Insert(o *Order) {
	b.side(o.Side).GetOrCreate(o.Price).Enqueue(o)
	b.index[o.ID] = o
}

// RemoveHead pops the head order of the best opposite level after a full
// fill, dropping the level when it empties. lvl must be the best level of
// the given side.
func (b *OrderBook) RemoveHead(side Side, lvl *PriceLevel) *Order {
	o := lvl.PopHead()
	if o == nil {
		return nil
	}
	delete(b.index, o.ID)
	if lvl.Empty() {
		b.side(side).Delete(lvl.Price)
	}
	return o
}

// Cancel removes a resting order on behalf of requester and returns it so
// the caller can release its residual escrow.
func (b *OrderBook) Cancel(orderID uint64, requester string) (*Order, error) {
	o, ok := b.index[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Trader != requester {
		return nil, ErrUnauthorized
	}

	lvl := b.side(o.Side).Find(o.Price)
	lvl.Unlink(o)
	if lvl.Empty() {
		b.side(o.Side).Delete(o.Price)
	}
	delete(b.index, orderID)
	return o, nil
}

// GetOrder returns the resting order with the given id. Filled and
// cancelled orders are gone from the book and report ErrNotFound.
func (b *OrderBook) GetOrder(orderID uint64) (*Order, error) {
	o, ok := b.index[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// BidsWalk visits bid levels best (highest) first.
func (b *OrderBook) BidsWalk(fn func(*PriceLevel) bool) {
	b.bids.Descend(fn)
}

// AsksWalk visits ask levels best (lowest) first.
func (b *OrderBook) AsksWalk(fn func(*PriceLevel) bool) {
	b.asks.Ascend(fn)
}

// Resting returns the number of resting orders across both sides.
func (b *OrderBook) Resting() int {
	return len(b.index)
}

func (b *OrderBook) side(s Side) *levelTree {
	if s == Buy {
		return b.bids
	}
	return b.asks
}
