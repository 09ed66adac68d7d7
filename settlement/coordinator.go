// Package settlement sequences escrow, matching, and fund transfers.
// The Coordinator is the only write entry point into the engine.
package settlement

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"matchd/domain/book"
	"matchd/engine"
	"matchd/events"
	"matchd/fees"
	"matchd/infra/sequence"
	"matchd/infra/wal"
	"matchd/ledger"
)

var (
	ErrInvalidOrder = engine.ErrInvalidOrder
	ErrNotFound     = book.ErrNotFound
	ErrUnauthorized = book.ErrUnauthorized

	// ErrEscrowFailed means the funding precondition was unmet; nothing
	// was mutated.
	ErrEscrowFailed = errors.New("escrow failed")

	// ErrSettlementInconsistency means a transfer failed after the book
	// committed. The pair is halted until an operator reconciles.
	ErrSettlementInconsistency = errors.New("settlement inconsistency")

	// ErrHalted rejects requests arriving after an inconsistency latched.
	ErrHalted = errors.New("pair halted pending reconciliation")
)

// Config fixes the trading pair and fee routing at construction.
// Fee changes mean constructing a new coordinator, not flipping state
// under a running one.
type Config struct {
	BaseAsset    string
	QuoteAsset   string
	FeeRecipient string
}

// Hooks push accepted events to in-process consumers (websocket hub,
// market data). Both are optional and called outside any failure path.
type Hooks struct {
	OnEvent func(payload []byte)
	OnTrade func(t engine.Trade)
}

// Coordinator owns the critical section for one trading pair. A placement
// escrows first, matches second, settles third; ledger transfers never
// happen while the book is mid-mutation, so nothing external can observe
// or re-enter a half-updated book.
type Coordinator struct {
	mu sync.Mutex

	cfg    Config
	eng    *engine.MatchingEngine
	seq    *sequence.Sequencer
	ledger ledger.Ledger
	fees   *fees.Calculator
	wal    *wal.WAL
	outbox *events.Outbox
	hooks  Hooks
	log    *zap.Logger

	halted bool
}

func NewCoordinator(
	cfg Config,
	eng *engine.MatchingEngine,
	seq *sequence.Sequencer,
	led ledger.Ledger,
	feeCalc *fees.Calculator,
	w *wal.WAL,
	outbox *events.Outbox,
	hooks Hooks,
	log *zap.Logger,
) (*Coordinator, error) {
	if cfg.BaseAsset == "" || cfg.QuoteAsset == "" || cfg.BaseAsset == cfg.QuoteAsset {
		return nil, fmt.Errorf("invalid pair %q/%q", cfg.BaseAsset, cfg.QuoteAsset)
	}
	if cfg.FeeRecipient == "" {
		return nil, errors.New("fee recipient not configured")
	}
	return &Coordinator{
		cfg:    cfg,
		eng:    eng,
		seq:    seq,
		ledger: led,
		fees:   feeCalc,
		wal:    w,
		outbox: outbox,
		hooks:  hooks,
		log:    log.Named("settlement"),
	}, nil
}

// PlaceOrder submits a new limit order and returns its id with the trades
// it produced. The id is assigned even on a full immediate fill, for audit
// correlation.
func (c *Coordinator) PlaceOrder(trader string, side book.Side, baseAsset, quoteAsset string, price, amount int64) (uint64, []engine.Trade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.halted {
		return 0, nil, ErrHalted
	}
	if trader == "" || price <= 0 || amount <= 0 ||
		baseAsset != c.cfg.BaseAsset || quoteAsset != c.cfg.QuoteAsset {
		return 0, nil, ErrInvalidOrder
	}
	// reject before escrow: price*amount must not wrap, and the resulting
	// notionals must stay within fee arithmetic range
	if amount > engine.MaxNotional/price {
		return 0, nil, ErrInvalidOrder
	}

	// 1. escrow the full requirement before any matching
	escrowAsset, escrowAmt := c.escrowFor(side, price, amount)
	if err := c.ledger.Escrow(trader, escrowAsset, escrowAmt); err != nil {
		c.log.Info("placement rejected",
			zap.String("trader", trader),
			zap.String("reason", err.Error()),
		)
		return 0, nil, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
	}

	// 2. durable intent, then the matching loop
	id := c.seq.Next()
	if err := c.wal.Append(wal.NewRecord(wal.RecordPlace, id, wal.Place{
		Trader: trader,
		Side:   uint8(side),
		Price:  price,
		Amount: amount,
	}.Encode())); err != nil {
		// escrowed but never applied; hand the funds straight back
		if rerr := c.ledger.Release(trader, escrowAsset, escrowAmt); rerr != nil {
			return 0, nil, c.halt("release after wal failure", rerr)
		}
		return 0, nil, fmt.Errorf("wal append: %w", err)
	}

	o, trades, err := c.eng.Place(id, trader, side, price, amount)
	if err != nil {
		return 0, nil, err
	}

	// 3. settle strictly after all book mutation committed
	spent := int64(0)
	for i := range trades {
		t := &trades[i]
		t.Fee = c.fees.Fee(t.Notional)
		if err := c.settleTrade(t); err != nil {
			return 0, nil, c.halt("trade settlement", err)
		}
		if side == book.Buy {
			spent += t.Notional
		} else {
			spent += t.Amount
		}
	}

	// 4. return quote surplus from price improvement; the resting
	// remainder keeps its reservation
	reserved := int64(0)
	if o.Remaining > 0 {
		_, reserved = c.escrowFor(side, price, o.Remaining)
	}
	if surplus := escrowAmt - spent - reserved; surplus > 0 {
		if err := c.ledger.Release(trader, escrowAsset, surplus); err != nil {
			return 0, nil, c.halt("surplus release", err)
		}
	}

	c.emitPlaced(id, trader, side, price, amount)
	for i := range trades {
		c.emitTrade(&trades[i])
	}

	return id, trades, nil
}

// CancelOrder removes a resting order on behalf of its owner and releases
// the escrow still reserved against it.
func (c *Coordinator) CancelOrder(orderID uint64, requester string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.halted {
		return ErrHalted
	}

	// authorize before writing the intent so rejected cancels leave no trace
	o, err := c.eng.Book().GetOrder(orderID)
	if err != nil {
		return err
	}
	if o.Trader != requester {
		return ErrUnauthorized
	}

	seq := c.seq.Next()
	if err := c.wal.Append(wal.NewRecord(wal.RecordCancel, seq, wal.Cancel{
		OrderID:   orderID,
		Requester: requester,
	}.Encode())); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}

	removed, err := c.eng.Cancel(orderID, requester)
	if err != nil {
		return err
	}

	asset, reserve := c.escrowFor(removed.Side, removed.Price, removed.Remaining)
	if err := c.ledger.Release(removed.Trader, asset, reserve); err != nil {
		return c.halt("cancel release", err)
	}

	c.emitCancelled(orderID)
	return nil
}

// GetOrder returns a copy of a resting order.
func (c *Coordinator) GetOrder(orderID uint64) (book.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.eng.Book().GetOrder(orderID)
	if err != nil {
		return book.Order{}, err
	}
	return *o, nil
}

// Level is one aggregated price level of the depth snapshot.
type Level struct {
	Price  int64 `json:"price"`
	Qty    int64 `json:"qty"`
	Orders int   `json:"orders"`
}

// Depth returns both sides best-first.
func (c *Coordinator) Depth() (bids, asks []Level) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eng.Book().BidsWalk(func(lvl *book.PriceLevel) bool {
		bids = append(bids, Level{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount})
		return true
	})
	c.eng.Book().AsksWalk(func(lvl *book.PriceLevel) bool {
		asks = append(asks, Level{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount})
		return true
	})
	return bids, asks
}

// Halted reports whether the pair latched an inconsistency.
func (c *Coordinator) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// Pair returns the configured assets.
func (c *Coordinator) Pair() (base, quote string) {
	return c.cfg.BaseAsset, c.cfg.QuoteAsset
}

// settleTrade moves the escrowed legs of one trade: base to the buyer, net
// quote to the seller, fee to the fee recipient.
func (c *Coordinator) settleTrade(t *engine.Trade) error {
	buyer, seller := t.Taker, t.Maker
	if t.TakerSide == book.Sell {
		buyer, seller = t.Maker, t.Taker
	}

	if err := c.ledger.Spend(buyer, c.cfg.QuoteAsset, t.Notional); err != nil {
		return fmt.Errorf("spend buyer quote: %w", err)
	}
	if err := c.ledger.Spend(seller, c.cfg.BaseAsset, t.Amount); err != nil {
		return fmt.Errorf("spend seller base: %w", err)
	}
	if err := c.ledger.Transfer(c.cfg.BaseAsset, buyer, t.Amount); err != nil {
		return fmt.Errorf("transfer base: %w", err)
	}
	if net := t.Notional - t.Fee; net > 0 {
		if err := c.ledger.Transfer(c.cfg.QuoteAsset, seller, net); err != nil {
			return fmt.Errorf("transfer quote: %w", err)
		}
	}
	if t.Fee > 0 {
		if err := c.ledger.Transfer(c.cfg.QuoteAsset, c.cfg.FeeRecipient, t.Fee); err != nil {
			return fmt.Errorf("transfer fee: %w", err)
		}
	}
	return nil
}

// escrowFor returns the asset and amount an order must reserve.
func (c *Coordinator) escrowFor(side book.Side, price, amount int64) (string, int64) {
	if side == book.Buy {
		return c.cfg.QuoteAsset, price * amount
	}
	return c.cfg.BaseAsset, amount
}

// halt latches the fatal state. Funds for the failed leg are frozen in
// custody; they are recoverable by reconciliation, never by retry.
func (c *Coordinator) halt(stage string, err error) error {
	c.halted = true
	c.log.Error("halting pair",
		zap.String("stage", stage),
		zap.String("base", c.cfg.BaseAsset),
		zap.String("quote", c.cfg.QuoteAsset),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ErrSettlementInconsistency, stage, err)
}

func (c *Coordinator) emitPlaced(id uint64, trader string, side book.Side, price, amount int64) {
	c.emit(events.TypeOrderPlaced, events.OrderPlaced{
		ID:     id,
		Trader: trader,
		Side:   side.String(),
		Price:  price,
		Amount: amount,
	})
}

func (c *Coordinator) emitTrade(t *engine.Trade) {
	c.emit(events.TypeTradeExecuted, events.TradeExecuted{
		TakerID: t.TakerID,
		MakerID: t.MakerID,
		Amount:  t.Amount,
		Price:   t.Price,
		Fee:     t.Fee,
	})
	if c.hooks.OnTrade != nil {
		c.hooks.OnTrade(*t)
	}
}

func (c *Coordinator) emitCancelled(orderID uint64) {
	c.emit(events.TypeOrderCancelled, events.OrderCancelled{ID: orderID})
}

func (c *Coordinator) emit(eventType string, v any) {
	payload, err := events.Marshal(eventType, v)
	if err != nil {
		c.log.Error("encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if _, err := c.outbox.Append(payload); err != nil {
		c.log.Error("outbox append", zap.String("type", eventType), zap.Error(err))
	}
	if c.hooks.OnEvent != nil {
		c.hooks.OnEvent(payload)
	}
}
