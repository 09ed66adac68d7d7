// Package events defines the audit events emitted for every book state
// transition. The book is reconstructible from the event log alone.
package events

import (
	"encoding/json"
	"time"
)

const (
	TypeOrderPlaced    = "order_placed"
	TypeTradeExecuted  = "trade_executed"
	TypeOrderCancelled = "order_cancelled"
)

// Envelope is the wire form of every event.
type Envelope struct {
	V    int             `json:"v"`
	Type string          `json:"type"`
	Time int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type OrderPlaced struct {
	ID     uint64 `json:"id"`
	Trader string `json:"trader"`
	Side   string `json:"side"`
	Price  int64  `json:"price"`
	Amount int64  `json:"amount"`
}

type TradeExecuted struct {
	TakerID uint64 `json:"taker_id"`
	MakerID uint64 `json:"maker_id"`
	Amount  int64  `json:"amount"`
	Price   int64  `json:"price"`
	Fee     int64  `json:"fee"`
}

type OrderCancelled struct {
	ID uint64 `json:"id"`
}

// Marshal wraps an event payload in a versioned envelope.
func Marshal(eventType string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		V:    1,
		Type: eventType,
		Time: time.Now().UnixNano(),
		Data: data,
	})
}
