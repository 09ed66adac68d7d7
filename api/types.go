package api

// Request and response shapes for the REST surface. Prices and amounts are
// integer base/quote units, matching the engine.

type placeOrderRequest struct {
	Trader     string `json:"trader"`
	Side       string `json:"side"` // "buy" or "sell"
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Price      int64  `json:"price"`
	Amount     int64  `json:"amount"`
}

type tradeInfo struct {
	TakerID uint64 `json:"taker_id"`
	MakerID uint64 `json:"maker_id"`
	Amount  int64  `json:"amount"`
	Price   int64  `json:"price"`
	Fee     int64  `json:"fee"`
}

type placeOrderResponse struct {
	OrderID uint64      `json:"order_id"`
	Trades  []tradeInfo `json:"trades"`
}

type cancelOrderRequest struct {
	OrderID   uint64 `json:"order_id"`
	Requester string `json:"requester"`
}

type orderInfo struct {
	ID        uint64 `json:"id"`
	Trader    string `json:"trader"`
	Side      string `json:"side"`
	Price     int64  `json:"price"`
	Remaining int64  `json:"remaining"`
}

type fundsRequest struct {
	Trader string `json:"trader"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type balanceInfo struct {
	Asset     string `json:"asset"`
	Available int64  `json:"available"`
	Escrowed  int64  `json:"escrowed"`
}

type errorResponse struct {
	Error string `json:"error"`
}
