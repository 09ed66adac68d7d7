// Package api exposes the engine over REST and a websocket event feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"matchd/domain/book"
	"matchd/ledger"
	"matchd/settlement"
)

type Server struct {
	coord  *settlement.Coordinator
	ledger *ledger.MemLedger
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(coord *settlement.Coordinator, led *ledger.MemLedger, hub *Hub, log *zap.Logger) *Server {
	s := &Server{
		coord:  coord,
		ledger: led,
		router: mux.NewRouter(),
		hub:    hub,
		log:    log.Named("api"),
	}
	s.routes()
	return s
}

// Hub returns the websocket hub so the coordinator's event hook can feed it.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	v1.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	v1.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	v1.HandleFunc("/book", s.handleGetBook).Methods("GET")
	v1.HandleFunc("/accounts/{trader}/balances", s.handleGetBalances).Methods("GET")
	v1.HandleFunc("/accounts/deposit", s.handleDeposit).Methods("POST")
	v1.HandleFunc("/accounts/withdraw", s.handleWithdraw).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.log.Info("listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be \"buy\" or \"sell\"")
		return
	}

	id, trades, err := s.coord.PlaceOrder(req.Trader, side, req.BaseAsset, req.QuoteAsset, req.Price, req.Amount)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := placeOrderResponse{OrderID: id, Trades: make([]tradeInfo, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, tradeInfo{
			TakerID: t.TakerID,
			MakerID: t.MakerID,
			Amount:  t.Amount,
			Price:   t.Price,
			Fee:     t.Fee,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.coord.CancelOrder(req.OrderID, req.Requester); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := s.coord.GetOrder(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orderInfo{
		ID:        o.ID,
		Trader:    o.Trader,
		Side:      o.Side.String(),
		Price:     o.Price,
		Remaining: o.Remaining,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bids, asks := s.coord.Depth()
	writeJSON(w, http.StatusOK, map[string][]settlement.Level{
		"bids": bids,
		"asks": asks,
	})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	trader := mux.Vars(r)["trader"]
	base, quote := s.coord.Pair()

	out := make([]balanceInfo, 0, 2)
	for _, asset := range []string{base, quote} {
		available, escrowed := s.ledger.Balance(trader, asset)
		out = append(out, balanceInfo{Asset: asset, Available: available, Escrowed: escrowed})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleFunds(w, r, s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleFunds(w, r, s.ledger.Withdraw)
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request, op func(string, string, int64) error) {
	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := op(req.Trader, req.Asset, req.Amount); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.coord.Halted() {
		status = "halted"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func parseSide(v string) (book.Side, bool) {
	switch v {
	case "buy":
		return book.Buy, true
	case "sell":
		return book.Sell, true
	default:
		return 0, false
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, settlement.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrEscrowFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, settlement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, settlement.ErrHalted), errors.Is(err, settlement.ErrSettlementInconsistency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
