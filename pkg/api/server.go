package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/energy-gateway/pkg/broadcast"
	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/market"
	"github.com/uhyunpark/energy-gateway/pkg/storage"
	"github.com/uhyunpark/energy-gateway/pkg/util"
)

type Options struct {
	AllowedOrigins []string
	Location       *time.Location // display zone for trade timestamps
	Clock          util.Clock
	Journal        storage.Journal
	Logger         *zap.SugaredLogger
	Metrics        *Metrics
	Gatherer       prometheus.Gatherer // source for /metrics
}

// Server handles REST requests and websocket subscriptions. It keeps no
// ledger state between requests.
type Server struct {
	ledger    *ledger.Manager
	broadcast *broadcast.Service
	journal   storage.Journal
	clock     util.Clock
	loc       *time.Location
	origins   []string
	logger    *zap.SugaredLogger
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	router    *mux.Router
	upgrader  websocket.Upgrader
}

func NewServer(mgr *ledger.Manager, bc *broadcast.Service, opts Options) *Server {
	s := &Server{
		ledger:    mgr,
		broadcast: bc,
		journal:   opts.Journal,
		clock:     opts.Clock,
		loc:       opts.Location,
		origins:   opts.AllowedOrigins,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		router:    mux.NewRouter(),
	}
	if s.journal == nil {
		s.journal = storage.NewNopJournal()
	}
	if s.clock == nil {
		s.clock = util.RealClock{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.metrics == nil {
		s.metrics = NopMetrics()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	// Orders and matching
	api.HandleFunc("/placeOrder", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/matchOrders", s.handleSubmit(ledger.TxMatchOrders, "Orders matched successfully")).Methods("POST")
	api.HandleFunc("/getOrderBook", s.handleGetOrderBook).Methods("GET")

	// Trades and prices
	api.HandleFunc("/getTradeHistory", s.handleGetTradeHistory).Methods("GET")
	api.HandleFunc("/getRecentTrades", s.handleGetRecentTrades).Methods("GET")
	api.HandleFunc("/getCurrentPrice", s.handleGetCurrentPrice).Methods("GET")

	// Market
	api.HandleFunc("/getMarketState", s.handlePassthrough(ledger.TxGetMarketState, "")).Methods("GET")
	api.HandleFunc("/getMarketStatistics", s.handleGetMarketStatistics).Methods("GET")
	api.HandleFunc("/getMarketDistributions", s.handleGetMarketDistributions).Methods("GET")
	api.HandleFunc("/initMarket", s.handleSubmit(ledger.TxInitMarket, "Market initialized successfully")).Methods("POST")
	api.HandleFunc("/updateMarket", s.handleSubmit(ledger.TxUpdateMarket, "Market updated successfully")).Methods("POST")
	api.HandleFunc("/runMarketUntilConvergence", s.handleRunMarket).Methods("POST")

	// Participants
	api.HandleFunc("/getBalance/{userId}", s.handlePassthrough(ledger.TxGetBalance, "userId")).Methods("GET")
	api.HandleFunc("/getUserBalance/{userId}", s.handleGetUserBalance).Methods("GET")
	api.HandleFunc("/getUserTrades/{userId}", s.handlePassthrough(ledger.TxGetUserTrades, "userId")).Methods("GET")
	api.HandleFunc("/getProducerDetails/{producerId}", s.handlePassthrough(ledger.TxGetProducerDetails, "producerId")).Methods("GET")
	api.HandleFunc("/createConsumer", s.handleCreateConsumer).Methods("POST")
	api.HandleFunc("/createProducer", s.handleCreateProducer).Methods("POST")
	api.HandleFunc("/transferProducerOwnership", s.handleTransferOwnership).Methods("POST")

	// Ledger administration
	api.HandleFunc("/initLedger", s.handleSubmit(ledger.TxInitLedger, "Ledger initialized successfully")).Methods("POST")
	api.HandleFunc("/clearLedger", s.handleSubmit(ledger.TxClearLedger, "Ledger cleared successfully")).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Infow("api_server_stopped")
	return nil
}

// ==============================
// Submit handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	args, err := req.Validate()
	if err != nil {
		s.respondError(w, err, true)
		return
	}
	s.submit(w, r, ledger.TxPlaceOrder, args, "Order placed successfully")
}

func (s *Server) handleCreateConsumer(w http.ResponseWriter, r *http.Request) {
	var req CreateConsumerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	args, err := req.Validate()
	if err != nil {
		s.respondError(w, err, true)
		return
	}
	s.submit(w, r, ledger.TxCreateConsumer, args, "Consumer created successfully")
}

func (s *Server) handleCreateProducer(w http.ResponseWriter, r *http.Request) {
	var req CreateProducerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	args, err := req.Validate()
	if err != nil {
		s.respondError(w, err, true)
		return
	}
	s.submit(w, r, ledger.TxCreateProducer, args, "Producer created successfully")
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req TransferOwnershipRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	args, err := req.Validate()
	if err != nil {
		s.respondError(w, err, true)
		return
	}
	s.submit(w, r, ledger.TxTransferProducerOwnership, args, "Producer ownership transferred successfully")
}

func (s *Server) handleRunMarket(w http.ResponseWriter, r *http.Request) {
	var req RunMarketRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	args, err := req.Validate()
	if err != nil {
		s.respondError(w, err, true)
		return
	}
	s.submit(w, r, ledger.TxRunMarketUntilConvergence, args, "Market run completed successfully")
}

// handleSubmit serves transactions that take no arguments.
func (s *Server) handleSubmit(tx, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.submit(w, r, tx, nil, message)
	}
}

// submit runs tx once, journals the outcome and acknowledges it. Submits are
// never retried here.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, tx string, args []string, message string) {
	_, err := s.ledger.Submit(r.Context(), tx, args...)

	entry := storage.JournalEntry{
		ID:        uuid.NewString(),
		Timestamp: s.clock.Now().UTC(),
		Tx:        tx,
		Args:      args,
		Outcome:   outcome(err),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := s.journal.Append(entry); jerr != nil {
		s.logger.Warnw("journal_append_failed", "tx", tx, "err", jerr)
	}

	if err != nil {
		s.respondError(w, err, true)
		return
	}
	s.logger.Infow("ledger_tx_committed", "tx", tx, "journal_id", entry.ID)
	respondJSON(w, http.StatusOK, AckResponse{Status: "ok", Message: message})
}

// ==============================
// Read handlers
// ==============================

// handlePassthrough serves an evaluate whose JSON result is returned as is.
// varName, when set, names the path variable passed as the only argument.
func (s *Server) handlePassthrough(tx, varName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var args []string
		if varName != "" {
			v := mux.Vars(r)[varName]
			if err := required(varName, v); err != nil {
				s.respondError(w, err, false)
				return
			}
			args = append(args, v)
		}
		out, err := passthrough(r.Context(), s.ledger, tx, args...)
		if err != nil {
			s.respondError(w, err, false)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := ledger.WithSession(r.Context(), s.ledger, readOrderBook)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleGetTradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := evaluateJSON[[]market.Trade](r.Context(), s.ledger, ledger.TxGetTradeHistory)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, market.FormatTrades(trades, s.loc))
}

func (s *Server) handleGetRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	trades, err := evaluateJSON[[]market.Trade](r.Context(), s.ledger, ledger.TxGetRecentTrades, strconv.Itoa(limit))
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	if len(trades) > limit {
		trades = trades[:limit]
	}
	respondJSON(w, http.StatusOK, market.FormatTrades(trades, s.loc))
}

func (s *Server) handleGetCurrentPrice(w http.ResponseWriter, r *http.Request) {
	trades, err := evaluateJSON[[]market.Trade](r.Context(), s.ledger, ledger.TxGetTradeHistory)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, market.CurrentPrice(trades, s.clock.Now()))
}

func (s *Server) handleGetMarketStatistics(w http.ResponseWriter, r *http.Request) {
	snap, err := ledger.WithSession(r.Context(), s.ledger, readSnapshot)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, market.Statistics(snap.state, snap.trades, snap.book, s.clock.Now()))
}

func (s *Server) handleGetMarketDistributions(w http.ResponseWriter, r *http.Request) {
	state, err := ledger.WithSession(r.Context(), s.ledger, readMarketState)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, market.ComputeDistributions(state))
}

func (s *Server) handleGetUserBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := required("userId", userID); err != nil {
		s.respondError(w, err, false)
		return
	}
	data, err := s.ledger.Evaluate(r.Context(), ledger.TxGetUserBalance, userID)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	balance, err := parseBalance(data)
	if err != nil {
		s.respondError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Clients: s.broadcast.Count()})
}

// ==============================
// Helper Functions
// ==============================

// decodeBody reads a JSON request body into v. An empty body decodes to the
// zero value so validation reports the missing fields.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, invalid("", "invalid JSON body: "+err.Error()), true)
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, err error, submit bool) {
	status, body := errorResponse(err, submit)
	if status >= http.StatusInternalServerError {
		s.logger.Warnw("request_failed", "status", status, "kind", body.Error, "err", err)
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
