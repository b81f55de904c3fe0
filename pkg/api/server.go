package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/darkpool-sh/darkpool/pkg/crypto"
	"github.com/darkpool-sh/darkpool/pkg/engine"
	"github.com/darkpool-sh/darkpool/pkg/storage"
)

// Server is the intake boundary: it accepts order submissions, serves the
// engine's public key, and exposes the redacted settlement list. It never
// reports matching outcomes synchronously; submitters poll settlements.
type Server struct {
	store   *storage.Store
	keys    *crypto.KeyStore
	log     *zap.SugaredLogger
	router  *mux.Router
	hub     *Hub
	origins []string
	srv     *http.Server
}

// NewServer creates a new API server
func NewServer(store *storage.Store, keys *crypto.KeyStore, log *zap.SugaredLogger, origins []string) *Server {
	s := &Server{
		store:   store,
		keys:    keys,
		log:     log,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		origins: origins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order intake
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")

	// Engine key for submitters to encrypt against
	api.HandleFunc("/publickey", s.handleGetPublicKey).Methods("GET")

	// Settlement list (redacted) and operational reset
	api.HandleFunc("/settlements", s.handleListSettlements).Methods("GET")
	api.HandleFunc("/reset", s.handleReset).Methods("POST")

	// Balance lookup (trusted-operator utility)
	api.HandleFunc("/balances/{owner}", s.handleGetBalance).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.srv = &http.Server{Addr: addr, Handler: c.Handler(s.router)}

	s.log.Infow("api_server_starting", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routed handler for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	order := &engine.Order{
		ID:        uuid.NewString(),
		Status:    engine.StatusQueued,
		CreatedAt: time.Now().UnixMilli(),
	}

	if req.Ciphertext != "" {
		// Encrypted submission. Only the envelope is persisted: any cleartext
		// terms sent alongside are dropped so the stored order carries exactly
		// one representation.
		if req.Nonce == "" || req.SenderPublicKey == "" {
			respondError(w, http.StatusBadRequest, "incomplete envelope", "ciphertext requires nonce and senderPublicKey")
			return
		}
		if _, err := crypto.ParseNonce(req.Nonce); err != nil {
			respondError(w, http.StatusBadRequest, "invalid nonce", err.Error())
			return
		}
		if _, err := crypto.ParsePublicKey(req.SenderPublicKey); err != nil {
			respondError(w, http.StatusBadRequest, "invalid senderPublicKey", err.Error())
			return
		}
		order.Envelope = &engine.Envelope{
			Ciphertext:      req.Ciphertext,
			Nonce:           req.Nonce,
			SenderPublicKey: req.SenderPublicKey,
		}
	} else {
		// Demo submission: cleartext terms, no envelope.
		side, err := engine.ParseSide(req.Side)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid side", err.Error())
			return
		}
		terms := engine.Terms{
			Side:      side,
			Price:     req.Price,
			Amount:    req.Amount,
			Owner:     req.Owner,
			Timestamp: order.CreatedAt,
		}
		if err := terms.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid order terms", err.Error())
			return
		}
		order.Demo = &terms
	}

	if err := s.store.AppendOrder(order); err != nil {
		s.log.Errorw("order_append_failed", "order_id", order.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to persist order", "")
		return
	}

	s.log.Infow("order_queued", "order_id", order.ID, "encrypted", order.Envelope != nil)
	respondJSON(w, SubmitOrderResponse{Status: "queued", OrderID: order.ID})
}

func (s *Server) handleGetPublicKey(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, PublicKeyResponse{PublicKey: s.keys.PublicKeyBase64()})
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.store.ListSettlements()
	if err != nil {
		s.log.Errorw("settlement_list_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list settlements", "")
		return
	}

	notices := make([]SettlementNotice, len(settlements))
	for i, st := range settlements {
		notices[i] = SettlementNotice{ID: st.ID, Timestamp: st.Timestamp}
	}
	respondJSON(w, notices)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetSettlements(); err != nil {
		s.log.Errorw("settlement_reset_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to reset settlements", "")
		return
	}
	s.log.Infow("settlements_reset")
	respondJSON(w, map[string]string{"status": "reset"})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	balance, err := s.store.Balance(owner)
	if err != nil {
		s.log.Errorw("balance_read_failed", "owner", owner, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to read balance", "")
		return
	}
	respondJSON(w, BalanceResponse{Owner: owner, Balance: balance})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the worker)
// ==============================

// BroadcastSettlement pushes a redacted settlement notice to subscribers
func (s *Server) BroadcastSettlement(st engine.Settlement) {
	s.hub.BroadcastToChannel("settlements", SettlementUpdate{
		Type:      "settlement",
		ID:        st.ID,
		Timestamp: st.Timestamp,
	})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
