package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/arthaledger/bankfeed/internal/categorize"
	"github.com/arthaledger/bankfeed/internal/handlers"
	"github.com/arthaledger/bankfeed/internal/importer"
	"github.com/arthaledger/bankfeed/internal/middleware"
	"github.com/arthaledger/bankfeed/internal/store"
)

// Server is the statement ingestion API server.
type Server struct {
	mux *http.ServeMux
	log zerolog.Logger
}

// New wires the handlers onto a mux.
func New(st *store.Store, imp *importer.Service, cat *categorize.Service, log zerolog.Logger) *Server {
	s := &Server{mux: http.NewServeMux(), log: log}
	s.setupRoutes(st, imp, cat)
	return s
}

func (s *Server) setupRoutes(st *store.Store, imp *importer.Service, cat *categorize.Service) {
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	api := handlers.NewAPIHandler(st, s.log)
	stmt := handlers.NewStatementHandlers(imp, cat, s.log)

	s.mux.HandleFunc("GET /api/accounts", api.GetAccounts)
	s.mux.HandleFunc("GET /api/accounts/{id}", api.GetAccount)
	s.mux.HandleFunc("GET /api/accounts/{id}/transactions", api.GetTransactions)

	s.mux.HandleFunc("POST /api/statements/preview", stmt.PreviewStatement)
	s.mux.HandleFunc("POST /api/accounts/{id}/import", stmt.ImportStatement)
	s.mux.HandleFunc("DELETE /api/accounts/{id}/batches/{batch}", stmt.DeleteBatch)

	s.mux.HandleFunc("POST /api/transactions/{id}/categorize", stmt.CategorizeTransaction)
	s.mux.HandleFunc("POST /api/transactions/{id}/uncategorize", stmt.UncategorizeTransaction)
	s.mux.HandleFunc("POST /api/transactions/{id}/reconcile", stmt.ReconcileTransaction)
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	handler := middleware.RequestLogger(s.log)(s.mux)
	handler = middleware.Recover(s.log)(handler)
	return middleware.CORS(handler)
}
