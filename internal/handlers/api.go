package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/store"
)

// APIHandler serves the read-side endpoints.
type APIHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(st *store.Store, log zerolog.Logger) *APIHandler {
	return &APIHandler{store: st, log: log}
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// GetAccounts handles GET /api/accounts.
func (h *APIHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if accounts == nil {
		accounts = []*domain.BankAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetAccount handles GET /api/accounts/{id}.
func (h *APIHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetTransactions handles GET /api/accounts/{id}/transactions.
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if _, err := h.store.GetAccount(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	txns, err := h.store.ListTransactionsByAccount(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if txns == nil {
		txns = []*domain.BankTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// pathID parses an int64 path segment.
func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q in path", domain.ErrValidation, r.PathValue(key))
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain error kinds onto HTTP status codes.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrParseFailure):
		status = http.StatusUnprocessableEntity
	default:
		log.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
