package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/arthaledger/bankfeed/internal/categorize"
	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/importer"
	"github.com/arthaledger/bankfeed/internal/money"
)

// StatementHandlers serves the statement upload and categorization
// endpoints.
type StatementHandlers struct {
	importer *importer.Service
	cat      *categorize.Service
	log      zerolog.Logger
}

// NewStatementHandlers creates the mutation-side handlers.
func NewStatementHandlers(imp *importer.Service, cat *categorize.Service, log zerolog.Logger) *StatementHandlers {
	return &StatementHandlers{importer: imp, cat: cat, log: log}
}

// readUpload extracts the statement file from a multipart form. The optional
// "format" field declares the bank format.
func readUpload(r *http.Request) (content []byte, filename, format string, err error) {
	if err := r.ParseMultipartForm(importer.MaxUploadBytes); err != nil {
		return nil, "", "", fmt.Errorf("%w: malformed multipart form", domain.ErrValidation)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: missing file field", domain.ErrValidation)
	}
	defer file.Close()

	if err := importer.CheckUpload(header.Filename, header.Size); err != nil {
		return nil, "", "", err
	}
	content, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "", fmt.Errorf("read upload: %w", err)
	}
	return content, header.Filename, r.FormValue("format"), nil
}

// PreviewStatement handles POST /api/statements/preview. Nothing is written.
func (h *StatementHandlers) PreviewStatement(w http.ResponseWriter, r *http.Request) {
	content, filename, format, err := readUpload(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	preview, err := h.importer.Preview(r.Context(), content, filename, format)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ImportStatement handles POST /api/accounts/{id}/import.
func (h *StatementHandlers) ImportStatement(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	content, filename, format, err := readUpload(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	result, err := h.importer.ImportStatement(r.Context(), accountID, content, filename, format)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// DeleteBatch handles DELETE /api/accounts/{id}/batches/{batch}.
func (h *StatementHandlers) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	result, err := h.importer.DeleteBatch(r.Context(), accountID, r.PathValue("batch"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// categorizeRequest is the JSON body for POST /api/transactions/{id}/categorize.
type categorizeRequest struct {
	Category             string            `json:"category"`
	SubAccountID         int64             `json:"subAccountId"`
	CustomerID           int64             `json:"customerId"`
	VendorID             int64             `json:"vendorId"`
	TransferAccountID    int64             `json:"transferAccountId"`
	Targets              []categorizeTarget `json:"targets"`
	StoreExcessAsAdvance bool              `json:"storeExcessAsAdvance"`
}

type categorizeTarget struct {
	ID     int64       `json:"id"`
	Amount money.Paise `json:"amount"`
}

// CategorizeTransaction handles POST /api/transactions/{id}/categorize.
func (h *StatementHandlers) CategorizeTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.log, fmt.Errorf("%w: malformed request body", domain.ErrValidation))
		return
	}

	req := categorize.Request{
		Category:             domain.Category(body.Category),
		SubAccountID:         body.SubAccountID,
		CustomerID:           body.CustomerID,
		VendorID:             body.VendorID,
		TransferAccountID:    body.TransferAccountID,
		StoreExcessAsAdvance: body.StoreExcessAsAdvance,
	}
	for _, t := range body.Targets {
		req.Targets = append(req.Targets, categorize.Target{ID: t.ID, Amount: t.Amount})
	}

	if err := h.cat.Categorize(r.Context(), txnID, req); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "categorized"})
}

// UncategorizeTransaction handles POST /api/transactions/{id}/uncategorize.
func (h *StatementHandlers) UncategorizeTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.cat.Uncategorize(r.Context(), txnID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "uncategorized"})
}

// ReconcileTransaction handles POST /api/transactions/{id}/reconcile.
func (h *StatementHandlers) ReconcileTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body struct {
		Reconciled bool `json:"reconciled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.log, fmt.Errorf("%w: malformed request body", domain.ErrValidation))
		return
	}
	if err := h.importer.SetReconciled(r.Context(), txnID, body.Reconciled); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reconciled": body.Reconciled})
}
