package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/importer"
	"github.com/rumor-ml/commons.systems/cardledger/internal/middleware"
	"github.com/rumor-ml/commons.systems/cardledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/cardledger/internal/streaming"
)

// ReconcileHandler serves statement import and reconciliation
type ReconcileHandler struct {
	importer  *importer.Importer
	engine    *reconcile.Engine
	tolerance reconcile.Tolerance
	events    *streaming.Hub
	now       func() time.Time
}

// NewReconcileHandler creates the handler. tol is used by auto-match
// requests that do not carry their own tolerance. events may be nil.
func NewReconcileHandler(imp *importer.Importer, engine *reconcile.Engine, tol reconcile.Tolerance, events *streaming.Hub) *ReconcileHandler {
	return &ReconcileHandler{importer: imp, engine: engine, tolerance: tol, events: events, now: time.Now}
}

// Import handles POST /api/statements/import?account=NAME with the raw file as body
func (h *ReconcileHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Statement file too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Statement file is empty")
		return
	}

	outcome, err := h.importer.Import(r.Context(), data, r.URL.Query().Get("account"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to import statement")
		return
	}
	h.events.Publish(streaming.NewImportEvent(streaming.ImportEvent{
		BatchID:    outcome.BatchID,
		Account:    outcome.Account,
		Inserted:   outcome.Inserted,
		Duplicates: outcome.Duplicates,
		Skipped:    len(outcome.Skipped),
	}))
	middleware.WriteJSON(w, http.StatusCreated, outcome)
}

// ListStatements handles GET /api/statements?month=YYYY-MM
func (h *ReconcileHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.URL.Query().Get("month"), h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	lines, err := h.engine.StatementLines(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list statement lines")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"lines": lines,
		"count": len(lines),
	})
}

// Match handles POST /api/statements/{id}/match
func (h *ReconcileHandler) Match(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		TransactionID int64 `json:"transactionId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TransactionID <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "transactionId is required")
		return
	}

	if err := h.engine.Match(r.Context(), id, req.TransactionID); err != nil {
		writeServiceError(w, r, err, "Failed to match statement line")
		return
	}
	h.events.Publish(streaming.NewMatchEvent(streaming.MatchEvent{StatementID: id, TransactionID: req.TransactionID}))
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statementId":   id,
		"transactionId": req.TransactionID,
		"status":        "matched",
	})
}

// Unmatch handles POST /api/statements/{id}/unmatch
func (h *ReconcileHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.Unmatch(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "Failed to unmatch statement line")
		return
	}
	h.events.Publish(streaming.NewUnmatchEvent(streaming.MatchEvent{StatementID: id}))
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statementId": id,
		"status":      "unmatched",
	})
}

// Materialize handles POST /api/statements/{id}/materialize
func (h *ReconcileHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		CardID int64 `json:"cardId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CardID <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "cardId is required")
		return
	}

	txID, err := h.engine.Materialize(r.Context(), id, req.CardID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to materialize transaction")
		return
	}
	h.events.Publish(streaming.NewMaterializeEvent(streaming.MatchEvent{StatementID: id, TransactionID: txID}))
	middleware.WriteJSON(w, http.StatusCreated, map[string]int64{
		"statementId":   id,
		"transactionId": txID,
	})
}

// AutoMatch handles POST /api/reconcile/auto. Every body field is optional.
func (h *ReconcileHandler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Month          string           `json:"month"`
		ToleranceDays  *int             `json:"toleranceDays"`
		ToleranceValue *decimal.Decimal `json:"toleranceValue"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	month, err := parseMonth(req.Month, h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	tol := h.tolerance
	if req.ToleranceDays != nil {
		tol.Days = *req.ToleranceDays
	}
	if req.ToleranceValue != nil {
		tol.Value = *req.ToleranceValue
	}

	n, err := h.engine.AutoMatch(r.Context(), month, tol)
	if err != nil {
		writeServiceError(w, r, err, "Failed to auto-match")
		return
	}
	h.events.Publish(streaming.NewAutoMatchEvent(streaming.AutoMatchEvent{Month: month.Format("2006-01"), Matched: n}))
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":     month.Format("2006-01"),
		"tolerance": tol,
		"matched":   n,
	})
}

// LatestBatch handles GET /api/batches/latest
func (h *ReconcileHandler) LatestBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.engine.LastBatch(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to load latest batch")
		return
	}
	if batch == nil {
		middleware.WriteError(w, http.StatusNotFound, "No imported batch")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, batch)
}

// UndoLatestBatch handles POST /api/batches/latest/undo?force=true|false
func (h *ReconcileHandler) UndoLatestBatch(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		var err error
		if force, err = strconv.ParseBool(v); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "force must be true or false")
			return
		}
	}

	removed, err := h.engine.UndoLastBatch(r.Context(), force)
	if err != nil {
		writeServiceError(w, r, err, "Failed to undo batch")
		return
	}
	h.events.Publish(streaming.NewUndoEvent(streaming.UndoEvent{Force: force, Removed: removed}))
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"force":   force,
		"removed": removed,
	})
}

// MonthSummary handles GET /api/months/{month}
func (h *ReconcileHandler) MonthSummary(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.PathValue("month"), h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	sum, err := h.engine.MonthSummary(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err, "Failed to summarize month")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sum)
}
