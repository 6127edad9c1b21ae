package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/installment"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/middleware"
	"github.com/rumor-ml/commons.systems/cardledger/internal/streaming"
)

// LedgerHandler serves cards, purchases and invoices
type LedgerHandler struct {
	svc    *ledger.Service
	events *streaming.Hub
	now    func() time.Time
}

// NewLedgerHandler creates the handler. events may be nil.
func NewLedgerHandler(svc *ledger.Service, events *streaming.Hub) *LedgerHandler {
	return &LedgerHandler{svc: svc, events: events, now: time.Now}
}

// ListCards handles GET /api/cards
func (h *LedgerHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.ListCards(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to list cards")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cards": cards,
		"count": len(cards),
	})
}

// CreateCard handles POST /api/cards
func (h *LedgerHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string          `json:"name"`
		Limit      decimal.Decimal `json:"limit"`
		ClosingDay int             `json:"closingDay"`
		DueDay     int             `json:"dueDay"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	card, err := h.svc.AddCard(r.Context(), req.Name, req.Limit, req.ClosingDay, req.DueDay)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create card")
		return
	}
	h.events.Publish(streaming.NewCardEvent(streaming.CardEvent{CardID: card.ID, Name: card.Name}))
	middleware.WriteJSON(w, http.StatusCreated, card)
}

// Invoice handles GET /api/cards/{id}/invoice?date=YYYY-MM-DD
func (h *LedgerHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ref, err := parseDate("date", r.URL.Query().Get("date"), h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	inv, err := h.svc.Invoice(r.Context(), id, ref)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute invoice")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, inv)
}

// Preview handles GET /api/cards/{id}/preview?date=YYYY-MM-DD
func (h *LedgerHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ref, err := parseDate("date", r.URL.Query().Get("date"), h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	p, err := h.svc.Preview(r.Context(), id, ref)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute preview")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// CreatePurchase handles POST /api/purchases
func (h *LedgerHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID       int64           `json:"cardId"`
		Date         string          `json:"date"`
		Description  string          `json:"description"`
		Category     string          `json:"category"`
		Amount       decimal.Decimal `json:"amount"`
		Installments int             `json:"installments"`
		Tags         string          `json:"tags"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date, h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	rows, err := h.svc.AddPurchase(r.Context(), installment.Purchase{
		CardID:       req.CardID,
		Date:         date,
		Description:  req.Description,
		Category:     req.Category,
		Amount:       req.Amount,
		Installments: req.Installments,
		Tags:         req.Tags,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to add purchase")
		return
	}
	h.events.Publish(streaming.NewPurchaseEvent(streaming.PurchaseEvent{
		CardID:       req.CardID,
		Description:  rows[0].Description,
		Amount:       req.Amount.Round(2),
		Installments: len(rows),
	}))

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"transactions": rows,
		"count":        len(rows),
	})
}

// ListTransactions handles GET /api/transactions?month=YYYY-MM
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.URL.Query().Get("month"), h.now())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	txs, err := h.svc.Transactions(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}
