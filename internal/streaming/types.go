package streaming

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeCard        EventType = "card"
	EventTypePurchase    EventType = "purchase"
	EventTypeImport      EventType = "import"
	EventTypeMatch       EventType = "match"
	EventTypeUnmatch     EventType = "unmatch"
	EventTypeMaterialize EventType = "materialize"
	EventTypeAutoMatch   EventType = "automatch"
	EventTypeUndo        EventType = "undo"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// CardEvent announces a registered card
type CardEvent struct {
	CardID int64  `json:"cardId"`
	Name   string `json:"name"`
}

// PurchaseEvent announces a purchase split into installments
type PurchaseEvent struct {
	CardID       int64           `json:"cardId"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Installments int             `json:"installments"`
}

// ImportEvent carries the counters of a finished statement import
type ImportEvent struct {
	BatchID    string `json:"batchId"`
	Account    string `json:"account"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
}

// MatchEvent describes a statement line gaining or losing its pairing.
// TransactionID is zero for unmatch.
type MatchEvent struct {
	StatementID   int64 `json:"statementId"`
	TransactionID int64 `json:"transactionId,omitempty"`
}

// AutoMatchEvent reports an auto-match run over a month
type AutoMatchEvent struct {
	Month   string `json:"month"`
	Matched int    `json:"matched"`
}

// UndoEvent reports a batch undo
type UndoEvent struct {
	Force   bool `json:"force"`
	Removed int  `json:"removed"`
}

func newEvent(t EventType, data interface{}) SSEEvent {
	return SSEEvent{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// NewCardEvent creates a card event
func NewCardEvent(e CardEvent) SSEEvent { return newEvent(EventTypeCard, e) }

// NewPurchaseEvent creates a purchase event
func NewPurchaseEvent(e PurchaseEvent) SSEEvent { return newEvent(EventTypePurchase, e) }

// NewImportEvent creates an import event
func NewImportEvent(e ImportEvent) SSEEvent { return newEvent(EventTypeImport, e) }

// NewMatchEvent creates a match event
func NewMatchEvent(e MatchEvent) SSEEvent { return newEvent(EventTypeMatch, e) }

// NewUnmatchEvent creates an unmatch event
func NewUnmatchEvent(e MatchEvent) SSEEvent { return newEvent(EventTypeUnmatch, e) }

// NewMaterializeEvent creates a materialize event
func NewMaterializeEvent(e MatchEvent) SSEEvent { return newEvent(EventTypeMaterialize, e) }

// NewAutoMatchEvent creates an auto-match event
func NewAutoMatchEvent(e AutoMatchEvent) SSEEvent { return newEvent(EventTypeAutoMatch, e) }

// NewUndoEvent creates an undo event
func NewUndoEvent(e UndoEvent) SSEEvent { return newEvent(EventTypeUndo, e) }

// NewHeartbeatEvent creates a heartbeat event
func NewHeartbeatEvent() SSEEvent { return newEvent(EventTypeHeartbeat, nil) }
