// Package ledger registers cards and purchases and aggregates card invoices.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/cycle"
	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/installment"
)

// Invoice is the set of a card's transactions inside one billing cycle
type Invoice struct {
	Card    domain.Card          `json:"card"`
	Cycle   cycle.Range          `json:"cycle"`
	DueDate time.Time            `json:"dueDate"`
	Items   []domain.Transaction `json:"items"`
	Total   decimal.Decimal      `json:"total"`
}

// Preview summarizes limit usage for the cycle containing a reference date.
// The limit is informational; Available never goes below zero.
type Preview struct {
	Invoice     *Invoice        `json:"invoice"`
	Limit       decimal.Decimal `json:"limit"`
	Used        decimal.Decimal `json:"used"`
	Available   decimal.Decimal `json:"available"`
	Utilization float64         `json:"utilization"`
	Confirmed   int             `json:"confirmed"`
	Pending     int             `json:"pending"`
}

// Service records cards and purchases and computes invoices from the stored
// transactions.
type Service struct {
	store    domain.Store
	holidays cycle.Holidays
	log      zerolog.Logger
}

// NewService creates a ledger service. holidays may be nil.
func NewService(store domain.Store, holidays cycle.Holidays, log zerolog.Logger) *Service {
	return &Service{store: store, holidays: holidays, log: log}
}

// AddCard validates and stores a new card
func (s *Service) AddCard(ctx context.Context, name string, limit decimal.Decimal, closingDay, dueDay int) (*domain.Card, error) {
	card, err := domain.NewCard(name, limit, closingDay, dueDay)
	if err != nil {
		return nil, err
	}
	id, err := s.store.CreateCard(ctx, card)
	if err != nil {
		return nil, err
	}
	card.ID = id

	s.log.Info().Int64("card", id).Str("name", card.Name).Msg("card added")
	return card, nil
}

// ListCards returns every card ordered by name
func (s *Service) ListCards(ctx context.Context) ([]domain.Card, error) {
	return s.store.ListCards(ctx)
}

// AddPurchase splits p into installments and stores them atomically.
// The returned transactions carry their new ids.
func (s *Service) AddPurchase(ctx context.Context, p installment.Purchase) ([]domain.Transaction, error) {
	if p.CardID <= 0 {
		return nil, domain.NewValidationError("card", "a card must be selected")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rows := installment.Plan(p)
	err := s.store.WithinTx(ctx, func(repo domain.Repository) error {
		if _, err := repo.GetCard(ctx, p.CardID); err != nil {
			return err
		}
		for i := range rows {
			id, err := repo.InsertTransaction(ctx, &rows[i])
			if err != nil {
				return err
			}
			rows[i].ID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("card", p.CardID).
		Str("amount", p.Amount.StringFixed(2)).
		Int("installments", len(rows)).
		Msg("purchase added")
	return rows, nil
}

// Transactions returns the transactions dated in month, newest first
func (s *Service) Transactions(ctx context.Context, month time.Time) ([]domain.Transaction, error) {
	first, next := domain.MonthRange(month)
	return s.store.ListTransactions(ctx, domain.TransactionFilter{From: first, To: next.AddDate(0, 0, -1)})
}

// Invoice computes the cycle containing ref for a card, its due date and the
// card's transactions dated inside the cycle. Nothing is cached.
func (s *Service) Invoice(ctx context.Context, cardID int64, ref time.Time) (*Invoice, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return s.invoiceFor(ctx, card, ref)
}

func (s *Service) invoiceFor(ctx context.Context, card *domain.Card, ref time.Time) (*Invoice, error) {
	rng, err := cycle.RangeFor(card.ClosingDay, ref)
	if err != nil {
		return nil, err
	}
	due, err := cycle.InvoiceDueDate(card.DueDay, rng.End, s.holidays)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListTransactions(ctx, domain.TransactionFilter{CardID: card.ID, From: rng.Start, To: rng.End})
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}

	total := decimal.Zero
	for _, t := range items {
		total = total.Add(t.Amount)
	}

	return &Invoice{
		Card:    *card,
		Cycle:   rng,
		DueDate: due,
		Items:   items,
		Total:   total.Round(2),
	}, nil
}

// Preview reports how much of the card's limit the current cycle uses
func (s *Service) Preview(ctx context.Context, cardID int64, ref time.Time) (*Preview, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return s.previewFor(ctx, card, ref)
}

// Previews returns a Preview for every card, ordered like ListCards
func (s *Service) Previews(ctx context.Context, ref time.Time) ([]Preview, error) {
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	previews := make([]Preview, 0, len(cards))
	for i := range cards {
		p, err := s.previewFor(ctx, &cards[i], ref)
		if err != nil {
			return nil, err
		}
		previews = append(previews, *p)
	}
	return previews, nil
}

func (s *Service) previewFor(ctx context.Context, card *domain.Card, ref time.Time) (*Preview, error) {
	inv, err := s.invoiceFor(ctx, card, ref)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Invoice:   inv,
		Limit:     card.Limit,
		Used:      inv.Total,
		Available: decimal.Max(decimal.Zero, card.Limit.Sub(inv.Total)),
	}
	if card.Limit.IsPositive() {
		p.Utilization = inv.Total.Div(card.Limit).InexactFloat64()
	}
	for _, t := range inv.Items {
		if t.Confirmed {
			p.Confirmed++
		} else {
			p.Pending++
		}
	}
	return p, nil
}
