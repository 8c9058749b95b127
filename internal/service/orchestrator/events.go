package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

// NewOutboxEvent builds a pending event correlated with the request in ctx.
func NewOutboxEvent(ctx context.Context, eventType domain.EventType, aggregateID uuid.UUID, payload any, at time.Time) (domain.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("NewOutboxEvent: %s: %w", eventType, err)
	}
	return domain.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		CorrelationID: logging.RequestIDFromContext(ctx),
		Payload:       body,
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: at,
		OccurredAt:    at,
	}, nil
}

type eventBatch struct {
	ctx    context.Context
	at     time.Time
	events []domain.OutboxEvent
	err    error
}

func newEventBatch(ctx context.Context, at time.Time) *eventBatch {
	return &eventBatch{ctx: ctx, at: at}
}

func (b *eventBatch) add(eventType domain.EventType, aggregateID uuid.UUID, payload any) {
	if b.err != nil {
		return
	}
	e, err := NewOutboxEvent(b.ctx, eventType, aggregateID, payload, b.at)
	if err != nil {
		b.err = err
		return
	}
	b.events = append(b.events, e)
}

func (b *eventBatch) ledgerEntries(txID uuid.UUID, entries []domain.LedgerEntry) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	b.add(domain.EventTypeLedgerEntriesCreated, txID, domain.LedgerEntriesCreatedPayload{
		TransactionID: txID,
		EntryIDs:      ids,
		EntryCount:    len(entries),
	})
}

func (b *eventBatch) balanceChanges(txID uuid.UUID, reason string, changes []balanceChange) {
	for _, c := range changes {
		id := txID
		b.add(domain.EventTypeBalanceChanged, c.wallet.ID, domain.BalanceChangedPayload{
			WalletID:        c.wallet.ID,
			OwnerID:         c.wallet.OwnerID,
			Currency:        c.wallet.Currency,
			PreviousBalance: c.previous,
			NewBalance:      c.current,
			Reason:          reason,
			TransactionID:   &id,
		})
	}
}
