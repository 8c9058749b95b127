package orchestrator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/idempotency"
	"github.com/josh-kwaku/wallet-ledger/internal/ledger"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

const defaultTopUpDescription = "Top-up"

type TopUpRequest struct {
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	RequestedBy    uuid.UUID
}

func (r TopUpRequest) idempotencyRequest() idempotency.Request {
	return idempotency.Request{
		Key:     r.IdempotencyKey,
		OwnerID: r.RequestedBy,
		Kind:    domain.ResultKindTransaction,
		Hash:    idempotency.Fingerprint(opTopUp, r.WalletID.String(), r.Amount.StringFixed(2), r.Description),
	}
}

// TopUp credits a wallet with cash received from outside the system.
func (s *Service) TopUp(ctx context.Context, req TopUpRequest) (result *domain.Transaction, err error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "orchestrator.TopUp", trace.WithAttributes(
		attribute.String("wallet.id", req.WalletID.String()),
	))
	var replayed bool
	defer func() { s.finish(span, opTopUp, started, replayed, err) }()

	log := logging.FromContext(ctx)

	if err := validateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("TopUp: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("TopUp: %w", domain.Storage("top_up.begin", err))
	}
	defer tx.Rollback()

	result, replayed, err = idempotency.ExecuteOnce(ctx, s.guard, tx, req.idempotencyRequest(),
		func(ctx context.Context) (*domain.Transaction, error) {
			return s.executeTopUp(ctx, tx, req)
		},
	)
	if err != nil {
		logFailure(log, "top-up", err, "wallet_id", req.WalletID, "amount", req.Amount)
		return nil, fmt.Errorf("TopUp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("TopUp: %w", domain.Storage("top_up.commit", err))
	}

	log.Info("top-up completed",
		"transaction_id", result.ID,
		"wallet_id", req.WalletID,
		"amount", result.Amount,
		"currency", result.SourceCurrency,
		"replayed", replayed,
	)
	return result, nil
}

func (s *Service) executeTopUp(ctx context.Context, tx *sql.Tx, req TopUpRequest) (*domain.Transaction, error) {
	wallet, err := s.lockOne(ctx, tx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", err)
	}

	description := req.Description
	if description == "" {
		description = defaultTopUpDescription
	}

	now := s.now().UTC()
	t := domain.NewTransaction(domain.TransactionTypeTopUp, req.Amount, wallet.Currency, description, now)
	t.TargetWalletID = &wallet.ID
	t.IdempotencyKey = optionalKey(req.IdempotencyKey)

	entries := ledger.TopUp(t.ID, wallet.ID, req.Amount, wallet.Currency, now)
	if err := ledger.CheckBalanced(entries); err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", err)
	}

	if err := t.Complete(now); err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", err)
	}
	if err := s.transactions.Create(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", domain.Storage("top_up.create_transaction", err))
	}
	if err := s.ledger.Append(ctx, tx, entries); err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", domain.Storage("top_up.append_entries", err))
	}

	changes, err := s.refreshBalances(ctx, tx, wallet)
	if err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", err)
	}

	batch := newEventBatch(ctx, now)
	batch.add(domain.EventTypeTopUpCompleted, t.ID, domain.TopUpCompletedPayload{
		TransactionID: t.ID,
		WalletID:      wallet.ID,
		OwnerID:       wallet.OwnerID,
		Amount:        req.Amount,
		Currency:      wallet.Currency,
		NewBalance:    wallet.Balance,
	})
	batch.ledgerEntries(t.ID, entries)
	batch.balanceChanges(t.ID, "top_up", changes)
	if batch.err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", batch.err)
	}
	if err := s.outbox.Create(ctx, tx, batch.events...); err != nil {
		return nil, fmt.Errorf("executeTopUp: %w", domain.Storage("top_up.enqueue_events", err))
	}

	return t, nil
}
