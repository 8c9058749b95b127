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

const defaultTransferDescription = "Transfer"

type TransferRequest struct {
	SourceWalletID uuid.UUID
	TargetWalletID uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	// RequestedBy scopes IdempotencyKey to the caller.
	RequestedBy uuid.UUID
}

func (r TransferRequest) idempotencyRequest() idempotency.Request {
	return idempotency.Request{
		Key:     r.IdempotencyKey,
		OwnerID: r.RequestedBy,
		Kind:    domain.ResultKindTransfer,
		Hash: idempotency.Fingerprint(opTransfer,
			r.SourceWalletID.String(), r.TargetWalletID.String(), r.Amount.StringFixed(2), r.Description),
	}
}

// Transfer moves Amount from the source wallet to the target wallet,
// converting at the current rate when the currencies differ. With an
// idempotency key, a repeated call returns the first call's result.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (result *domain.TransferResult, err error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "orchestrator.Transfer", trace.WithAttributes(
		attribute.String("wallet.source_id", req.SourceWalletID.String()),
		attribute.String("wallet.target_id", req.TargetWalletID.String()),
	))
	var replayed bool
	defer func() { s.finish(span, opTransfer, started, replayed, err) }()

	log := logging.FromContext(ctx)

	if err := validateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if req.SourceWalletID == req.TargetWalletID {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrSameAccountTransfer)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", domain.Storage("transfer.begin", err))
	}
	defer tx.Rollback()

	result, replayed, err = idempotency.ExecuteOnce(ctx, s.guard, tx, req.idempotencyRequest(),
		func(ctx context.Context) (*domain.TransferResult, error) {
			return s.executeTransfer(ctx, tx, req)
		},
	)
	if err != nil {
		logFailure(log, "transfer", err,
			"source_wallet_id", req.SourceWalletID,
			"target_wallet_id", req.TargetWalletID,
			"amount", req.Amount,
		)
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Transfer: %w", domain.Storage("transfer.commit", err))
	}

	log.Info("transfer completed",
		"transaction_id", result.TransactionID,
		"source_wallet_id", result.SourceWalletID,
		"target_wallet_id", result.TargetWalletID,
		"source_amount", result.SourceAmount,
		"source_currency", result.SourceCurrency,
		"target_amount", result.TargetAmount,
		"target_currency", result.TargetCurrency,
		"replayed", replayed,
	)
	return result, nil
}

func (s *Service) executeTransfer(ctx context.Context, tx *sql.Tx, req TransferRequest) (*domain.TransferResult, error) {
	locked, err := LockWalletsInOrder(ctx, tx, s.wallets, req.SourceWalletID, req.TargetWalletID)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}
	source, target := locked[req.SourceWalletID], locked[req.TargetWalletID]

	if !source.Active {
		return nil, fmt.Errorf("executeTransfer: source: %w", domain.ErrAccountInactive)
	}
	if !target.Active {
		return nil, fmt.Errorf("executeTransfer: target: %w", domain.ErrAccountInactive)
	}

	ok, err := s.balances.HasSufficientBalance(ctx, tx, source.ID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", domain.Storage("transfer.balance", err))
	}
	if !ok {
		return nil, fmt.Errorf("executeTransfer: %w", domain.ErrInsufficientFunds)
	}

	now := s.now().UTC()
	if !source.CanSpend(req.Amount, now) {
		return nil, fmt.Errorf("executeTransfer: spent %s of %s today: %w",
			source.SpentToday, source.DailyLimit, domain.ErrDailyLimitExceeded)
	}

	conv, err := s.rates.Convert(ctx, req.Amount, source.Currency, target.Currency)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	description := req.Description
	if description == "" {
		description = defaultTransferDescription
	}

	t := domain.NewTransaction(domain.TransactionTypeTransfer, req.Amount, source.Currency, description, now)
	t.SourceWalletID = &source.ID
	t.TargetWalletID = &target.ID
	t.IdempotencyKey = optionalKey(req.IdempotencyKey)

	var entries []domain.LedgerEntry
	if source.Currency == target.Currency {
		entries = ledger.SameCurrencyTransfer(t.ID, source.ID, target.ID, req.Amount, source.Currency, now)
	} else {
		t.ConvertedAmount = &conv.ConvertedAmount
		t.TargetCurrency = &target.Currency
		t.ExchangeRate = &conv.Rate
		entries = ledger.CrossCurrencyTransfer(t.ID, source.ID, target.ID,
			req.Amount, source.Currency, conv.ConvertedAmount, target.Currency, now)
	}
	if err := ledger.CheckBalanced(entries); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	if err := t.Complete(now); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}
	if err := s.transactions.Create(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", domain.Storage("transfer.create_transaction", err))
	}
	if err := s.ledger.Append(ctx, tx, entries); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", domain.Storage("transfer.append_entries", err))
	}

	source.RecordSpending(req.Amount, now)
	if err := s.wallets.UpdateSpending(ctx, tx, source); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", domain.Storage("transfer.update_spending", err))
	}

	changes, err := s.refreshBalances(ctx, tx, source, target)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	result := &domain.TransferResult{
		TransactionID:  t.ID,
		Status:         t.Status,
		SourceWalletID: source.ID,
		TargetWalletID: target.ID,
		SourceAmount:   req.Amount,
		SourceCurrency: source.Currency,
		TargetAmount:   conv.ConvertedAmount,
		TargetCurrency: target.Currency,
		ExchangeRate:   conv.Rate,
		Description:    description,
		CompletedAt:    *t.CompletedAt,
	}

	batch := newEventBatch(ctx, now)
	batch.add(domain.EventTypeTransferCompleted, t.ID, domain.TransferCompletedPayload{
		TransactionID:  t.ID,
		SourceWalletID: source.ID,
		TargetWalletID: target.ID,
		SourceOwnerID:  source.OwnerID,
		TargetOwnerID:  target.OwnerID,
		SourceAmount:   result.SourceAmount,
		SourceCurrency: result.SourceCurrency,
		TargetAmount:   result.TargetAmount,
		TargetCurrency: result.TargetCurrency,
		ExchangeRate:   result.ExchangeRate,
	})
	batch.ledgerEntries(t.ID, entries)
	batch.balanceChanges(t.ID, "transfer", changes)
	if batch.err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", batch.err)
	}
	if err := s.outbox.Create(ctx, tx, batch.events...); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", domain.Storage("transfer.enqueue_events", err))
	}

	return result, nil
}
