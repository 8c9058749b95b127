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

type WithdrawRequest struct {
	WalletID          uuid.UUID
	Amount            decimal.Decimal
	BankAccountNumber string
	BankName          string
	Description       string
	IdempotencyKey    string
	RequestedBy       uuid.UUID
}

func (r WithdrawRequest) idempotencyRequest() idempotency.Request {
	return idempotency.Request{
		Key:     r.IdempotencyKey,
		OwnerID: r.RequestedBy,
		Kind:    domain.ResultKindTransaction,
		Hash: idempotency.Fingerprint(opWithdraw,
			r.WalletID.String(), r.Amount.StringFixed(2), r.BankAccountNumber, r.BankName, r.Description),
	}
}

func withdrawalDescription(req WithdrawRequest) string {
	if req.Description != "" {
		return req.Description
	}
	return fmt.Sprintf("Withdrawal to %s (%s)", req.BankName, domain.MaskBankReference(req.BankAccountNumber))
}

// Withdraw pays Amount out of a wallet to an external bank account. It is
// subject to the same balance and daily limit checks as a transfer.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (result *domain.Transaction, err error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "orchestrator.Withdraw", trace.WithAttributes(
		attribute.String("wallet.id", req.WalletID.String()),
	))
	var replayed bool
	defer func() { s.finish(span, opWithdraw, started, replayed, err) }()

	log := logging.FromContext(ctx)

	if err := validateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", domain.Storage("withdraw.begin", err))
	}
	defer tx.Rollback()

	result, replayed, err = idempotency.ExecuteOnce(ctx, s.guard, tx, req.idempotencyRequest(),
		func(ctx context.Context) (*domain.Transaction, error) {
			return s.executeWithdraw(ctx, tx, req)
		},
	)
	if err != nil {
		logFailure(log, "withdrawal", err, "wallet_id", req.WalletID, "amount", req.Amount)
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", domain.Storage("withdraw.commit", err))
	}

	log.Info("withdrawal completed",
		"transaction_id", result.ID,
		"wallet_id", req.WalletID,
		"amount", result.Amount,
		"currency", result.SourceCurrency,
		"bank_reference", domain.MaskBankReference(req.BankAccountNumber),
		"replayed", replayed,
	)
	return result, nil
}

func (s *Service) executeWithdraw(ctx context.Context, tx *sql.Tx, req WithdrawRequest) (*domain.Transaction, error) {
	wallet, err := s.lockOne(ctx, tx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}

	ok, err := s.balances.HasSufficientBalance(ctx, tx, wallet.ID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.Storage("withdraw.balance", err))
	}
	if !ok {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.ErrInsufficientFunds)
	}

	now := s.now().UTC()
	if !wallet.CanSpend(req.Amount, now) {
		return nil, fmt.Errorf("executeWithdraw: spent %s of %s today: %w",
			wallet.SpentToday, wallet.DailyLimit, domain.ErrDailyLimitExceeded)
	}

	t := domain.NewTransaction(domain.TransactionTypeWithdrawal, req.Amount, wallet.Currency, withdrawalDescription(req), now)
	t.SourceWalletID = &wallet.ID
	t.IdempotencyKey = optionalKey(req.IdempotencyKey)

	entries := ledger.Withdrawal(t.ID, wallet.ID, req.Amount, wallet.Currency, now)
	if err := ledger.CheckBalanced(entries); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}

	if err := t.Complete(now); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}
	if err := s.transactions.Create(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.Storage("withdraw.create_transaction", err))
	}
	if err := s.ledger.Append(ctx, tx, entries); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.Storage("withdraw.append_entries", err))
	}

	wallet.RecordSpending(req.Amount, now)
	if err := s.wallets.UpdateSpending(ctx, tx, wallet); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.Storage("withdraw.update_spending", err))
	}

	changes, err := s.refreshBalances(ctx, tx, wallet)
	if err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}

	batch := newEventBatch(ctx, now)
	batch.add(domain.EventTypeWithdrawalCompleted, t.ID, domain.WithdrawalCompletedPayload{
		TransactionID:       t.ID,
		WalletID:            wallet.ID,
		OwnerID:             wallet.OwnerID,
		Amount:              req.Amount,
		Currency:            wallet.Currency,
		MaskedBankReference: domain.MaskBankReference(req.BankAccountNumber),
		BankName:            req.BankName,
	})
	batch.ledgerEntries(t.ID, entries)
	batch.balanceChanges(t.ID, "withdrawal", changes)
	if batch.err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", batch.err)
	}
	if err := s.outbox.Create(ctx, tx, batch.events...); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.Storage("withdraw.enqueue_events", err))
	}

	return t, nil
}
