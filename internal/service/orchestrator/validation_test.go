package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "whole amount", amount: "40"},
		{name: "two decimals", amount: "0.01"},
		{name: "trailing zeros beyond two places", amount: "12.3400"},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-5", wantErr: true},
		{name: "three decimals", amount: "1.005", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAmount(decimal.RequireFromString(tc.amount))
			if tc.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWithdrawalDescription(t *testing.T) {
	tests := []struct {
		name string
		req  WithdrawRequest
		want string
	}{
		{
			name: "default from bank details",
			req:  WithdrawRequest{BankName: "Chase", BankAccountNumber: "000123456789"},
			want: "Withdrawal to Chase (****6789)",
		},
		{
			name: "short account number",
			req:  WithdrawRequest{BankName: "Monzo", BankAccountNumber: "12"},
			want: "Withdrawal to Monzo (****)",
		},
		{
			name: "caller description wins",
			req:  WithdrawRequest{BankName: "Chase", BankAccountNumber: "000123456789", Description: "Rent"},
			want: "Rent",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, withdrawalDescription(tc.req))
		})
	}
}

func TestIsBusinessFailure(t *testing.T) {
	assert.True(t, isBusinessFailure(fmt.Errorf("wrapped: %w", domain.ErrInsufficientFunds)))
	assert.True(t, isBusinessFailure(domain.ErrUnknownCurrencyPair))
	assert.False(t, isBusinessFailure(domain.Storage("op", errors.New("conn reset"))))
	assert.False(t, isBusinessFailure(domain.ErrLedgerInvariantViolation))
}

type recordingLocker struct {
	order   []uuid.UUID
	missing uuid.UUID
	fail    error
}

func (r *recordingLocker) GetForUpdate(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	r.order = append(r.order, id)
	if r.fail != nil {
		return nil, r.fail
	}
	if id == r.missing {
		return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
	}
	return &domain.Wallet{ID: id, Active: true}, nil
}

func TestLockWalletsInOrder(t *testing.T) {
	low := uuid.MustParse("10000000-0000-0000-0000-000000000000")
	high := uuid.MustParse("f0000000-0000-0000-0000-000000000000")

	t.Run("ascending regardless of argument order", func(t *testing.T) {
		for _, ids := range [][]uuid.UUID{{low, high}, {high, low}} {
			locker := &recordingLocker{}
			locked, err := LockWalletsInOrder(context.Background(), nil, locker, ids...)
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{low, high}, locker.order)
			assert.Len(t, locked, 2)
		}
	})

	t.Run("duplicate id locked once", func(t *testing.T) {
		locker := &recordingLocker{}
		_, err := LockWalletsInOrder(context.Background(), nil, locker, low, low)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{low}, locker.order)
	})

	t.Run("missing wallet", func(t *testing.T) {
		locker := &recordingLocker{missing: high}
		_, err := LockWalletsInOrder(context.Background(), nil, locker, high, low)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("driver error is a storage failure", func(t *testing.T) {
		locker := &recordingLocker{fail: errors.New("canceling statement due to lock timeout")}
		_, err := LockWalletsInOrder(context.Background(), nil, locker, low)
		require.ErrorIs(t, err, domain.ErrStorageFailure)
		assert.NotErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("lock timeout and deadlock are storage failures", func(t *testing.T) {
		for _, code := range []pq.ErrorCode{"55P03", "40P01"} {
			locker := &recordingLocker{fail: fmt.Errorf("GetForUpdate: %w", &pq.Error{Code: code})}
			_, err := LockWalletsInOrder(context.Background(), nil, locker, low, high)
			require.ErrorIs(t, err, domain.ErrStorageFailure, "code %s", code)
			assert.NotErrorIs(t, err, domain.ErrVersionConflict)

			var pqErr *pq.Error
			require.ErrorAs(t, err, &pqErr)
			assert.Equal(t, code, pqErr.Code)
			assert.Equal(t, []uuid.UUID{low}, locker.order, "stops at the first failed lock")
		}
	})
}
