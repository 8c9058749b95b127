package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

type stubSums struct {
	credits, debits decimal.Decimal
	err             error
	calls           int
}

func (s *stubSums) SumCredits(_ context.Context, _ repository.Querier, _ uuid.UUID) (decimal.Decimal, error) {
	s.calls++
	return s.credits, s.err
}

func (s *stubSums) SumDebits(_ context.Context, _ repository.Querier, _ uuid.UUID) (decimal.Decimal, error) {
	s.calls++
	return s.debits, s.err
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTrueBalance(t *testing.T) {
	tests := []struct {
		name    string
		credits string
		debits  string
		want    string
	}{
		{name: "no entries", credits: "0", debits: "0", want: "0"},
		{name: "credits only", credits: "125.50", debits: "0", want: "125.50"},
		{name: "credits minus debits", credits: "100", debits: "40", want: "60"},
		{name: "four decimal places", credits: "10.0001", debits: "0.0001", want: "10"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewBalanceEngine(&stubSums{credits: d(tc.credits), debits: d(tc.debits)})
			got, err := engine.TrueBalance(context.Background(), nil, uuid.New())
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tc.want)), "got %s, want %s", got, tc.want)
		})
	}
}

func TestHasSufficientBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("zero amount short-circuits", func(t *testing.T) {
		sums := &stubSums{err: errors.New("must not be called")}
		ok, err := NewBalanceEngine(sums).HasSufficientBalance(ctx, nil, uuid.New(), decimal.Zero)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, sums.calls)
	})

	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{name: "below balance", amount: "59.99", want: true},
		{name: "equal to balance", amount: "60", want: true},
		{name: "above balance", amount: "60.01", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewBalanceEngine(&stubSums{credits: d("100"), debits: d("40")})
			ok, err := engine.HasSufficientBalance(ctx, nil, uuid.New(), d(tc.amount))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestVerify(t *testing.T) {
	engine := NewBalanceEngine(&stubSums{credits: d("100"), debits: d("25")})
	id := uuid.New()

	v, err := engine.Verify(context.Background(), nil, id, d("75.00"))
	require.NoError(t, err)
	assert.True(t, v.Consistent, "75 and 75.00 are the same decimal value")
	assert.True(t, v.Discrepancy.IsZero())

	v, err = engine.Verify(context.Background(), nil, id, d("80"))
	require.NoError(t, err)
	assert.False(t, v.Consistent)
	assert.True(t, v.Discrepancy.Equal(d("5")))
	assert.Equal(t, id, v.WalletID)
}

func TestTrueBalance_PropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewBalanceEngine(&stubSums{err: boom}).TrueBalance(context.Background(), nil, uuid.New())
	require.ErrorIs(t, err, boom)
}
