package orchestrator_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/fx"
	"github.com/josh-kwaku/wallet-ledger/internal/idempotency"
	"github.com/josh-kwaku/wallet-ledger/internal/ledger"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
	"github.com/josh-kwaku/wallet-ledger/internal/service/orchestrator"
	"github.com/josh-kwaku/wallet-ledger/internal/testutil"
)

type converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error)
}

type unsupportedRates struct{}

func (unsupportedRates) Convert(_ context.Context, _ decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error) {
	return nil, fmt.Errorf("%s->%s: %w", from, to, domain.ErrUnknownCurrencyPair)
}

func setupOrchestrator(t *testing.T, db *sql.DB) *orchestrator.Service {
	t.Helper()
	return setupOrchestratorWithRates(t, db, fx.NewRateService())
}

func setupOrchestratorWithRates(t *testing.T, db *sql.DB, rates converter) *orchestrator.Service {
	t.Helper()
	ledgerRepo := repository.NewLedgerRepository(db)
	return orchestrator.NewService(
		repository.NewWalletRepository(db),
		ledgerRepo,
		repository.NewTransactionRepository(db),
		repository.NewOutboxRepository(db),
		ledger.NewBalanceEngine(ledgerRepo),
		rates,
		idempotency.NewGuard(repository.NewIdempotencyRepository(db), idempotency.DefaultTTL),
		nil,
		db,
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalance(t *testing.T, db *sql.DB, walletID uuid.UUID, want string) {
	t.Helper()
	got := testutil.GetWalletBalance(t, db, walletID)
	assert.True(t, got.Equal(dec(want)), "wallet %s: balance %s, want %s", walletID, got, want)
}

func assertLedgerBalanced(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, c := range domain.AllCurrencies {
		debits, credits := testutil.SumByCurrency(t, db, c)
		assert.True(t, debits.Equal(credits), "%s: debits %s != credits %s", c, debits, credits)
	}
}

func assertCachedMatchesLedger(t *testing.T, db *sql.DB, walletIDs ...uuid.UUID) {
	t.Helper()
	engine := ledger.NewBalanceEngine(repository.NewLedgerRepository(db))
	for _, id := range walletIDs {
		v, err := engine.Verify(context.Background(), db, id, testutil.GetWalletBalance(t, db, id))
		require.NoError(t, err)
		assert.True(t, v.Consistent, "wallet %s: cached %s, ledger %s", id, v.CachedBalance, v.TrueBalance)
	}
}

func TestTransfer_SameCurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w1.ID, "100")
	testutil.FundWallet(t, db, w2.ID, "10")

	res, err := svc.Transfer(ctx, orchestrator.TransferRequest{
		SourceWalletID: w1.ID,
		TargetWalletID: w2.ID,
		Amount:         dec("40"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusCompleted, res.Status)
	assert.True(t, res.TargetAmount.Equal(dec("40")))
	assert.True(t, res.ExchangeRate.Equal(dec("1")))
	assert.Equal(t, "Transfer", res.Description)

	assertBalance(t, db, w1.ID, "60")
	assertBalance(t, db, w2.ID, "50")
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, res.TransactionID))
	assert.True(t, testutil.GetSpentToday(t, db, w1.ID).Equal(dec("40")))

	entries, err := repository.NewLedgerRepository(db).GetByTransactionID(ctx, res.TransactionID)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotNil(t, e.WalletID)
		switch e.EntryType {
		case domain.EntryTypeDebit:
			assert.Equal(t, w1.ID, *e.WalletID)
			assert.Equal(t, ledger.DescTransferOut, e.Description)
		case domain.EntryTypeCredit:
			assert.Equal(t, w2.ID, *e.WalletID)
			assert.Equal(t, ledger.DescTransferIn, e.Description)
		}
	}

	txn, err := repository.NewTransactionRepository(db).GetByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.NotNil(t, txn.CompletedAt)

	events, err := repository.NewOutboxRepository(db).GetByAggregateID(ctx, res.TransactionID)
	require.NoError(t, err)
	var types []domain.EventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, domain.EventTypeTransferCompleted)
	assert.Contains(t, types, domain.EventTypeLedgerEntriesCreated)

	assertLedgerBalanced(t, db)
	assertCachedMatchesLedger(t, db, w1.ID, w2.ID)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w1.ID, "50")

	entriesBefore := testutil.CountRows(t, db, "ledger_entries")
	txnsBefore := testutil.CountRows(t, db, "transactions")

	_, err := svc.Transfer(context.Background(), orchestrator.TransferRequest{
		SourceWalletID: w1.ID,
		TargetWalletID: w2.ID,
		Amount:         dec("100"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assertBalance(t, db, w1.ID, "50")
	assertBalance(t, db, w2.ID, "0")
	assert.Equal(t, entriesBefore, testutil.CountRows(t, db, "ledger_entries"))
	assert.Equal(t, txnsBefore, testutil.CountRows(t, db, "transactions"))
	assert.Equal(t, 0, testutil.CountRows(t, db, "outbox_events"))
}

func TestTransfer_CrossCurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyEUR)
	testutil.FundWallet(t, db, w1.ID, "150")

	res, err := svc.Transfer(ctx, orchestrator.TransferRequest{
		SourceWalletID: w1.ID,
		TargetWalletID: w2.ID,
		Amount:         dec("100"),
		Description:    "Rent share",
	})
	require.NoError(t, err)

	assert.True(t, res.ExchangeRate.Equal(dec("0.92")))
	assert.True(t, res.TargetAmount.Equal(dec("92.00")))
	assert.Equal(t, domain.CurrencyEUR, res.TargetCurrency)

	assertBalance(t, db, w1.ID, "50")
	assertBalance(t, db, w2.ID, "92")
	assert.Equal(t, 4, testutil.CountLedgerEntries(t, db, res.TransactionID))

	entries, err := repository.NewLedgerRepository(db).GetByTransactionID(ctx, res.TransactionID)
	require.NoError(t, err)
	require.NoError(t, ledger.CheckBalanced(entries))

	var exchangeLegs int
	for _, e := range entries {
		if e.AccountType == domain.AccountTypeExchange {
			exchangeLegs++
			assert.Nil(t, e.WalletID)
		}
	}
	assert.Equal(t, 2, exchangeLegs)

	txn, err := repository.NewTransactionRepository(db).GetByID(ctx, res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.ConvertedAmount)
	assert.True(t, txn.ConvertedAmount.Equal(dec("92")))
	require.NotNil(t, txn.ExchangeRate)
	assert.True(t, txn.ExchangeRate.Equal(dec("0.92")))
	assert.Equal(t, "Rent share", txn.Description)

	assertLedgerBalanced(t, db)
	assertCachedMatchesLedger(t, db, w1.ID, w2.ID)
}

func TestTopUp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyGBP)

	txn, err := svc.TopUp(ctx, orchestrator.TopUpRequest{WalletID: w.ID, Amount: dec("25")})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeTopUp, txn.Type)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "Top-up", txn.Description)
	assertBalance(t, db, w.ID, "25")

	entries, err := repository.NewLedgerRepository(db).GetByTransactionID(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.Amount.Equal(dec("25")))
		switch e.EntryType {
		case domain.EntryTypeDebit:
			assert.Equal(t, domain.AccountTypeSystemCash, e.AccountType)
		case domain.EntryTypeCredit:
			assert.Equal(t, domain.AccountTypeWallet, e.AccountType)
			assert.Equal(t, w.ID, *e.WalletID)
		}
	}

	assertLedgerBalanced(t, db)
	assertCachedMatchesLedger(t, db, w.ID)
}

func TestWithdraw(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w.ID, "80")

	txn, err := svc.Withdraw(ctx, orchestrator.WithdrawRequest{
		WalletID:          w.ID,
		Amount:            dec("30.50"),
		BankAccountNumber: "GB29NWBK60161331926819",
		BankName:          "NatWest",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeWithdrawal, txn.Type)
	assert.Equal(t, "Withdrawal to NatWest (****6819)", txn.Description)
	assertBalance(t, db, w.ID, "49.50")
	assert.True(t, testutil.GetSpentToday(t, db, w.ID).Equal(dec("30.50")))

	events, err := repository.NewOutboxRepository(db).GetByAggregateID(ctx, txn.ID)
	require.NoError(t, err)
	var found bool
	for _, e := range events {
		if e.EventType == domain.EventTypeWithdrawalCompleted {
			found = true
			assert.Contains(t, string(e.Payload), `"masked_bank_reference":"****6819"`)
			assert.NotContains(t, string(e.Payload), "GB29NWBK")
		}
	}
	assert.True(t, found, "withdrawal event enqueued")

	_, err = svc.Withdraw(ctx, orchestrator.WithdrawRequest{WalletID: w.ID, Amount: dec("50"), BankAccountNumber: "1234"})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assertLedgerBalanced(t, db)
	assertCachedMatchesLedger(t, db, w.ID)
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyEUR)
	testutil.FundWallet(t, db, w1.ID, "100")

	req := orchestrator.TransferRequest{
		SourceWalletID: w1.ID,
		TargetWalletID: w2.ID,
		Amount:         dec("10"),
		IdempotencyKey: uuid.NewString(),
	}

	first, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	entriesAfterFirst := testutil.CountRows(t, db, "ledger_entries")

	second, err := svc.Transfer(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, first.TargetAmount.Equal(second.TargetAmount))
	assert.True(t, first.ExchangeRate.Equal(second.ExchangeRate))
	assert.True(t, first.CompletedAt.Equal(second.CompletedAt))
	assert.Equal(t, entriesAfterFirst, testutil.CountRows(t, db, "ledger_entries"))
	assertBalance(t, db, w1.ID, "90")

	_, err = svc.TopUp(ctx, orchestrator.TopUpRequest{WalletID: w1.ID, Amount: dec("5"), IdempotencyKey: req.IdempotencyKey})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
}

func TestTransfer_ConcurrentSameKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w1.ID, "100")

	req := orchestrator.TransferRequest{
		SourceWalletID: w1.ID,
		TargetWalletID: w2.ID,
		Amount:         dec("25"),
		IdempotencyKey: "retry-storm-1",
	}

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan *domain.TransferResult, attempts)
	errs := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Transfer(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	ids := map[uuid.UUID]bool{}
	for res := range results {
		ids[res.TransactionID] = true
	}
	assert.Len(t, ids, 1, "every attempt sees the same transaction")
	assertBalance(t, db, w1.ID, "75")
	assertBalance(t, db, w2.ID, "25")
}

func TestTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	a := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	b := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, a.ID, "1000")
	testutil.FundWallet(t, db, b.ID, "1000")

	const rounds = 20
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: a.ID, TargetWalletID: b.ID, Amount: dec("1")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: b.ID, TargetWalletID: a.ID, Amount: dec("1")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assertBalance(t, db, a.ID, "1000")
	assertBalance(t, db, b.ID, "1000")
	assertLedgerBalanced(t, db)
	assertCachedMatchesLedger(t, db, a.ID, b.ID)
}

func TestTransfer_ConcurrentOverdraft(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w1.ID, "100")

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(context.Background(), orchestrator.TransferRequest{
				SourceWalletID: w1.ID,
				TargetWalletID: w2.ID,
				Amount:         dec("30"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			rejected++
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, attempts-3, rejected)
	assertBalance(t, db, w1.ID, "10")
	assertBalance(t, db, w2.ID, "90")
}

func TestTransfer_DailyLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w1.ID, "500")
	testutil.SetDailyLimit(t, db, w1.ID, "100")

	_, err := svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("70")})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("30.01")})
	require.ErrorIs(t, err, domain.ErrDailyLimitExceeded)

	_, err = svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("30")})
	require.NoError(t, err)
	assertBalance(t, db, w1.ID, "400")
}

func TestTransfer_DailyLimitResetsOnNewDay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w1.ID, "500")
	testutil.SetDailyLimit(t, db, w1.ID, "100")
	testutil.SetSpending(t, db, w1.ID, "100", time.Now().AddDate(0, 0, -1))

	_, err := svc.Transfer(context.Background(), orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("60")})
	require.NoError(t, err)
	assert.True(t, testutil.GetSpentToday(t, db, w1.ID).Equal(dec("60")))
}

func TestTransfer_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	inactive := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyGBP)
	testutil.FundWallet(t, db, w1.ID, "100")
	testutil.SetWalletActive(t, db, inactive.ID, false)

	tests := []struct {
		name    string
		req     orchestrator.TransferRequest
		wantErr error
	}{
		{
			name:    "zero amount",
			req:     orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("0")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("-1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "sub-cent amount",
			req:     orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w2.ID, Amount: dec("0.001")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "same wallet",
			req:     orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: w1.ID, Amount: dec("1")},
			wantErr: domain.ErrSameAccountTransfer,
		},
		{
			name:    "unknown target",
			req:     orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: uuid.New(), Amount: dec("1")},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:    "inactive target",
			req:     orchestrator.TransferRequest{SourceWalletID: w1.ID, TargetWalletID: inactive.ID, Amount: dec("1")},
			wantErr: domain.ErrAccountInactive,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Transfer(ctx, tc.req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	assertBalance(t, db, w1.ID, "100")
	assert.Equal(t, 2, testutil.CountRows(t, db, "ledger_entries"), "only the seed funding entries exist")
}

func TestMixedOperations_KeepLedgerBalanced(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	usd := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	eur := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyEUR)
	gbp := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyGBP)

	steps := []func() error{
		func() error {
			_, err := svc.TopUp(ctx, orchestrator.TopUpRequest{WalletID: usd.ID, Amount: dec("500")})
			return err
		},
		func() error {
			_, err := svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: usd.ID, TargetWalletID: eur.ID, Amount: dec("33.33")})
			return err
		},
		func() error {
			_, err := svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: eur.ID, TargetWalletID: gbp.ID, Amount: dec("12.34")})
			return err
		},
		func() error {
			_, err := svc.Transfer(ctx, orchestrator.TransferRequest{SourceWalletID: gbp.ID, TargetWalletID: usd.ID, Amount: dec("5")})
			return err
		},
		func() error {
			_, err := svc.Withdraw(ctx, orchestrator.WithdrawRequest{WalletID: usd.ID, Amount: dec("100"), BankAccountNumber: "99887766", BankName: "Chase"})
			return err
		},
	}

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assertLedgerBalanced(t, db)
		assertCachedMatchesLedger(t, db, usd.ID, eur.ID, gbp.ID)
	}
}

func TestWithdraw_DailyLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w.ID, "500")
	testutil.SetDailyLimit(t, db, w.ID, "100")

	_, err := svc.Withdraw(ctx, orchestrator.WithdrawRequest{WalletID: w.ID, Amount: dec("80"), BankAccountNumber: "12345678", BankName: "Chase"})
	require.NoError(t, err)

	entriesBefore := testutil.CountRows(t, db, "ledger_entries")
	_, err = svc.Withdraw(ctx, orchestrator.WithdrawRequest{WalletID: w.ID, Amount: dec("20.01"), BankAccountNumber: "12345678", BankName: "Chase"})
	require.ErrorIs(t, err, domain.ErrDailyLimitExceeded)

	assertBalance(t, db, w.ID, "420")
	assert.True(t, testutil.GetSpentToday(t, db, w.ID).Equal(dec("80")))
	assert.Equal(t, entriesBefore, testutil.CountRows(t, db, "ledger_entries"))
}

func TestTopUpAndWithdraw_IdempotentReplay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)

	topUp := orchestrator.TopUpRequest{WalletID: w.ID, Amount: dec("60"), IdempotencyKey: "topup-1", RequestedBy: alice.ID}
	first, err := svc.TopUp(ctx, topUp)
	require.NoError(t, err)
	entries := testutil.CountRows(t, db, "ledger_entries")

	again, err := svc.TopUp(ctx, topUp)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, first.Amount.Equal(again.Amount))
	assert.Equal(t, entries, testutil.CountRows(t, db, "ledger_entries"))
	assertBalance(t, db, w.ID, "60")

	withdraw := orchestrator.WithdrawRequest{
		WalletID:          w.ID,
		Amount:            dec("15"),
		BankAccountNumber: "12345678",
		BankName:          "Chase",
		IdempotencyKey:    "withdraw-1",
		RequestedBy:       alice.ID,
	}
	out, err := svc.Withdraw(ctx, withdraw)
	require.NoError(t, err)
	entries = testutil.CountRows(t, db, "ledger_entries")

	outAgain, err := svc.Withdraw(ctx, withdraw)
	require.NoError(t, err)
	assert.Equal(t, out.ID, outAgain.ID)
	assert.Equal(t, out.Description, outAgain.Description)
	assert.Equal(t, entries, testutil.CountRows(t, db, "ledger_entries"))
	assertBalance(t, db, w.ID, "45")
	assert.True(t, testutil.GetSpentToday(t, db, w.ID).Equal(dec("15")))
}

func TestIdempotencyKey_ScopedToCallerAndArguments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	aliceUSD := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	bobUSD := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, aliceUSD.ID, "100")
	testutil.FundWallet(t, db, bobUSD.ID, "100")

	const key = "shared-key"
	first, err := svc.Transfer(ctx, orchestrator.TransferRequest{
		SourceWalletID: aliceUSD.ID,
		TargetWalletID: bobUSD.ID,
		Amount:         dec("10"),
		IdempotencyKey: key,
		RequestedBy:    alice.ID,
	})
	require.NoError(t, err)

	t.Run("another caller with the same key gets its own transfer", func(t *testing.T) {
		res, err := svc.Transfer(ctx, orchestrator.TransferRequest{
			SourceWalletID: bobUSD.ID,
			TargetWalletID: aliceUSD.ID,
			Amount:         dec("25"),
			IdempotencyKey: key,
			RequestedBy:    bob.ID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.TransactionID, res.TransactionID)
		assert.Equal(t, bobUSD.ID, res.SourceWalletID)
		assert.True(t, res.SourceAmount.Equal(dec("25")))
	})

	t.Run("same caller and key with different arguments is refused", func(t *testing.T) {
		entries := testutil.CountRows(t, db, "ledger_entries")
		_, err := svc.Transfer(ctx, orchestrator.TransferRequest{
			SourceWalletID: aliceUSD.ID,
			TargetWalletID: bobUSD.ID,
			Amount:         dec("99"),
			IdempotencyKey: key,
			RequestedBy:    alice.ID,
		})
		require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
		assert.Equal(t, entries, testutil.CountRows(t, db, "ledger_entries"))
	})

	t.Run("equal amounts written differently still replay", func(t *testing.T) {
		res, err := svc.Transfer(ctx, orchestrator.TransferRequest{
			SourceWalletID: aliceUSD.ID,
			TargetWalletID: bobUSD.ID,
			Amount:         dec("10.00"),
			IdempotencyKey: key,
			RequestedBy:    alice.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, first.TransactionID, res.TransactionID)
	})

	assertBalance(t, db, aliceUSD.ID, "115")
	assertBalance(t, db, bobUSD.ID, "85")
	assertLedgerBalanced(t, db)
}

func TestTransfer_UnknownCurrencyPair(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestratorWithRates(t, db, unsupportedRates{})

	alice := testutil.SeedUser(t, db, "alice@test.com")
	bob := testutil.SeedUser(t, db, "bob@test.com")
	w1 := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	w2 := testutil.SeedWallet(t, db, bob.ID, domain.CurrencyEUR)
	testutil.FundWallet(t, db, w1.ID, "100")

	txnsBefore := testutil.CountRows(t, db, "transactions")
	entriesBefore := testutil.CountRows(t, db, "ledger_entries")

	_, err := svc.Transfer(context.Background(), orchestrator.TransferRequest{
		SourceWalletID: w1.ID,
		TargetWalletID: w2.ID,
		Amount:         dec("10"),
		IdempotencyKey: "fx-missing",
	})
	require.ErrorIs(t, err, domain.ErrUnknownCurrencyPair)

	assert.Equal(t, txnsBefore, testutil.CountRows(t, db, "transactions"))
	assert.Equal(t, entriesBefore, testutil.CountRows(t, db, "ledger_entries"))
	assert.Equal(t, 0, testutil.CountRows(t, db, "idempotency_records"))
	assert.Equal(t, 0, testutil.CountRows(t, db, "outbox_events"))
	assertBalance(t, db, w1.ID, "100")
	assert.True(t, testutil.GetSpentToday(t, db, w1.ID).IsZero())
}

func TestTopUpAndWithdraw_MissingOrInactiveWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrchestrator(t, db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice@test.com")
	inactive := testutil.SeedWallet(t, db, alice.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, inactive.ID, "50")
	testutil.SetWalletActive(t, db, inactive.ID, false)
	entriesBefore := testutil.CountRows(t, db, "ledger_entries")

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{
			name: "top-up unknown wallet",
			run: func() error {
				_, err := svc.TopUp(ctx, orchestrator.TopUpRequest{WalletID: uuid.New(), Amount: dec("10")})
				return err
			},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name: "top-up inactive wallet",
			run: func() error {
				_, err := svc.TopUp(ctx, orchestrator.TopUpRequest{WalletID: inactive.ID, Amount: dec("10")})
				return err
			},
			wantErr: domain.ErrAccountInactive,
		},
		{
			name: "withdraw unknown wallet",
			run: func() error {
				_, err := svc.Withdraw(ctx, orchestrator.WithdrawRequest{WalletID: uuid.New(), Amount: dec("10"), BankAccountNumber: "12345678", BankName: "Chase"})
				return err
			},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name: "withdraw inactive wallet",
			run: func() error {
				_, err := svc.Withdraw(ctx, orchestrator.WithdrawRequest{WalletID: inactive.ID, Amount: dec("10"), BankAccountNumber: "12345678", BankName: "Chase"})
				return err
			},
			wantErr: domain.ErrAccountInactive,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), tc.wantErr)
		})
	}

	assert.Equal(t, entriesBefore, testutil.CountRows(t, db, "ledger_entries"))
	assertBalance(t, db, inactive.ID, "50")
}
