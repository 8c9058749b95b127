package reconciliation_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/ledger"
	"github.com/josh-kwaku/wallet-ledger/internal/metrics"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
	"github.com/josh-kwaku/wallet-ledger/internal/service/reconciliation"
	"github.com/josh-kwaku/wallet-ledger/internal/testutil"
)

func setupReconciliation(t *testing.T, db *sql.DB) *reconciliation.Service {
	t.Helper()
	ledgerRepo := repository.NewLedgerRepository(db)
	return reconciliation.NewService(
		repository.NewWalletRepository(db),
		ledgerRepo,
		ledger.NewBalanceEngine(ledgerRepo),
		repository.NewOutboxRepository(db),
		metrics.NewCollector(),
		db,
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestVerifyAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, u.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w.ID, "100")

	v, err := svc.VerifyAccount(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
	assert.True(t, v.TrueBalance.Equal(dec("100")))
	assert.Empty(t, v.Recommendation)
	assert.Equal(t, u.ID, v.OwnerID)

	testutil.CorruptCachedBalance(t, db, w.ID, "120")

	v, err = svc.VerifyAccount(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, v.Consistent)
	assert.True(t, v.Discrepancy.Equal(dec("20")), "discrepancy %s", v.Discrepancy)
	assert.NotEmpty(t, v.Recommendation)

	// verification never writes
	assert.True(t, testutil.GetWalletBalance(t, db, w.ID).Equal(dec("120")))
}

func TestVerifyAccount_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)

	_, err := svc.VerifyAccount(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestVerifyAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, db, "alice@test.com")
	usd := testutil.SeedWallet(t, db, u.ID, domain.CurrencyUSD)
	eur := testutil.SeedWallet(t, db, u.ID, domain.CurrencyEUR)
	gbp := testutil.SeedWallet(t, db, u.ID, domain.CurrencyGBP)
	testutil.FundWallet(t, db, usd.ID, "50")
	testutil.FundWallet(t, db, eur.ID, "75.25")

	report, err := svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalAccounts)
	assert.Equal(t, 3, report.ConsistentCount)
	assert.True(t, report.AllConsistent)
	assert.Empty(t, report.Discrepancies)

	testutil.CorruptCachedBalance(t, db, gbp.ID, "5")

	report, err = svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.False(t, report.AllConsistent)
	assert.Equal(t, 2, report.ConsistentCount)
	assert.Equal(t, 1, report.DiscrepancyCount)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, gbp.ID, report.Discrepancies[0].WalletID)
	assert.True(t, report.Discrepancies[0].Discrepancy.Equal(dec("5")))
}

// walletsThenFund commits a top-up straight after the wallet scan, between
// the cached-balance read and the ledger reads.
type walletsThenFund struct {
	*repository.WalletRepository
	afterList func()
}

func (w *walletsThenFund) ListAll(ctx context.Context, q repository.Querier) ([]domain.Wallet, error) {
	wallets, err := w.WalletRepository.ListAll(ctx, q)
	w.afterList()
	return wallets, err
}

func TestVerifyAll_ReadsOneSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, u.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w.ID, "100")

	ledgerRepo := repository.NewLedgerRepository(db)
	funded := false
	svc := reconciliation.NewService(
		&walletsThenFund{
			WalletRepository: repository.NewWalletRepository(db),
			afterList: func() {
				if !funded {
					funded = true
					testutil.FundWallet(t, db, w.ID, "30")
				}
			},
		},
		ledgerRepo,
		ledger.NewBalanceEngine(ledgerRepo),
		repository.NewOutboxRepository(db),
		metrics.NewCollector(),
		db,
	)

	report, err := svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.True(t, funded)
	assert.True(t, report.AllConsistent, "discrepancies: %+v", report.Discrepancies)
	assert.Equal(t, 1, report.ConsistentCount)

	report, err = svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.True(t, report.AllConsistent)
	assert.True(t, testutil.GetWalletBalance(t, db, w.ID).Equal(dec("130")))
}

func TestVerifyAllCurrencies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, u.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w.ID, "100")

	sv, err := svc.VerifyAllCurrencies(ctx)
	require.NoError(t, err)
	assert.True(t, sv.AllBalanced)
	assert.Len(t, sv.Currencies, len(domain.AllCurrencies))
	assert.EqualValues(t, 2, sv.EntryCount)
	require.NoError(t, svc.RequireBalancedLedger(ctx))

	testutil.InsertOrphanEntry(t, db, domain.CurrencyEUR, domain.EntryTypeDebit, "3.50")

	sv, err = svc.VerifyAllCurrencies(ctx)
	require.NoError(t, err)
	assert.False(t, sv.AllBalanced)
	for _, cv := range sv.Currencies {
		if cv.Currency == domain.CurrencyEUR {
			assert.False(t, cv.Balanced)
			assert.True(t, cv.Difference.Equal(dec("3.50")), "difference %s", cv.Difference)
		} else {
			assert.True(t, cv.Balanced, "%s", cv.Currency)
		}
	}

	err = svc.RequireBalancedLedger(ctx)
	assert.ErrorIs(t, err, domain.ErrLedgerInvariantViolation)
}

func TestVerifySystemWide_InvalidCurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)

	_, err := svc.VerifySystemWide(context.Background(), domain.Currency("JPY"))
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestReconcile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)
	ctx := context.Background()

	u := testutil.SeedUser(t, db, "alice@test.com")
	w := testutil.SeedWallet(t, db, u.ID, domain.CurrencyUSD)
	testutil.FundWallet(t, db, w.ID, "100")
	testutil.CorruptCachedBalance(t, db, w.ID, "87.13")

	res, err := svc.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, res.Adjusted)
	assert.True(t, res.PreviousCached.Equal(dec("87.13")))
	assert.True(t, res.NewBalance.Equal(dec("100")))
	assert.True(t, testutil.GetWalletBalance(t, db, w.ID).Equal(dec("100")))

	events, err := repository.NewOutboxRepository(db).GetByAggregateID(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeBalanceChanged, events[0].EventType)

	// a consistent wallet is left alone and emits nothing
	res, err = svc.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, res.Adjusted)

	events, err = repository.NewOutboxRepository(db).GetByAggregateID(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	v, err := svc.VerifyAccount(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent)
}

func TestReconcile_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupReconciliation(t, db)

	_, err := svc.Reconcile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
