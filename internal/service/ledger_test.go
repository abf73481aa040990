package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/store"
	"commission-service/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedgerStore struct {
	paid        []models.CommissionEntry
	markErr     error
	entries     []models.CommissionEntry
	entryLimit  int
	stats       *models.AccountStats
	statsCalls  int
	statsAsOf   time.Time
	summary     *models.GlobalSummary
	summaryRuns int
}

func (f *fakeLedgerStore) MarkPaid(_ context.Context, _ []int64) ([]models.CommissionEntry, error) {
	if f.markErr != nil {
		return nil, f.markErr
	}
	return f.paid, nil
}

func (f *fakeLedgerStore) GetEntriesByOrderID(_ context.Context, _ int64) ([]models.CommissionEntry, error) {
	return f.entries, nil
}

func (f *fakeLedgerStore) GetEntriesByRecipient(_ context.Context, _ int64, limit int) ([]models.CommissionEntry, error) {
	f.entryLimit = limit
	return f.entries, nil
}

func (f *fakeLedgerStore) StatsForAccount(_ context.Context, _ int64, asOf time.Time) (*models.AccountStats, error) {
	f.statsCalls++
	f.statsAsOf = asOf
	return f.stats, nil
}

func (f *fakeLedgerStore) GlobalSummary(_ context.Context, _, _ *time.Time) (*models.GlobalSummary, error) {
	f.summaryRuns++
	return f.summary, nil
}

type fakeLedgerCache struct {
	stats       map[int64]models.AccountStats
	summary     *models.GlobalSummary
	locked      bool
	lockDenied  bool
	released    bool
	invalidated []int64
}

func (f *fakeLedgerCache) GetAccountStats(_ context.Context, accountID int64, dest interface{}) (bool, error) {
	stats, ok := f.stats[accountID]
	if !ok {
		return false, nil
	}
	*dest.(*models.AccountStats) = stats
	return true, nil
}

func (f *fakeLedgerCache) SetAccountStats(_ context.Context, accountID int64, value interface{}, _ time.Duration) error {
	f.stats[accountID] = *value.(*models.AccountStats)
	return nil
}

func (f *fakeLedgerCache) InvalidateAccountStats(_ context.Context, accountIDs ...int64) error {
	f.invalidated = append(f.invalidated, accountIDs...)
	for _, id := range accountIDs {
		delete(f.stats, id)
	}
	return nil
}

func (f *fakeLedgerCache) GetGlobalSummary(_ context.Context, dest interface{}) (bool, error) {
	if f.summary == nil {
		return false, nil
	}
	*dest.(*models.GlobalSummary) = *f.summary
	return true, nil
}

func (f *fakeLedgerCache) SetGlobalSummary(_ context.Context, value interface{}, _ time.Duration) error {
	f.summary = value.(*models.GlobalSummary)
	return nil
}

func (f *fakeLedgerCache) AcquireLock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	if f.lockDenied {
		return false, nil
	}
	f.locked = true
	return true, nil
}

func (f *fakeLedgerCache) ReleaseLock(_ context.Context, _ string) error {
	f.released = true
	return nil
}

func newLedgerCache() *fakeLedgerCache {
	return &fakeLedgerCache{stats: map[int64]models.AccountStats{}}
}

func TestMarkPaidInvalidatesRecipientStats(t *testing.T) {
	ls := &fakeLedgerStore{
		paid: []models.CommissionEntry{
			{ID: 1, RecipientAccountID: 10, Amount: dec("20.00"), Status: models.EntryStatusPaid},
			{ID: 2, RecipientAccountID: 10, Amount: dec("10.00"), Status: models.EntryStatusPaid},
			{ID: 3, RecipientAccountID: 30, Amount: dec("5.00"), Status: models.EntryStatusPaid},
		},
	}
	cache := newLedgerCache()
	cache.stats[10] = models.AccountStats{AccountID: 10}
	ledger := NewLedger(ls, cache, nil)

	entries, err := ledger.MarkPaid(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Len(t, entries, 3)
	assert.True(t, cache.released)
	assert.ElementsMatch(t, []int64{10, 30}, cache.invalidated)
	assert.Empty(t, cache.stats)
}

func TestMarkPaidLockContention(t *testing.T) {
	ls := &fakeLedgerStore{}
	cache := newLedgerCache()
	cache.lockDenied = true
	ledger := NewLedger(ls, cache, nil)

	_, err := ledger.MarkPaid(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in progress")
}

func TestMarkPaidInvalidTransition(t *testing.T) {
	ls := &fakeLedgerStore{markErr: store.ErrInvalidTransition}
	cache := newLedgerCache()
	ledger := NewLedger(ls, cache, nil)

	_, err := ledger.MarkPaid(context.Background(), []int64{1})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	// The lock must still be released on the failure path.
	assert.True(t, cache.released)
}

func TestMarkPaidRejectionReasons(t *testing.T) {
	invalidBefore := testutil.ToFloat64(util.MarkPaidRejectedTotal.WithLabelValues("invalid_transition"))
	errorBefore := testutil.ToFloat64(util.MarkPaidRejectedTotal.WithLabelValues("error"))

	ledger := NewLedger(&fakeLedgerStore{markErr: store.ErrInvalidTransition}, nil, nil)
	_, err := ledger.MarkPaid(context.Background(), []int64{1})
	require.Error(t, err)

	ledger = NewLedger(&fakeLedgerStore{markErr: errors.New("db down")}, nil, nil)
	_, err = ledger.MarkPaid(context.Background(), []int64{1})
	require.Error(t, err)

	// Storage failures and transition violations count under separate reasons.
	assert.Equal(t, invalidBefore+1,
		testutil.ToFloat64(util.MarkPaidRejectedTotal.WithLabelValues("invalid_transition")))
	assert.Equal(t, errorBefore+1,
		testutil.ToFloat64(util.MarkPaidRejectedTotal.WithLabelValues("error")))
}

func TestEntriesByRecipientClampsLimit(t *testing.T) {
	ls := &fakeLedgerStore{entries: []models.CommissionEntry{{ID: 1}}}
	ledger := NewLedger(ls, nil, nil)

	_, err := ledger.EntriesByRecipient(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultEntriesLimit, ls.entryLimit)

	_, err = ledger.EntriesByRecipient(context.Background(), 10, 9999)
	require.NoError(t, err)
	assert.Equal(t, maxEntriesLimit, ls.entryLimit)

	_, err = ledger.EntriesByRecipient(context.Background(), 10, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, ls.entryLimit)
}

func TestEntriesByOrder(t *testing.T) {
	ls := &fakeLedgerStore{entries: []models.CommissionEntry{{ID: 1, OrderID: 100}}}
	ledger := NewLedger(ls, nil, nil)

	entries, err := ledger.EntriesByOrder(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), entries[0].OrderID)
}

func TestStatsForAccountCaching(t *testing.T) {
	ls := &fakeLedgerStore{stats: &models.AccountStats{AccountID: 10, TotalPending: dec("15.00")}}
	cache := newLedgerCache()
	ledger := NewLedger(ls, cache, nil)

	stats, err := ledger.StatsForAccount(context.Background(), 10, time.Time{})
	require.NoError(t, err)
	assert.True(t, dec("15.00").Equal(stats.TotalPending))
	assert.Equal(t, 1, ls.statsCalls)

	// Second current-time read is served from cache.
	_, err = ledger.StatsForAccount(context.Background(), 10, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, ls.statsCalls)
}

func TestStatsForAccountExplicitAsOfBypassesCache(t *testing.T) {
	ls := &fakeLedgerStore{stats: &models.AccountStats{AccountID: 10}}
	cache := newLedgerCache()
	cache.stats[10] = models.AccountStats{AccountID: 10, TotalPending: dec("999")}
	ledger := NewLedger(ls, cache, nil)

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := ledger.StatsForAccount(context.Background(), 10, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, ls.statsCalls)
	assert.Equal(t, asOf, ls.statsAsOf)
	// Historical reads never populate the cache either.
	assert.True(t, cache.stats[10].TotalPending.Equal(dec("999")))
}

func TestGlobalSummaryCaching(t *testing.T) {
	ls := &fakeLedgerStore{summary: &models.GlobalSummary{TotalEntries: 7}}
	cache := newLedgerCache()
	ledger := NewLedger(ls, cache, nil)

	summary, err := ledger.GlobalSummary(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.TotalEntries)
	assert.Equal(t, 1, ls.summaryRuns)

	_, err = ledger.GlobalSummary(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ls.summaryRuns)
}

func TestGlobalSummaryWindowedBypassesCache(t *testing.T) {
	ls := &fakeLedgerStore{summary: &models.GlobalSummary{TotalEntries: 7}}
	cache := newLedgerCache()
	cache.summary = &models.GlobalSummary{TotalEntries: 99}
	ledger := NewLedger(ls, cache, nil)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	summary, err := ledger.GlobalSummary(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.TotalEntries)
	assert.Equal(t, 1, ls.summaryRuns)
}

func TestWarmGlobalSummary(t *testing.T) {
	ls := &fakeLedgerStore{summary: &models.GlobalSummary{TotalEntries: 3}}
	cache := newLedgerCache()
	ledger := NewLedger(ls, cache, nil)

	require.NoError(t, ledger.WarmGlobalSummary(context.Background()))
	require.NotNil(t, cache.summary)
	assert.Equal(t, int64(3), cache.summary.TotalEntries)
}
