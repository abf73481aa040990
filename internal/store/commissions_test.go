package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"commission-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestInsertOrderCommissions(t *testing.T) {
	s, mock := newMockStore(t)

	entry := &models.CommissionEntry{
		OrderID:            100,
		OrderLineID:        1,
		ProductID:          1,
		PayerAccountID:     5,
		RecipientAccountID: 10,
		Amount:             dec("20.00"),
		Rate:               dec("0.10"),
		LevelDistance:      1,
		RecipientRole:      models.RoleSales,
		PVPoints:           dec("3"),
		Status:             models.EntryStatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE order_lines SET pv_points = $1 WHERE id = $2`)).
		WithArgs(dec("3"), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO commission_entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	mock.ExpectCommit()

	err := s.InsertOrderCommissions(context.Background(),
		[]models.OrderLinePV{{OrderLineID: 1, PVPoints: dec("3")}},
		[]*models.CommissionEntry{entry})
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOrderCommissionsRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE order_lines SET pv_points = $1 WHERE id = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO commission_entries`)).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := s.InsertOrderCommissions(context.Background(),
		[]models.OrderLinePV{{OrderLineID: 1, PVPoints: dec("3")}},
		[]*models.CommissionEntry{{OrderLineID: 1, LevelDistance: 1}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const lockEntriesQuery = `SELECT \* FROM commission_entries WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`

func TestMarkPaid(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockEntriesQuery).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_account_id", "amount", "status"}).
			AddRow(int64(1), int64(10), "20.00", models.EntryStatusPending).
			AddRow(int64(2), int64(20), "10.00", models.EntryStatusPending))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE commission_entries SET status = $1 WHERE id = ANY($2)`)).
		WithArgs(models.EntryStatusPaid, pq.Array([]int64{1, 2})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	entries, err := s.MarkPaid(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.EntryStatusPaid, e.Status)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaidRejectsAlreadyPaid(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockEntriesQuery).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_account_id", "amount", "status"}).
			AddRow(int64(1), int64(10), "20.00", models.EntryStatusPending).
			AddRow(int64(2), int64(20), "10.00", models.EntryStatusPaid))
	mock.ExpectRollback()

	_, err := s.MarkPaid(context.Background(), []int64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaidRejectsUnknownID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockEntriesQuery).
		WithArgs(pq.Array([]int64{1, 99})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_account_id", "amount", "status"}).
			AddRow(int64(1), int64(10), "20.00", models.EntryStatusPending))
	mock.ExpectRollback()

	_, err := s.MarkPaid(context.Background(), []int64{1, 99})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaidEmptyBatch(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.MarkPaid(context.Background(), nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntriesByOrderID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM commission_entries WHERE order_id = $1 ORDER BY order_line_id, level_distance`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "level_distance", "amount", "status"}).
			AddRow(int64(1), int64(100), 1, "20.00", models.EntryStatusPending).
			AddRow(int64(2), int64(100), 2, "10.00", models.EntryStatusPending))

	entries, err := s.GetEntriesByOrderID(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].LevelDistance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntriesByRecipient(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM commission_entries WHERE recipient_account_id = $1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs(int64(10), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_account_id", "amount", "status"}).
			AddRow(int64(3), int64(10), "5.00", models.EntryStatusPaid))

	entries, err := s.GetEntriesByRecipient(context.Background(), 10, 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].RecipientAccountID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsForAccountWindows(t *testing.T) {
	s, mock := newMockStore(t)

	asOf := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	thisMonth := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM commission_entries`)).
		WithArgs(int64(10), thisMonth, lastMonth, asOf).
		WillReturnRows(sqlmock.NewRows(
			[]string{"total_earned", "total_pending", "total_paid", "this_month", "last_month"}).
			AddRow("35.00", "15.00", "20.00", "35.00", "0"))

	stats, err := s.StatsForAccount(context.Background(), 10, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.AccountID)
	assert.True(t, dec("35.00").Equal(stats.TotalEarned))
	assert.True(t, dec("15.00").Equal(stats.TotalPending))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthWindows(t *testing.T) {
	asOf := time.Date(2025, 1, 20, 8, 30, 0, 0, time.UTC)
	thisMonth, lastMonth := MonthWindows(asOf)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), thisMonth)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), lastMonth)
}

func TestGlobalSummaryWindowed(t *testing.T) {
	s, mock := newMockStore(t)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(*) AS total_entries`)).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"total_paid", "total_pending", "total_entries"}).
			AddRow("20.00", "15.00", int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY recipient_account_id`)).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_account_id", "total_amount"}).
			AddRow(int64(10), "30.00").
			AddRow(int64(20), "5.00"))

	summary, err := s.GlobalSummary(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalEntries)
	require.Len(t, summary.TopEarners, 2)
	assert.Equal(t, int64(10), summary.TopEarners[0].AccountID)
	assert.True(t, dec("30.00").Equal(summary.TopEarners[0].TotalAmount))
	assert.NoError(t, mock.ExpectationsWereMet())
}
