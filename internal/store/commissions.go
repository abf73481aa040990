package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commission-service/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a mark-paid batch contains an entry
// that is unknown or already PAID. The whole batch is rejected; lenient
// skipping would mask double-payment bugs.
var ErrInvalidTransition = errors.New("invalid commission status transition")

// InsertOrderCommissions persists the full entry set for one order plus the
// per-line PV points, atomically. Either every row lands or none do; a
// half-credited order must never be visible to readers.
func (s *Store) InsertOrderCommissions(ctx context.Context, linePV []models.OrderLinePV, entries []*models.CommissionEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, lp := range linePV {
		_, err := tx.ExecContext(ctx,
			"UPDATE order_lines SET pv_points = $1 WHERE id = $2",
			lp.PVPoints, lp.OrderLineID)
		if err != nil {
			return fmt.Errorf("failed to persist pv points for line %d: %w", lp.OrderLineID, err)
		}
	}

	query := `
		INSERT INTO commission_entries
			(order_id, order_line_id, product_id, payer_account_id, recipient_account_id,
			 amount, rate, level_distance, recipient_role, pv_points, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	for _, e := range entries {
		err := tx.QueryRowxContext(ctx, query,
			e.OrderID, e.OrderLineID, e.ProductID, e.PayerAccountID, e.RecipientAccountID,
			e.Amount, e.Rate, e.LevelDistance, e.RecipientRole, e.PVPoints, e.Status,
		).Scan(&e.ID, &e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert commission entry for line %d level %d: %w",
				e.OrderLineID, e.LevelDistance, err)
		}
	}

	return tx.Commit()
}

// MarkPaid transitions every entry in the batch PENDING -> PAID. Rows are
// locked for the duration; an unknown id or an entry already PAID rejects the
// whole batch with ErrInvalidTransition.
func (s *Store) MarkPaid(ctx context.Context, entryIDs []int64) ([]models.CommissionEntry, error) {
	if len(entryIDs) == 0 {
		return nil, fmt.Errorf("empty entry batch")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var locked []models.CommissionEntry
	err = tx.SelectContext(ctx, &locked,
		"SELECT * FROM commission_entries WHERE id = ANY($1) ORDER BY id FOR UPDATE",
		pq.Array(entryIDs))
	if err != nil {
		return nil, err
	}

	if len(locked) != len(entryIDs) {
		return nil, fmt.Errorf("%w: batch references %d entries, found %d",
			ErrInvalidTransition, len(entryIDs), len(locked))
	}
	for _, e := range locked {
		if e.Status != models.EntryStatusPending {
			return nil, fmt.Errorf("%w: entry %d is already %s", ErrInvalidTransition, e.ID, e.Status)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE commission_entries SET status = $1 WHERE id = ANY($2)",
		models.EntryStatusPaid, pq.Array(entryIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to mark entries paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range locked {
		locked[i].Status = models.EntryStatusPaid
	}
	return locked, nil
}

// GetEntriesByOrderID retrieves all ledger entries for an order.
func (s *Store) GetEntriesByOrderID(ctx context.Context, orderID int64) ([]models.CommissionEntry, error) {
	var entries []models.CommissionEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM commission_entries WHERE order_id = $1 ORDER BY order_line_id, level_distance", orderID)
	return entries, err
}

// GetEntriesByRecipient retrieves ledger entries credited to one account,
// newest first.
func (s *Store) GetEntriesByRecipient(ctx context.Context, accountID int64, limit int) ([]models.CommissionEntry, error) {
	var entries []models.CommissionEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM commission_entries WHERE recipient_account_id = $1 ORDER BY created_at DESC LIMIT $2",
		accountID, limit)
	return entries, err
}

// GetRecipientCommissionTotal sums all entry amounts credited to one account
// regardless of status.
func (s *Store) GetRecipientCommissionTotal(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(amount), 0) FROM commission_entries WHERE recipient_account_id = $1",
		accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// StatsForAccount aggregates the ledger for one recipient. Month windows are
// anchored to asOf, not wall-clock now, so reporting is reproducible.
func (s *Store) StatsForAccount(ctx context.Context, accountID int64, asOf time.Time) (*models.AccountStats, error) {
	thisMonthStart, lastMonthStart := MonthWindows(asOf)

	var stats models.AccountStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COALESCE(SUM(amount), 0) AS total_earned,
			COALESCE(SUM(CASE WHEN status = 'PENDING' THEN amount ELSE 0 END), 0) AS total_pending,
			COALESCE(SUM(CASE WHEN status = 'PAID' THEN amount ELSE 0 END), 0) AS total_paid,
			COALESCE(SUM(CASE WHEN created_at >= $2 THEN amount ELSE 0 END), 0) AS this_month,
			COALESCE(SUM(CASE WHEN created_at >= $3 AND created_at < $2 THEN amount ELSE 0 END), 0) AS last_month
		FROM commission_entries
		WHERE recipient_account_id = $1 AND created_at <= $4`,
		accountID, thisMonthStart, lastMonthStart, asOf)
	if err != nil {
		return nil, err
	}
	stats.AccountID = accountID
	return &stats, nil
}

// GlobalSummary aggregates the whole ledger, optionally windowed by creation
// time, plus the top earners by summed amount.
func (s *Store) GlobalSummary(ctx context.Context, from, to *time.Time) (*models.GlobalSummary, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	var totals struct {
		TotalPaid    decimal.Decimal `db:"total_paid"`
		TotalPending decimal.Decimal `db:"total_pending"`
		TotalEntries int64           `db:"total_entries"`
	}
	err := s.db.GetContext(ctx, &totals, fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'PAID' THEN amount ELSE 0 END), 0) AS total_paid,
			COALESCE(SUM(CASE WHEN status = 'PENDING' THEN amount ELSE 0 END), 0) AS total_pending,
			COUNT(*) AS total_entries
		FROM commission_entries %s`, where), args...)
	if err != nil {
		return nil, err
	}

	var top []models.TopEarner
	err = s.db.SelectContext(ctx, &top, fmt.Sprintf(`
		SELECT recipient_account_id, SUM(amount) AS total_amount
		FROM commission_entries %s
		GROUP BY recipient_account_id
		ORDER BY SUM(amount) DESC
		LIMIT 10`, where), args...)
	if err != nil {
		return nil, err
	}

	return &models.GlobalSummary{
		TotalPaid:    totals.TotalPaid,
		TotalPending: totals.TotalPending,
		TotalEntries: totals.TotalEntries,
		TopEarners:   top,
	}, nil
}

// MonthWindows returns the start of the month containing asOf and the start
// of the month before it.
func MonthWindows(asOf time.Time) (thisMonthStart, lastMonthStart time.Time) {
	thisMonthStart = time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())
	lastMonthStart = thisMonthStart.AddDate(0, -1, 0)
	return thisMonthStart, lastMonthStart
}
