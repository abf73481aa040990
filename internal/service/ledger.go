package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commission-service/internal/models"
	"commission-service/internal/store"
	"commission-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	markPaidLockKey = "mark-paid"
	markPaidLockTTL = 30 * time.Second

	statsCacheTTL   = 5 * time.Minute
	summaryCacheTTL = 15 * time.Minute
)

type ledgerStore interface {
	MarkPaid(ctx context.Context, entryIDs []int64) ([]models.CommissionEntry, error)
	GetEntriesByOrderID(ctx context.Context, orderID int64) ([]models.CommissionEntry, error)
	GetEntriesByRecipient(ctx context.Context, accountID int64, limit int) ([]models.CommissionEntry, error)
	StatsForAccount(ctx context.Context, accountID int64, asOf time.Time) (*models.AccountStats, error)
	GlobalSummary(ctx context.Context, from, to *time.Time) (*models.GlobalSummary, error)
}

type ledgerCache interface {
	GetAccountStats(ctx context.Context, accountID int64, dest interface{}) (bool, error)
	SetAccountStats(ctx context.Context, accountID int64, value interface{}, ttl time.Duration) error
	InvalidateAccountStats(ctx context.Context, accountIDs ...int64) error
	GetGlobalSummary(ctx context.Context, dest interface{}) (bool, error)
	SetGlobalSummary(ctx context.Context, value interface{}, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

type paidPublisher interface {
	PublishCommissionPaid(ctx context.Context, event *models.CommissionPaidEvent) error
}

// Ledger owns status transitions and reporting over the commission entries.
type Ledger struct {
	store     ledgerStore
	cache     ledgerCache
	publisher paidPublisher
	logger    *zap.Logger
}

// NewLedger creates a new ledger service. cache and publisher may be nil.
func NewLedger(store ledgerStore, cache ledgerCache, publisher paidPublisher) *Ledger {
	return &Ledger{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// MarkPaid transitions a batch of entries PENDING -> PAID. The batch is
// all-or-nothing: an unknown or already-paid id rejects the whole call. A
// Redis lock serializes concurrent admin payout runs on top of the row locks
// the store takes.
func (l *Ledger) MarkPaid(ctx context.Context, entryIDs []int64) ([]models.CommissionEntry, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.MarkPaid")
	defer span.End()

	if l.cache != nil {
		acquired, err := l.cache.AcquireLock(ctx, markPaidLockKey, markPaidLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire payout lock: %w", err)
		}
		if !acquired {
			util.MarkPaidRejectedTotal.WithLabelValues("locked").Inc()
			return nil, fmt.Errorf("another payout batch is in progress")
		}
		defer func() {
			if err := l.cache.ReleaseLock(context.Background(), markPaidLockKey); err != nil {
				l.logger.Error("Failed to release payout lock", zap.Error(err))
			}
		}()
	}

	entries, err := l.store.MarkPaid(ctx, entryIDs)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			util.MarkPaidRejectedTotal.WithLabelValues("invalid_transition").Inc()
		} else {
			util.MarkPaidRejectedTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	util.EntriesMarkedPaidTotal.Add(float64(len(entries)))

	total := decimal.Zero
	recipients := make(map[int64]struct{})
	for _, e := range entries {
		total = total.Add(e.Amount)
		recipients[e.RecipientAccountID] = struct{}{}
	}

	if l.cache != nil {
		ids := make([]int64, 0, len(recipients))
		for id := range recipients {
			ids = append(ids, id)
		}
		if err := l.cache.InvalidateAccountStats(ctx, ids...); err != nil {
			l.logger.Warn("Failed to invalidate stats cache after payout", zap.Error(err))
		}
	}

	l.logger.Info("Commission batch marked paid",
		zap.Int("entries", len(entries)),
		zap.String("total_amount", total.String()))

	if l.publisher != nil {
		event := &models.CommissionPaidEvent{
			EntryIDs:    entryIDs,
			TotalAmount: total.String(),
		}
		if err := l.publisher.PublishCommissionPaid(ctx, event); err != nil {
			l.logger.Error("Failed to publish CommissionPaid event", zap.Error(err))
		}
	}

	return entries, nil
}

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 500
)

// EntriesByOrder lists every ledger entry generated for one order.
func (l *Ledger) EntriesByOrder(ctx context.Context, orderID int64) ([]models.CommissionEntry, error) {
	return l.store.GetEntriesByOrderID(ctx, orderID)
}

// EntriesByRecipient lists an account's most recent ledger entries.
func (l *Ledger) EntriesByRecipient(ctx context.Context, accountID int64, limit int) ([]models.CommissionEntry, error) {
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}
	return l.store.GetEntriesByRecipient(ctx, accountID, limit)
}

// StatsForAccount aggregates one recipient's ledger. A zero asOf means "now"
// and is served from cache when possible; an explicit asOf always hits the
// store so historical reports stay reproducible.
func (l *Ledger) StatsForAccount(ctx context.Context, accountID int64, asOf time.Time) (*models.AccountStats, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.StatsForAccount")
	defer span.End()

	cacheable := asOf.IsZero()
	if cacheable {
		asOf = time.Now()
		if l.cache != nil {
			var cached models.AccountStats
			hit, err := l.cache.GetAccountStats(ctx, accountID, &cached)
			if err != nil {
				l.logger.Warn("Stats cache read failed", zap.Error(err))
			} else if hit {
				return &cached, nil
			}
		}
	}

	stats, err := l.store.StatsForAccount(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}

	if cacheable && l.cache != nil {
		if err := l.cache.SetAccountStats(ctx, accountID, stats, statsCacheTTL); err != nil {
			l.logger.Warn("Failed to cache account stats", zap.Error(err))
		}
	}

	return stats, nil
}

// GlobalSummary aggregates the whole ledger. The unwindowed variant is cached
// and periodically warmed; windowed queries always hit the store.
func (l *Ledger) GlobalSummary(ctx context.Context, from, to *time.Time) (*models.GlobalSummary, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.GlobalSummary")
	defer span.End()

	if from == nil && to == nil && l.cache != nil {
		var cached models.GlobalSummary
		hit, err := l.cache.GetGlobalSummary(ctx, &cached)
		if err != nil {
			l.logger.Warn("Summary cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	summary, err := l.store.GlobalSummary(ctx, from, to)
	if err != nil {
		return nil, err
	}

	if from == nil && to == nil && l.cache != nil {
		if err := l.cache.SetGlobalSummary(ctx, summary, summaryCacheTTL); err != nil {
			l.logger.Warn("Failed to cache global summary", zap.Error(err))
		}
	}

	return summary, nil
}

// WarmGlobalSummary recomputes and caches the unwindowed summary. Invoked on
// a schedule so the dashboard query stays off the hot path.
func (l *Ledger) WarmGlobalSummary(ctx context.Context) error {
	summary, err := l.store.GlobalSummary(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to compute global summary: %w", err)
	}
	if l.cache != nil {
		if err := l.cache.SetGlobalSummary(ctx, summary, summaryCacheTTL); err != nil {
			return fmt.Errorf("failed to cache global summary: %w", err)
		}
	}
	return nil
}
