package worker

import (
	"context"
	"time"

	"commission-service/internal/broker"
	"commission-service/internal/models"
	"commission-service/internal/service"
	"commission-service/internal/store"
	"commission-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type orderProcessor interface {
	ProcessOrder(ctx context.Context, orderID, buyerID int64, lines []service.OrderLineInput) (*service.ProcessResult, error)
}

type eventGuard interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CommissionWorker consumes ORDER_FINALIZED events and runs the commission
// engine. The engine itself does not deduplicate, so the worker owns the
// exactly-once guard: event ids are checked against processed_events before
// processing and recorded after, making at-least-once delivery safe.
type CommissionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	engine       orderProcessor
	store        eventGuard
	logger       *zap.Logger
}

// NewCommissionWorker creates a new commission worker
func NewCommissionWorker(consumer *broker.Consumer, engine *service.Engine, st *store.Store) *CommissionWorker {
	w := &CommissionWorker{
		consumer: consumer,
		engine:   engine,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderFinalized(w.handleOrderFinalized)
	w.eventHandler = eventHandler

	return w
}

func (w *CommissionWorker) handleOrderFinalized(ctx context.Context, event *models.OrderFinalizedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed, skipping",
			zap.String("event_id", event.EventID),
			zap.Int64("order_id", event.OrderID))
		return nil
	}

	lines := make([]service.OrderLineInput, 0, len(event.Lines))
	for _, l := range event.Lines {
		if l.Quantity <= 0 {
			// A malformed event never becomes valid; drop it instead of
			// letting redelivery retry forever.
			w.logger.Error("Dropping event with non-positive line quantity",
				zap.String("event_id", event.EventID),
				zap.Int64("order_id", event.OrderID),
				zap.Int64("order_line_id", l.OrderLineID),
				zap.Int("quantity", l.Quantity))
			util.OrdersFailedTotal.WithLabelValues("malformed_event").Inc()
			if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
				w.logger.Error("Failed to mark dropped event processed", zap.Error(err))
			}
			return nil
		}
		lines = append(lines, service.OrderLineInput{
			OrderLineID: l.OrderLineID,
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
		})
	}

	if _, err := w.engine.ProcessOrder(ctx, event.OrderID, event.BuyerID, lines); err != nil {
		// Leaving the event unmarked lets Kafka redeliver; the commission
		// pass is retriable because nothing was committed for this order.
		w.logger.Error("Commission pass failed, will retry on redelivery",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// Start starts the worker
func (w *CommissionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting commission worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CommissionWorker) Stop() error {
	w.logger.Info("Stopping commission worker")
	return w.consumer.Close()
}

// SummaryWarmer periodically recomputes the cached global summary so the
// reporting dashboard reads warm data.
type SummaryWarmer struct {
	ledger   *service.Ledger
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewSummaryWarmer creates a new summary warmer
func NewSummaryWarmer(ledger *service.Ledger, schedule string) *SummaryWarmer {
	return &SummaryWarmer{
		ledger:   ledger,
		schedule: schedule,
		cron:     cron.New(),
		logger:   util.GetLogger(),
	}
}

// Start registers the warm job and starts the scheduler.
func (sw *SummaryWarmer) Start() error {
	_, err := sw.cron.AddFunc(sw.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sw.ledger.WarmGlobalSummary(ctx); err != nil {
			sw.logger.Error("Summary warm failed", zap.Error(err))
			return
		}
		sw.logger.Debug("Global summary cache warmed")
	})
	if err != nil {
		return err
	}

	sw.cron.Start()
	sw.logger.Info("Summary warmer started", zap.String("schedule", sw.schedule))
	return nil
}

// Stop stops the scheduler.
func (sw *SummaryWarmer) Stop() {
	sw.cron.Stop()
}
