package service

import (
	"context"
	"errors"

	"commission-service/internal/models"
	"commission-service/internal/store"
	"commission-service/internal/util"

	"go.uber.org/zap"
)

type relationshipStore interface {
	SetParent(ctx context.Context, childID, parentID int64) (*models.RelationshipEdge, error)
	WalkUp(ctx context.Context, accountID int64, maxDepth int) ([]int64, error)
}

type linkPublisher interface {
	PublishRelationshipEstablished(ctx context.Context, event *models.RelationshipEstablishedEvent) error
}

// Relationships fronts the upline edge store for the registration flow.
type Relationships struct {
	store     relationshipStore
	publisher linkPublisher
	logger    *zap.Logger
}

// NewRelationships creates a new relationship service. publisher may be nil.
func NewRelationships(store relationshipStore, publisher linkPublisher) *Relationships {
	return &Relationships{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Link sets the upline of child to parent, once. Cycle and duplicate link
// attempts surface to the caller; they are never silently ignored.
func (r *Relationships) Link(ctx context.Context, childID, parentID int64) (*models.RelationshipEdge, error) {
	ctx, span := util.StartSpan(ctx, "Relationships.Link")
	defer span.End()

	edge, err := r.store.SetParent(ctx, childID, parentID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCycleDetected):
			util.RelationshipLinksRejectedTotal.WithLabelValues("cycle").Inc()
		case errors.Is(err, store.ErrAlreadyLinked):
			util.RelationshipLinksRejectedTotal.WithLabelValues("already_linked").Inc()
		default:
			util.RelationshipLinksRejectedTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	util.RelationshipLinksTotal.Inc()
	r.logger.Info("Upline established",
		zap.Int64("child_id", childID),
		zap.Int64("parent_id", parentID),
		zap.Int("level", edge.Level))

	if r.publisher != nil {
		event := &models.RelationshipEstablishedEvent{
			ChildID:  childID,
			ParentID: parentID,
			Level:    edge.Level,
		}
		if err := r.publisher.PublishRelationshipEstablished(ctx, event); err != nil {
			r.logger.Error("Failed to publish RelationshipEstablished event", zap.Error(err))
		}
	}

	return edge, nil
}

// Upline returns up to maxDepth ancestors of an account, nearest first.
func (r *Relationships) Upline(ctx context.Context, accountID int64, maxDepth int) ([]int64, error) {
	if maxDepth <= 0 || maxDepth > models.MaxCommissionLevels {
		maxDepth = models.MaxCommissionLevels
	}
	return r.store.WalkUp(ctx, accountID, maxDepth)
}
