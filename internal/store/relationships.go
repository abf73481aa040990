package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commission-service/internal/models"
)

// Relationship write errors. Cycle and duplicate-parent attempts are rejected
// at write time; read paths assume the forest invariant holds.
var (
	ErrCycleDetected = errors.New("relationship would create a cycle")
	ErrAlreadyLinked = errors.New("account already has an upline")
)

// ancestorWalkLimit caps the write-time cycle check independently of any
// caller-supplied depth. A legitimate chain never gets near this.
const ancestorWalkLimit = 64

// SetParent links child to parent. The upline of an account is set exactly
// once, at registration; re-parenting is not supported. Both account rows are
// locked up front so concurrent links touching the same accounts serialize:
// two fresh roots have no edge rows yet, so locking edges alone would let
// SetParent(a, b) and SetParent(b, a) both commit. A unique index on
// relationship_edges.child_id backs the duplicate check.
func (s *Store) SetParent(ctx context.Context, childID, parentID int64) (*models.RelationshipEdge, error) {
	if childID == parentID {
		return nil, ErrCycleDetected
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var participants []int64
	err = tx.SelectContext(ctx, &participants,
		"SELECT id FROM accounts WHERE id IN ($1, $2) ORDER BY id FOR UPDATE",
		childID, parentID)
	if err != nil {
		return nil, err
	}
	if len(participants) != 2 {
		return nil, fmt.Errorf("account not found: child %d or parent %d", childID, parentID)
	}

	var existing int64
	err = tx.GetContext(ctx, &existing,
		"SELECT parent_id FROM relationship_edges WHERE child_id = $1", childID)
	if err == nil {
		return nil, ErrAlreadyLinked
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// Walk from parent to the root. Finding child on the way means the new
	// edge would close a loop.
	level := 1
	current := parentID
	for i := 0; i < ancestorWalkLimit; i++ {
		var next int64
		err = tx.GetContext(ctx, &next,
			"SELECT parent_id FROM relationship_edges WHERE child_id = $1 FOR UPDATE", current)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, err
		}
		if next == childID {
			return nil, ErrCycleDetected
		}
		current = next
		level++
	}

	edge := &models.RelationshipEdge{ChildID: childID, ParentID: parentID, Level: level}
	err = tx.GetContext(ctx, &edge.CreatedAt, `
		INSERT INTO relationship_edges (child_id, parent_id, level)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		childID, parentID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to insert relationship edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return edge, nil
}

// GetParent returns the upline account id for child, or nil if child is a
// root.
func (s *Store) GetParent(ctx context.Context, accountID int64) (*int64, error) {
	var parentID int64
	err := s.db.GetContext(ctx, &parentID,
		"SELECT parent_id FROM relationship_edges WHERE child_id = $1", accountID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &parentID, nil
}

// GetChildren returns the direct downline of an account.
func (s *Store) GetChildren(ctx context.Context, accountID int64) ([]int64, error) {
	var children []int64
	err := s.db.SelectContext(ctx, &children,
		"SELECT child_id FROM relationship_edges WHERE parent_id = $1 ORDER BY child_id", accountID)
	return children, err
}

// WalkUp returns up to maxDepth ancestor ids for an account, nearest first.
// The result is shorter than maxDepth when the chain ends at a root. The
// depth bound is the only cycle defense on the read path.
func (s *Store) WalkUp(ctx context.Context, accountID int64, maxDepth int) ([]int64, error) {
	ancestors := make([]int64, 0, maxDepth)
	current := accountID
	for i := 0; i < maxDepth; i++ {
		var parentID int64
		err := s.db.GetContext(ctx, &parentID,
			"SELECT parent_id FROM relationship_edges WHERE child_id = $1", current)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, err
		}
		ancestors = append(ancestors, parentID)
		current = parentID
	}
	return ancestors, nil
}
