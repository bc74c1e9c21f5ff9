package redisgw

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mdstore/internal/domain"
)

// RemoveSchema implements domain.PersistenceGateway.
func (g *Gateway) RemoveSchema(ctx context.Context, id domain.ID) error {
	return g.removeTarget(ctx, domain.KindSchema, id)
}

// RemoveTable implements domain.PersistenceGateway.
func (g *Gateway) RemoveTable(ctx context.Context, id domain.ID) error {
	return g.removeTarget(ctx, domain.KindTable, id)
}

// RemoveColumn implements domain.PersistenceGateway.
func (g *Gateway) RemoveColumn(ctx context.Context, id domain.ID) error {
	return g.removeTarget(ctx, domain.KindColumn, id)
}

// removeTarget deletes the subtree below id one level per transaction,
// columns first. When a level fails after an earlier one committed, the
// error is a PartialFailureError naming what is already gone.
func (g *Gateway) removeTarget(ctx context.Context, kind domain.TargetKind, id domain.ID) error {
	root, err := g.GetTargetByID(ctx, id)
	if err != nil {
		return err
	}
	if root.Kind() != kind {
		return domain.ErrNotFound("%s %d not found", kind, id)
	}

	levels := [][]*domain.Target{{root}}
	for depth := root.Kind(); depth < domain.KindColumn; depth++ {
		var next []*domain.Target
		for _, parent := range levels[0] {
			childIDs, err := g.members(ctx, g.childrenKey(parent.ID()))
			if err != nil {
				return err
			}
			children, err := g.loadTargets(ctx, childIDs)
			if err != nil {
				return err
			}
			next = append(next, children...)
		}
		if len(next) == 0 {
			break
		}
		levels = append([][]*domain.Target{next}, levels...)
	}

	var removed []domain.ID
	for _, level := range levels {
		if err := g.deleteLevel(ctx, level); err != nil {
			if len(removed) == 0 {
				return fmt.Errorf("remove %s %d: %w", kind, id, err)
			}
			return &domain.PartialFailureError{
				Op:      fmt.Sprintf("remove %s %d", kind, id),
				Removed: removed,
				Err:     err,
			}
		}
		for _, t := range level {
			removed = append(removed, t.ID())
		}
	}
	return nil
}

func (g *Gateway) deleteLevel(ctx context.Context, level []*domain.Target) error {
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range level {
			id := domain.FormatID(t.ID())
			pipe.Del(ctx, g.targetKey(t.ID()), g.locationKey(t.ID()), g.childrenKey(t.ID()))
			pipe.SRem(ctx, g.kindKey(t.Kind()), id)
			pipe.SRem(ctx, g.nameKey(t.Kind(), t.Name()), id)
			if p, ok := t.Parent(); ok {
				pipe.SRem(ctx, g.childrenKey(p), id)
			}
		}
		return nil
	})
	return err
}
