package redisgw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"mdstore/internal/domain"
)

func (g *Gateway) collectionKey(id domain.ID) string { return g.key("collection", domain.FormatID(id)) }
func (g *Gateway) scopeKey(id domain.ID) string      { return g.key("scope", domain.FormatID(id)) }
func (g *Gateway) constraintKey(rid string) string   { return g.key("constraint", rid) }

func (g *Gateway) constraintsKey(id domain.ID) string {
	return g.key("constraints", domain.FormatID(id))
}

// AddConstraintCollection implements domain.PersistenceGateway.
func (g *Gateway) AddConstraintCollection(ctx context.Context, c *domain.ConstraintCollection) error {
	records := c.Constraints()
	payloads := make([][]byte, len(records))
	for i, r := range records {
		p, err := g.serializers.Encode(r.Constraint)
		if err != nil {
			return err
		}
		payloads[i] = p
	}

	claimed, err := g.client.HSetNX(ctx, g.collectionKey(c.ID()), "description", c.Description()).Result()
	if err != nil {
		return fmt.Errorf("store collection %d: %w", c.ID(), err)
	}
	if !claimed {
		return &domain.DuplicateIdentifierError{ID: c.ID()}
	}

	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if scope := c.Scope(); len(scope) > 0 {
			members := make([]any, len(scope))
			for i, id := range scope {
				members[i] = domain.FormatID(id)
			}
			pipe.SAdd(ctx, g.scopeKey(c.ID()), members...)
		}
		for i, r := range records {
			g.queueConstraint(ctx, pipe, c.ID(), r, payloads[i])
		}
		pipe.SAdd(ctx, g.key("collections"), domain.FormatID(c.ID()))
		return nil
	})
	if err != nil {
		if delErr := g.client.Del(ctx, g.collectionKey(c.ID())).Err(); delErr != nil {
			g.logger.Warn("release of claimed collection id failed", "id", c.ID(), "error", delErr)
		}
		return fmt.Errorf("store collection %d: %w", c.ID(), err)
	}
	return nil
}

func (g *Gateway) queueConstraint(ctx context.Context, pipe redis.Pipeliner, collectionID domain.ID, r domain.ConstraintRecord, payload []byte) {
	targets := r.Constraint.TargetIDs()
	parts := make([]string, len(targets))
	for i, id := range targets {
		parts[i] = domain.FormatID(id)
	}
	pipe.HSet(ctx, g.constraintKey(r.ID),
		"kind", r.Constraint.Kind(),
		"targets", strings.Join(parts, ","),
		"payload", string(payload))
	pipe.RPush(ctx, g.constraintsKey(collectionID), r.ID)
}

// AddConstraint implements domain.PersistenceGateway.
func (g *Gateway) AddConstraint(ctx context.Context, collectionID domain.ID, r domain.ConstraintRecord) error {
	payload, err := g.serializers.Encode(r.Constraint)
	if err != nil {
		return err
	}
	n, err := g.client.Exists(ctx, g.collectionKey(collectionID)).Result()
	if err != nil {
		return fmt.Errorf("lookup collection %d: %w", collectionID, err)
	}
	if n == 0 {
		return domain.ErrNotFound("constraint collection %d not found", collectionID)
	}
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		g.queueConstraint(ctx, pipe, collectionID, r, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store constraint %s: %w", r.ID, err)
	}
	return nil
}

// RemoveConstraintCollection implements domain.PersistenceGateway.
func (g *Gateway) RemoveConstraintCollection(ctx context.Context, id domain.ID) error {
	n, err := g.client.Exists(ctx, g.collectionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("lookup collection %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound("constraint collection %d not found", id)
	}
	rids, err := g.client.LRange(ctx, g.constraintsKey(id), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read constraints of %d: %w", id, err)
	}
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		keys := []string{g.collectionKey(id), g.scopeKey(id), g.constraintsKey(id)}
		for _, rid := range rids {
			keys = append(keys, g.constraintKey(rid))
		}
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, g.key("collections"), domain.FormatID(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove collection %d: %w", id, err)
	}
	return nil
}

// LoadConstraintCollections implements domain.PersistenceGateway.
func (g *Gateway) LoadConstraintCollections(ctx context.Context) ([]*domain.ConstraintCollection, error) {
	ids, err := g.members(ctx, g.key("collections"))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ConstraintCollection, 0, len(ids))
	for _, id := range ids {
		c, err := g.loadCollection(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (g *Gateway) loadCollection(ctx context.Context, id domain.ID) (*domain.ConstraintCollection, error) {
	var (
		desc  *redis.StringCmd
		scope *redis.StringSliceCmd
		rids  *redis.StringSliceCmd
	)
	_, err := g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		desc = pipe.HGet(ctx, g.collectionKey(id), "description")
		scope = pipe.SMembers(ctx, g.scopeKey(id))
		rids = pipe.LRange(ctx, g.constraintsKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load collection %d: %w", id, err)
	}
	scopeIDs, err := parseIDs(scope.Val())
	if err != nil {
		return nil, err
	}
	records := rids.Val()
	if len(records) == 0 {
		return domain.NewConstraintCollection(id, desc.Val(), scopeIDs), nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(records))
	if _, err := g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, rid := range records {
			cmds[i] = pipe.HGetAll(ctx, g.constraintKey(rid))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load constraints of %d: %w", id, err)
	}
	loaded := make([]domain.ConstraintRecord, 0, len(records))
	for i, rid := range records {
		fields := cmds[i].Val()
		var targets []domain.ID
		if raw := fields["targets"]; raw != "" {
			// Order matters for multi-target constraints, so no parseIDs.
			for _, s := range strings.Split(raw, ",") {
				tid, err := domain.ParseID(s)
				if err != nil {
					return nil, fmt.Errorf("constraint %s target %q: %w", rid, s, err)
				}
				targets = append(targets, tid)
			}
		}
		decoded, err := g.serializers.Decode(fields["kind"], targets, []byte(fields["payload"]))
		if err != nil {
			return nil, fmt.Errorf("load constraint %s: %w", rid, err)
		}
		loaded = append(loaded, domain.ConstraintRecord{ID: rid, Constraint: decoded})
	}
	return domain.NewConstraintCollection(id, desc.Val(), scopeIDs, loaded...), nil
}
