package redisgw

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"mdstore/internal/domain"
)

// AddSchema implements domain.PersistenceGateway.
func (g *Gateway) AddSchema(ctx context.Context, t *domain.Target) error {
	return g.addTarget(ctx, domain.KindSchema, t)
}

// AddTable implements domain.PersistenceGateway.
func (g *Gateway) AddTable(ctx context.Context, t *domain.Target) error {
	return g.addTarget(ctx, domain.KindTable, t)
}

// AddColumn implements domain.PersistenceGateway.
func (g *Gateway) AddColumn(ctx context.Context, t *domain.Target) error {
	return g.addTarget(ctx, domain.KindColumn, t)
}

func (g *Gateway) targetKey(id domain.ID) string   { return g.key("target", domain.FormatID(id)) }
func (g *Gateway) locationKey(id domain.ID) string { return g.key("location", domain.FormatID(id)) }
func (g *Gateway) childrenKey(id domain.ID) string { return g.key("children", domain.FormatID(id)) }

func (g *Gateway) kindKey(kind domain.TargetKind) string { return g.key("targets", kind.String()) }

func (g *Gateway) nameKey(kind domain.TargetKind, name string) string {
	return g.key("name", kind.String(), name)
}

// addTarget claims the id with HSETNX, then writes the remaining keys in one
// transaction. A failed transaction releases the claim again.
func (g *Gateway) addTarget(ctx context.Context, kind domain.TargetKind, t *domain.Target) error {
	if t.Kind() != kind {
		return domain.ErrValidation("cannot store %s as a %s", t, kind)
	}
	parent, hasParent := t.Parent()
	if hasParent {
		n, err := g.client.Exists(ctx, g.targetKey(parent)).Result()
		if err != nil {
			return fmt.Errorf("lookup parent of %s: %w", t, err)
		}
		if n == 0 {
			return domain.ErrValidation("parent %d of %s is not stored", parent, t)
		}
	}

	claimed, err := g.client.HSetNX(ctx, g.targetKey(t.ID()), "kind", kind.String()).Result()
	if err != nil {
		return fmt.Errorf("store %s: %w", t, err)
	}
	if !claimed {
		return &domain.DuplicateIdentifierError{ID: t.ID()}
	}

	id := domain.FormatID(t.ID())
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields := []any{"name", t.Name(), "description", t.Description()}
		if hasParent {
			fields = append(fields, "parent", domain.FormatID(parent))
			pipe.SAdd(ctx, g.childrenKey(parent), id)
		}
		pipe.HSet(ctx, g.targetKey(t.ID()), fields...)
		loc := t.Location()
		if loc.Len() > 0 {
			pipe.HSet(ctx, g.locationKey(t.ID()), pairs(loc.Properties())...)
			if typ := loc.Type(); typ != "" {
				pipe.SAdd(ctx, g.key("location_types"), typ)
			}
		}
		pipe.SAdd(ctx, g.kindKey(kind), id)
		pipe.SAdd(ctx, g.nameKey(kind, t.Name()), id)
		return nil
	})
	if err != nil {
		if delErr := g.client.Del(ctx, g.targetKey(t.ID())).Err(); delErr != nil {
			g.logger.Warn("release of claimed target id failed", "id", t.ID(), "error", delErr)
		}
		return fmt.Errorf("store %s: %w", t, err)
	}
	return nil
}

// GetTargetByID implements domain.PersistenceGateway.
func (g *Gateway) GetTargetByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	found, err := g.loadTargets(ctx, []domain.ID{id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.ErrNotFound("target %d not found", id)
	}
	return found[0], nil
}

// GetSchemasByName implements domain.PersistenceGateway.
func (g *Gateway) GetSchemasByName(ctx context.Context, name string) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.nameKey(domain.KindSchema, name))
}

// GetTablesByName implements domain.PersistenceGateway.
func (g *Gateway) GetTablesByName(ctx context.Context, name string) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.nameKey(domain.KindTable, name))
}

// GetColumnsByName implements domain.PersistenceGateway.
func (g *Gateway) GetColumnsByName(ctx context.Context, name string) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.nameKey(domain.KindColumn, name))
}

// GetChildren implements domain.PersistenceGateway.
func (g *Gateway) GetChildren(ctx context.Context, parent domain.ID) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.childrenKey(parent))
}

// LoadSchemas implements domain.PersistenceGateway.
func (g *Gateway) LoadSchemas(ctx context.Context) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.kindKey(domain.KindSchema))
}

// LoadTables implements domain.PersistenceGateway.
func (g *Gateway) LoadTables(ctx context.Context) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.kindKey(domain.KindTable))
}

// LoadColumns implements domain.PersistenceGateway.
func (g *Gateway) LoadColumns(ctx context.Context) ([]*domain.Target, error) {
	return g.loadSet(ctx, g.kindKey(domain.KindColumn))
}

// LocationTypes returns every location type stored so far, sorted.
func (g *Gateway) LocationTypes(ctx context.Context) ([]string, error) {
	types, err := g.client.SMembers(ctx, g.key("location_types")).Result()
	if err != nil {
		return nil, fmt.Errorf("load location types: %w", err)
	}
	sort.Strings(types)
	return types, nil
}

func (g *Gateway) members(ctx context.Context, key string) ([]domain.ID, error) {
	raw, err := g.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return parseIDs(raw)
}

func parseIDs(raw []string) ([]domain.ID, error) {
	out := make([]domain.ID, 0, len(raw))
	for _, s := range raw {
		id, err := domain.ParseID(s)
		if err != nil {
			return nil, fmt.Errorf("stored id %q: %w", s, err)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (g *Gateway) loadSet(ctx context.Context, key string) ([]*domain.Target, error) {
	ids, err := g.members(ctx, key)
	if err != nil {
		return nil, err
	}
	return g.loadTargets(ctx, ids)
}

// loadTargets reads the given targets in one round trip. Ids without a
// stored target are skipped.
func (g *Gateway) loadTargets(ctx context.Context, ids []domain.ID) ([]*domain.Target, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	targetCmds := make([]*redis.MapStringStringCmd, len(ids))
	locCmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := g.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			targetCmds[i] = pipe.HGetAll(ctx, g.targetKey(id))
			locCmds[i] = pipe.HGetAll(ctx, g.locationKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	out := make([]*domain.Target, 0, len(ids))
	for i, id := range ids {
		fields := targetCmds[i].Val()
		// A claim whose transaction has not landed yet has no name.
		if _, ok := fields["name"]; !ok {
			continue
		}
		t, err := decodeTarget(id, fields, locCmds[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeTarget(id domain.ID, fields, loc map[string]string) (*domain.Target, error) {
	kind, err := domain.ParseTargetKind(fields["kind"])
	if err != nil {
		return nil, fmt.Errorf("target %d: %w", id, err)
	}
	var parent domain.ID
	if p, ok := fields["parent"]; ok {
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("target %d parent %q: %w", id, p, err)
		}
		parent = domain.ID(n)
	}
	return domain.NewTarget(kind, id, parent, fields["name"], fields["description"],
		domain.LocationFromProperties(loc)), nil
}
