// Package redisgw implements domain.PersistenceGateway on Redis.
//
// Every key lives under a prefix:
//
//	initialized            marker set by Initialize
//	config                 hash of configuration entries
//	target:{id}            hash: kind, name, description, parent
//	location:{id}          hash of location properties
//	location_types         set of canonical TYPE values
//	children:{id}          set of child ids
//	targets:{kind}         set of ids per kind
//	name:{kind}:{name}     set of ids carrying a name
//	collections            set of collection ids
//	collection:{id}        hash: description
//	scope:{id}             set of target ids
//	constraints:{id}       list of constraint record ids
//	constraint:{rid}       hash: kind, targets, payload
package redisgw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/redis/go-redis/v9"

	"mdstore/internal/constraints"
	"mdstore/internal/domain"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "mds:"

// Compile-time check.
var _ domain.PersistenceGateway = (*Gateway)(nil)

// Gateway stores the catalog in Redis. Single-key writes are guarded by
// HSETNX; multi-key writes run in MULTI/EXEC transactions.
type Gateway struct {
	client      *redis.Client
	prefix      string
	serializers *constraints.Registry
	logger      *slog.Logger
	owned       bool
}

// Config holds the settings for Dial.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New creates a gateway on an existing client. The caller keeps ownership of
// the client.
func New(client *redis.Client, prefix string, logger *slog.Logger) *Gateway {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:      client,
		prefix:      prefix,
		serializers: constraints.NewRegistry(),
		logger:      logger,
	}
}

// Dial connects to Redis and verifies the connection. The gateway closes the
// client on Close.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	g := New(client, cfg.Prefix, logger)
	g.owned = true
	return g, nil
}

func (g *Gateway) key(parts ...string) string {
	k := g.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// Initialize drops every key under the prefix and marks the store as
// present.
func (g *Gateway) Initialize(ctx context.Context) error {
	if err := g.DropIfExists(ctx); err != nil {
		return err
	}
	if err := g.client.Set(ctx, g.key("initialized"), "1", 0).Err(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	g.logger.Info("redis catalog initialized", "prefix", g.prefix)
	return nil
}

// DropIfExists deletes every key under the prefix.
func (g *Gateway) DropIfExists(ctx context.Context) error {
	iter := g.client.Scan(ctx, 0, g.prefix+"*", 500).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := g.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 500 {
			if err := flush(); err != nil {
				return fmt.Errorf("drop keys: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("drop keys: %w", err)
	}
	return nil
}

// TablesExist reports whether Initialize ran under this prefix.
func (g *Gateway) TablesExist(ctx context.Context) (bool, error) {
	n, err := g.client.Exists(ctx, g.key("initialized")).Result()
	if err != nil {
		return false, fmt.Errorf("check initialized: %w", err)
	}
	return n == 1, nil
}

// RegisterConstraintSerializer makes a constraint kind storable.
func (g *Gateway) RegisterConstraintSerializer(s domain.ConstraintSerializer) {
	g.serializers.RegisterConstraintSerializer(s)
}

// SaveConfiguration merges cfg into the stored configuration.
func (g *Gateway) SaveConfiguration(ctx context.Context, cfg map[string]string) error {
	if len(cfg) == 0 {
		return nil
	}
	if err := g.client.HSet(ctx, g.key("config"), pairs(cfg)...).Err(); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	return nil
}

// LoadConfiguration returns the stored configuration.
func (g *Gateway) LoadConfiguration(ctx context.Context) (map[string]string, error) {
	cfg, err := g.client.HGetAll(ctx, g.key("config")).Result()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return maps.Clone(cfg), nil
}

// Flush is a no-op: Redis acknowledges each write.
func (g *Gateway) Flush(_ context.Context) error { return nil }

// Close closes the client when the gateway dialed it.
func (g *Gateway) Close() error {
	if !g.owned {
		return nil
	}
	return g.client.Close()
}

// pairs flattens m into alternating field/value arguments.
func pairs(m map[string]string) []any {
	out := make([]any, 0, 2*len(m))
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}
