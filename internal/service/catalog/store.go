// Package catalog implements the metadata store: the schema/table/column tree,
// its identifier registry, constraint collections, and the mirroring of every
// mutation into an optional persistence gateway.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mdstore/internal/constraints"
	"mdstore/internal/domain"
	"mdstore/internal/ids"
	"mdstore/internal/metrics"
	"mdstore/internal/registry"
	"mdstore/internal/snapshot"
)

// Configuration keys persisted through the gateway.
const (
	ConfigTableBits  = "table_bits"
	ConfigColumnBits = "column_bits"
)

// DefaultMaxIDRetries bounds how often an add is retried after the gateway
// reports that another writer took the allocated id.
const DefaultMaxIDRetries = 8

// Options configures a Store.
type Options struct {
	TableBits  int // 0 means ids.DefaultTableBits
	ColumnBits int // 0 means ids.DefaultColumnBits

	// Gateway makes the store durable. Nil keeps everything in memory.
	Gateway domain.PersistenceGateway
	// Sink receives snapshots of an in-memory store on Flush and Close.
	Sink snapshot.Sink
	// Serializers defaults to a registry holding the built-in kinds.
	Serializers *constraints.Registry

	MaxIDRetries int
	Random       func() int32 // collection id source, for tests

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Store is the metadata catalog. All methods are safe for concurrent use.
//
// Locking: mu guards the tree, the collections and the lost-id set and is
// held for the whole of every mutation, gateway I/O included, so that the
// commit-or-rollback decision is atomic for readers. The registry has its own
// leaf lock which is never held across I/O.
type Store struct {
	mu sync.RWMutex

	codec       ids.Codec
	alloc       *ids.Allocator
	reg         *registry.Registry
	gw          domain.PersistenceGateway
	sink        snapshot.Sink
	serializers *constraints.Registry
	maxRetries  int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	schemaOrder []domain.ID
	children    map[domain.ID][]domain.ID
	counts      [4]int // indexed by domain.TargetKind

	collections map[domain.ID]*domain.ConstraintCollection

	// Ids the gateway reported as taken by another writer. The allocator
	// skips them until they are hydrated.
	lost            map[domain.ID]struct{}
	lostCollections map[domain.ID]struct{}

	closed bool
}

// New creates an empty in-memory store. A gateway in opts is ignored; use
// Open for durable stores.
func New(opts Options) (*Store, error) {
	opts.Gateway = nil
	return newStore(opts)
}

func newStore(opts Options) (*Store, error) {
	tb, cb := opts.TableBits, opts.ColumnBits
	if tb == 0 {
		tb = ids.DefaultTableBits
	}
	if cb == 0 {
		cb = ids.DefaultColumnBits
	}
	codec, err := ids.NewCodec(tb, cb)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serializers := opts.Serializers
	if serializers == nil {
		serializers = constraints.NewRegistry()
		constraints.RegisterBuiltins(serializers)
	}
	maxRetries := opts.MaxIDRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxIDRetries
	}

	s := &Store{
		codec:           codec,
		reg:             registry.New(),
		gw:              opts.Gateway,
		sink:            opts.Sink,
		serializers:     serializers,
		maxRetries:      maxRetries,
		logger:          logger,
		metrics:         opts.Metrics,
		children:        make(map[domain.ID][]domain.ID),
		collections:     make(map[domain.ID]*domain.ConstraintCollection),
		lost:            make(map[domain.ID]struct{}),
		lostCollections: make(map[domain.ID]struct{}),
	}
	s.alloc = ids.NewAllocator(codec, s.idTaken)
	if opts.Random != nil {
		s.alloc.WithRandom(opts.Random)
	}
	if s.gw != nil {
		for _, ser := range serializers.All() {
			s.gw.RegisterConstraintSerializer(ser)
		}
	}
	return s, nil
}

// Open creates a durable store on opts.Gateway. When the gateway already
// holds a store it is resumed: the persisted bit widths win over the
// requested ones and the whole catalog is loaded. Otherwise the gateway is
// initialized and the configuration saved.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Gateway == nil {
		return nil, domain.ErrValidation("durable store requires a persistence gateway")
	}
	gw := opts.Gateway
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exists, err := gw.TablesExist(ctx)
	if err != nil {
		return nil, fmt.Errorf("check store tables: %w", err)
	}

	if !exists {
		s, err := newStore(opts)
		if err != nil {
			return nil, err
		}
		if err := gw.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initialize store: %w", err)
		}
		if err := gw.SaveConfiguration(ctx, s.configuration()); err != nil {
			return nil, fmt.Errorf("save store configuration: %w", err)
		}
		logger.Info("metadata store initialized",
			"table_bits", s.codec.TableBits(), "column_bits", s.codec.ColumnBits())
		return s, nil
	}

	cfg, err := gw.LoadConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("load store configuration: %w", err)
	}
	tb, cb, err := parseConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	if (opts.TableBits != 0 && opts.TableBits != tb) || (opts.ColumnBits != 0 && opts.ColumnBits != cb) {
		logger.Warn("persisted bit widths override requested ones",
			"table_bits", tb, "column_bits", cb,
			"requested_table_bits", opts.TableBits, "requested_column_bits", opts.ColumnBits)
	}
	opts.TableBits, opts.ColumnBits = tb, cb

	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}
	if err := s.hydrateAll(ctx); err != nil {
		return nil, err
	}
	s.updateGauges()
	logger.Info("metadata store resumed",
		"schemas", s.counts[domain.KindSchema],
		"tables", s.counts[domain.KindTable],
		"columns", s.counts[domain.KindColumn],
		"collections", len(s.collections))
	return s, nil
}

// Load rebuilds an in-memory store from the snapshot held by sink. Later
// flushes go back to the same sink.
func Load(ctx context.Context, sink snapshot.Sink, opts Options) (*Store, error) {
	doc, err := snapshot.Read(ctx, sink)
	if err != nil {
		return nil, err
	}
	opts.Gateway = nil
	opts.Sink = sink
	opts.TableBits, opts.ColumnBits = doc.TableBits, doc.ColumnBits
	s, err := newStore(opts)
	if err != nil {
		return nil, err
	}
	if err := s.restore(doc); err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", sink, err)
	}
	s.updateGauges()
	return s, nil
}

func (s *Store) configuration() map[string]string {
	return map[string]string{
		ConfigTableBits:  strconv.Itoa(s.codec.TableBits()),
		ConfigColumnBits: strconv.Itoa(s.codec.ColumnBits()),
	}
}

func parseConfiguration(cfg map[string]string) (tableBits, columnBits int, err error) {
	tableBits, err = strconv.Atoi(cfg[ConfigTableBits])
	if err != nil {
		return 0, 0, domain.ErrValidation("invalid persisted %s %q", ConfigTableBits, cfg[ConfigTableBits])
	}
	columnBits, err = strconv.Atoi(cfg[ConfigColumnBits])
	if err != nil {
		return 0, 0, domain.ErrValidation("invalid persisted %s %q", ConfigColumnBits, cfg[ConfigColumnBits])
	}
	return tableBits, columnBits, nil
}

// hydrateAll loads every level in parallel and links the result. Only called
// before the store is shared.
func (s *Store) hydrateAll(ctx context.Context) error {
	var (
		schemas, tables, columns []*domain.Target
		collections              []*domain.ConstraintCollection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() (err error) {
		schemas, err = s.gw.LoadSchemas(gctx)
		return err
	})
	g.Go(func() (err error) {
		tables, err = s.gw.LoadTables(gctx)
		return err
	})
	g.Go(func() (err error) {
		columns, err = s.gw.LoadColumns(gctx)
		return err
	})
	g.Go(func() (err error) {
		collections, err = s.gw.LoadConstraintCollections(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	for _, level := range [][]*domain.Target{schemas, tables, columns} {
		for _, t := range level {
			if err := s.attach(t); err != nil {
				return fmt.Errorf("load store: %w", err)
			}
		}
	}
	for _, c := range collections {
		s.collections[c.ID()] = c
	}
	return nil
}

// attach registers an already-identified target and links it below its
// parent, which must be present.
func (s *Store) attach(t *domain.Target) error {
	if got := s.codec.KindOf(t.ID()); got != t.Kind() {
		return domain.ErrValidation("%s carries a %s identifier", t, got)
	}
	if p, ok := t.Parent(); ok {
		if want, _ := s.codec.ParentID(t.ID()); want != p {
			return domain.ErrValidation("%s has parent %d, identifier implies %d", t, p, want)
		}
		if !s.reg.Contains(p) {
			return domain.ErrValidation("%s references unknown parent %d", t, p)
		}
	}
	if err := s.reg.Register(t); err != nil {
		return err
	}
	s.link(t)
	return nil
}

func (s *Store) link(t *domain.Target) {
	if p, ok := t.Parent(); ok {
		s.children[p] = append(s.children[p], t.ID())
	} else {
		s.schemaOrder = append(s.schemaOrder, t.ID())
	}
	s.counts[t.Kind()]++
}

func (s *Store) unlink(t *domain.Target) {
	id := t.ID()
	if p, ok := t.Parent(); ok {
		s.children[p] = removeID(s.children[p], id)
	} else {
		s.schemaOrder = removeID(s.schemaOrder, id)
	}
	delete(s.children, id)
	s.counts[t.Kind()]--
}

func removeID(list []domain.ID, id domain.ID) []domain.ID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// idTaken is the allocator's membership predicate. Called with mu held.
func (s *Store) idTaken(id domain.ID) bool {
	if s.reg.Contains(id) {
		return true
	}
	_, lost := s.lost[id]
	return lost
}

func (s *Store) checkOpen() error {
	if s.closed {
		return domain.ErrValidation("metadata store is closed")
	}
	return nil
}

// Codec returns the identifier codec of the store.
func (s *Store) Codec() ids.Codec { return s.codec }

// Durable reports whether the store mirrors into a gateway.
func (s *Store) Durable() bool { return s.gw != nil }

// RegisterConstraintSerializer makes a constraint kind storable.
func (s *Store) RegisterConstraintSerializer(ser domain.ConstraintSerializer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serializers.RegisterConstraintSerializer(ser)
	if s.gw != nil {
		s.gw.RegisterConstraintSerializer(ser)
	}
}

// Stats summarizes the catalog size.
type Stats struct {
	Schemas     int `json:"schemas"`
	Tables      int `json:"tables"`
	Columns     int `json:"columns"`
	Collections int `json:"collections"`
}

// Stats returns the current catalog size.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Schemas:     s.counts[domain.KindSchema],
		Tables:      s.counts[domain.KindTable],
		Columns:     s.counts[domain.KindColumn],
		Collections: len(s.collections),
	}
}

// LocationTypes lists the location types in use, sorted. A gateway that keeps
// a type catalog answers for durable stores, including types of targets that
// were removed since; otherwise the loaded targets are scanned.
func (s *Store) LocationTypes(ctx context.Context) ([]string, error) {
	if l, ok := s.gw.(domain.LocationTypeLister); ok {
		types, err := l.LocationTypes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list location types: %w", err)
		}
		return types, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, id := range s.reg.IDs() {
		t, ok := s.reg.Get(id)
		if !ok {
			continue
		}
		if typ := t.Location().Type(); typ != "" {
			seen[typ] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// updateGauges pushes the counts to the metrics. Called with mu held.
func (s *Store) updateGauges() {
	s.metrics.SetCatalogSize(
		s.counts[domain.KindSchema],
		s.counts[domain.KindTable],
		s.counts[domain.KindColumn],
		len(s.collections),
	)
}

// track records the outcome of op. Use as defer s.track("op")(&err).
func (s *Store) track(op string) func(*error) {
	start := time.Now()
	return func(err *error) {
		s.metrics.RecordOperation(op, *err, time.Since(start))
	}
}
