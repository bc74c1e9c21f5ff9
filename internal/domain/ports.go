package domain

import "context"

// PersistenceGateway is the boundary a durable backing store implements.
// Implemented by repository.SQLGateway and redisgw.Gateway.
//
// Add methods fail with *DuplicateIdentifierError when the id is already
// stored. Remove methods cascade to descendants; when a cascade is only
// partially applied they return *PartialFailureError listing what is gone.
type PersistenceGateway interface {
	// Initialize creates every structure the store needs, dropping old ones first.
	Initialize(ctx context.Context) error
	DropIfExists(ctx context.Context) error
	// TablesExist reports whether every required structure is present, which
	// decides between a fresh initialize and a resume.
	TablesExist(ctx context.Context) (bool, error)

	LoadSchemas(ctx context.Context) ([]*Target, error)
	LoadTables(ctx context.Context) ([]*Target, error)
	LoadColumns(ctx context.Context) ([]*Target, error)
	LoadConstraintCollections(ctx context.Context) ([]*ConstraintCollection, error)

	GetTargetByID(ctx context.Context, id ID) (*Target, error)
	GetSchemasByName(ctx context.Context, name string) ([]*Target, error)
	GetTablesByName(ctx context.Context, name string) ([]*Target, error)
	GetColumnsByName(ctx context.Context, name string) ([]*Target, error)
	// GetChildren returns the tables of a schema or the columns of a table.
	GetChildren(ctx context.Context, parent ID) ([]*Target, error)

	AddSchema(ctx context.Context, schema *Target) error
	AddTable(ctx context.Context, table *Target) error
	AddColumn(ctx context.Context, column *Target) error
	RemoveSchema(ctx context.Context, id ID) error
	RemoveTable(ctx context.Context, id ID) error
	RemoveColumn(ctx context.Context, id ID) error

	AddConstraintCollection(ctx context.Context, c *ConstraintCollection) error
	AddConstraint(ctx context.Context, collectionID ID, r ConstraintRecord) error
	RemoveConstraintCollection(ctx context.Context, id ID) error
	RegisterConstraintSerializer(s ConstraintSerializer)

	SaveConfiguration(ctx context.Context, cfg map[string]string) error
	LoadConfiguration(ctx context.Context) (map[string]string, error)

	// Flush pushes buffered writes. Safe to call repeatedly.
	Flush(ctx context.Context) error
	Close() error
}

// LocationTypeLister is implemented by gateways that keep a catalog of every
// location type they have stored.
type LocationTypeLister interface {
	LocationTypes(ctx context.Context) ([]string, error)
}

// ConstraintSerializerRegistrar is anything serializers can be registered on.
type ConstraintSerializerRegistrar interface {
	RegisterConstraintSerializer(s ConstraintSerializer)
}
