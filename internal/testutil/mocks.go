// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"

	"mdstore/internal/domain"
)

// === Persistence Gateway Mock ===

// MockGateway implements domain.PersistenceGateway for testing. A method with
// a non-nil Fn calls it; otherwise the call goes to Base, and without a Base
// the mock panics.
type MockGateway struct {
	Base domain.PersistenceGateway

	InitializeFn                 func(ctx context.Context) error
	DropIfExistsFn               func(ctx context.Context) error
	TablesExistFn                func(ctx context.Context) (bool, error)
	LoadSchemasFn                func(ctx context.Context) ([]*domain.Target, error)
	LoadTablesFn                 func(ctx context.Context) ([]*domain.Target, error)
	LoadColumnsFn                func(ctx context.Context) ([]*domain.Target, error)
	LoadConstraintCollectionsFn  func(ctx context.Context) ([]*domain.ConstraintCollection, error)
	GetTargetByIDFn              func(ctx context.Context, id domain.ID) (*domain.Target, error)
	GetSchemasByNameFn           func(ctx context.Context, name string) ([]*domain.Target, error)
	GetTablesByNameFn            func(ctx context.Context, name string) ([]*domain.Target, error)
	GetColumnsByNameFn           func(ctx context.Context, name string) ([]*domain.Target, error)
	GetChildrenFn                func(ctx context.Context, parent domain.ID) ([]*domain.Target, error)
	AddSchemaFn                  func(ctx context.Context, t *domain.Target) error
	AddTableFn                   func(ctx context.Context, t *domain.Target) error
	AddColumnFn                  func(ctx context.Context, t *domain.Target) error
	RemoveSchemaFn               func(ctx context.Context, id domain.ID) error
	RemoveTableFn                func(ctx context.Context, id domain.ID) error
	RemoveColumnFn               func(ctx context.Context, id domain.ID) error
	AddConstraintCollectionFn    func(ctx context.Context, c *domain.ConstraintCollection) error
	AddConstraintFn              func(ctx context.Context, collectionID domain.ID, r domain.ConstraintRecord) error
	RemoveConstraintCollectionFn func(ctx context.Context, id domain.ID) error
	SaveConfigurationFn          func(ctx context.Context, cfg map[string]string) error
	LoadConfigurationFn          func(ctx context.Context) (map[string]string, error)
	FlushFn                      func(ctx context.Context) error
	CloseFn                      func() error
}

func (m *MockGateway) base(method string) domain.PersistenceGateway {
	if m.Base == nil {
		panic("unexpected call to MockGateway." + method)
	}
	return m.Base
}

// Initialize implements the interface method for testing.
func (m *MockGateway) Initialize(ctx context.Context) error {
	if m.InitializeFn != nil {
		return m.InitializeFn(ctx)
	}
	return m.base("Initialize").Initialize(ctx)
}

// DropIfExists implements the interface method for testing.
func (m *MockGateway) DropIfExists(ctx context.Context) error {
	if m.DropIfExistsFn != nil {
		return m.DropIfExistsFn(ctx)
	}
	return m.base("DropIfExists").DropIfExists(ctx)
}

// TablesExist implements the interface method for testing.
func (m *MockGateway) TablesExist(ctx context.Context) (bool, error) {
	if m.TablesExistFn != nil {
		return m.TablesExistFn(ctx)
	}
	return m.base("TablesExist").TablesExist(ctx)
}

// LoadSchemas implements the interface method for testing.
func (m *MockGateway) LoadSchemas(ctx context.Context) ([]*domain.Target, error) {
	if m.LoadSchemasFn != nil {
		return m.LoadSchemasFn(ctx)
	}
	return m.base("LoadSchemas").LoadSchemas(ctx)
}

// LoadTables implements the interface method for testing.
func (m *MockGateway) LoadTables(ctx context.Context) ([]*domain.Target, error) {
	if m.LoadTablesFn != nil {
		return m.LoadTablesFn(ctx)
	}
	return m.base("LoadTables").LoadTables(ctx)
}

// LoadColumns implements the interface method for testing.
func (m *MockGateway) LoadColumns(ctx context.Context) ([]*domain.Target, error) {
	if m.LoadColumnsFn != nil {
		return m.LoadColumnsFn(ctx)
	}
	return m.base("LoadColumns").LoadColumns(ctx)
}

// LoadConstraintCollections implements the interface method for testing.
func (m *MockGateway) LoadConstraintCollections(ctx context.Context) ([]*domain.ConstraintCollection, error) {
	if m.LoadConstraintCollectionsFn != nil {
		return m.LoadConstraintCollectionsFn(ctx)
	}
	return m.base("LoadConstraintCollections").LoadConstraintCollections(ctx)
}

// GetTargetByID implements the interface method for testing.
func (m *MockGateway) GetTargetByID(ctx context.Context, id domain.ID) (*domain.Target, error) {
	if m.GetTargetByIDFn != nil {
		return m.GetTargetByIDFn(ctx, id)
	}
	return m.base("GetTargetByID").GetTargetByID(ctx, id)
}

// GetSchemasByName implements the interface method for testing.
func (m *MockGateway) GetSchemasByName(ctx context.Context, name string) ([]*domain.Target, error) {
	if m.GetSchemasByNameFn != nil {
		return m.GetSchemasByNameFn(ctx, name)
	}
	return m.base("GetSchemasByName").GetSchemasByName(ctx, name)
}

// GetTablesByName implements the interface method for testing.
func (m *MockGateway) GetTablesByName(ctx context.Context, name string) ([]*domain.Target, error) {
	if m.GetTablesByNameFn != nil {
		return m.GetTablesByNameFn(ctx, name)
	}
	return m.base("GetTablesByName").GetTablesByName(ctx, name)
}

// GetColumnsByName implements the interface method for testing.
func (m *MockGateway) GetColumnsByName(ctx context.Context, name string) ([]*domain.Target, error) {
	if m.GetColumnsByNameFn != nil {
		return m.GetColumnsByNameFn(ctx, name)
	}
	return m.base("GetColumnsByName").GetColumnsByName(ctx, name)
}

// GetChildren implements the interface method for testing.
func (m *MockGateway) GetChildren(ctx context.Context, parent domain.ID) ([]*domain.Target, error) {
	if m.GetChildrenFn != nil {
		return m.GetChildrenFn(ctx, parent)
	}
	return m.base("GetChildren").GetChildren(ctx, parent)
}

// AddSchema implements the interface method for testing.
func (m *MockGateway) AddSchema(ctx context.Context, t *domain.Target) error {
	if m.AddSchemaFn != nil {
		return m.AddSchemaFn(ctx, t)
	}
	return m.base("AddSchema").AddSchema(ctx, t)
}

// AddTable implements the interface method for testing.
func (m *MockGateway) AddTable(ctx context.Context, t *domain.Target) error {
	if m.AddTableFn != nil {
		return m.AddTableFn(ctx, t)
	}
	return m.base("AddTable").AddTable(ctx, t)
}

// AddColumn implements the interface method for testing.
func (m *MockGateway) AddColumn(ctx context.Context, t *domain.Target) error {
	if m.AddColumnFn != nil {
		return m.AddColumnFn(ctx, t)
	}
	return m.base("AddColumn").AddColumn(ctx, t)
}

// RemoveSchema implements the interface method for testing.
func (m *MockGateway) RemoveSchema(ctx context.Context, id domain.ID) error {
	if m.RemoveSchemaFn != nil {
		return m.RemoveSchemaFn(ctx, id)
	}
	return m.base("RemoveSchema").RemoveSchema(ctx, id)
}

// RemoveTable implements the interface method for testing.
func (m *MockGateway) RemoveTable(ctx context.Context, id domain.ID) error {
	if m.RemoveTableFn != nil {
		return m.RemoveTableFn(ctx, id)
	}
	return m.base("RemoveTable").RemoveTable(ctx, id)
}

// RemoveColumn implements the interface method for testing.
func (m *MockGateway) RemoveColumn(ctx context.Context, id domain.ID) error {
	if m.RemoveColumnFn != nil {
		return m.RemoveColumnFn(ctx, id)
	}
	return m.base("RemoveColumn").RemoveColumn(ctx, id)
}

// AddConstraintCollection implements the interface method for testing.
func (m *MockGateway) AddConstraintCollection(ctx context.Context, c *domain.ConstraintCollection) error {
	if m.AddConstraintCollectionFn != nil {
		return m.AddConstraintCollectionFn(ctx, c)
	}
	return m.base("AddConstraintCollection").AddConstraintCollection(ctx, c)
}

// AddConstraint implements the interface method for testing.
func (m *MockGateway) AddConstraint(ctx context.Context, collectionID domain.ID, r domain.ConstraintRecord) error {
	if m.AddConstraintFn != nil {
		return m.AddConstraintFn(ctx, collectionID, r)
	}
	return m.base("AddConstraint").AddConstraint(ctx, collectionID, r)
}

// RemoveConstraintCollection implements the interface method for testing.
func (m *MockGateway) RemoveConstraintCollection(ctx context.Context, id domain.ID) error {
	if m.RemoveConstraintCollectionFn != nil {
		return m.RemoveConstraintCollectionFn(ctx, id)
	}
	return m.base("RemoveConstraintCollection").RemoveConstraintCollection(ctx, id)
}

// RegisterConstraintSerializer forwards to Base when present.
func (m *MockGateway) RegisterConstraintSerializer(s domain.ConstraintSerializer) {
	if m.Base != nil {
		m.Base.RegisterConstraintSerializer(s)
	}
}

// SaveConfiguration implements the interface method for testing.
func (m *MockGateway) SaveConfiguration(ctx context.Context, cfg map[string]string) error {
	if m.SaveConfigurationFn != nil {
		return m.SaveConfigurationFn(ctx, cfg)
	}
	return m.base("SaveConfiguration").SaveConfiguration(ctx, cfg)
}

// LoadConfiguration implements the interface method for testing.
func (m *MockGateway) LoadConfiguration(ctx context.Context) (map[string]string, error) {
	if m.LoadConfigurationFn != nil {
		return m.LoadConfigurationFn(ctx)
	}
	return m.base("LoadConfiguration").LoadConfiguration(ctx)
}

// Flush implements the interface method for testing.
func (m *MockGateway) Flush(ctx context.Context) error {
	if m.FlushFn != nil {
		return m.FlushFn(ctx)
	}
	return m.base("Flush").Flush(ctx)
}

// Close implements the interface method for testing.
func (m *MockGateway) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return m.base("Close").Close()
}

var _ domain.PersistenceGateway = (*MockGateway)(nil)
