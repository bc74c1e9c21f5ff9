// Package snapshot defines the versioned document an in-memory metadata store
// is flushed to and restored from, and the sinks that hold it.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"mdstore/internal/domain"
)

// FormatName identifies snapshot documents.
const FormatName = "mdstore.snapshot"

// CurrentVersion is the newest document version this package reads and the
// one it writes.
const CurrentVersion = 1

// Document is the full serialized state of a store.
type Document struct {
	Format      string          `json:"format" yaml:"format"`
	Version     int             `json:"version" yaml:"version"`
	TableBits   int             `json:"table_bits" yaml:"table_bits"`
	ColumnBits  int             `json:"column_bits" yaml:"column_bits"`
	Schemas     []SchemaDoc     `json:"schemas" yaml:"schemas"`
	Collections []CollectionDoc `json:"collections" yaml:"collections"`
}

// SchemaDoc is one schema with its tables.
type SchemaDoc struct {
	ID          domain.ID         `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Location    map[string]string `json:"location,omitempty" yaml:"location,omitempty"`
	Tables      []TableDoc        `json:"tables,omitempty" yaml:"tables,omitempty"`
}

// TableDoc is one table with its columns.
type TableDoc struct {
	ID          domain.ID         `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Location    map[string]string `json:"location,omitempty" yaml:"location,omitempty"`
	Columns     []ColumnDoc       `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// ColumnDoc is one column.
type ColumnDoc struct {
	ID          domain.ID         `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Location    map[string]string `json:"location,omitempty" yaml:"location,omitempty"`
}

// CollectionDoc is one constraint collection.
type CollectionDoc struct {
	ID          domain.ID       `json:"id" yaml:"id"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Scope       []domain.ID     `json:"scope" yaml:"scope"`
	Constraints []ConstraintDoc `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// ConstraintDoc is one constraint with its serializer payload.
type ConstraintDoc struct {
	ID      string      `json:"id" yaml:"id"`
	Kind    string      `json:"kind" yaml:"kind"`
	Targets []domain.ID `json:"targets" yaml:"targets"`
	Payload string      `json:"payload" yaml:"payload"`
}

// Encoding selects the byte format of a document.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingYAML
)

func (e Encoding) String() string {
	if e == EncodingYAML {
		return "yaml"
	}
	return "json"
}

// EncodingFor picks the encoding from a location's extension.
func EncodingFor(location string) Encoding {
	switch strings.ToLower(path.Ext(location)) {
	case ".yaml", ".yml":
		return EncodingYAML
	default:
		return EncodingJSON
	}
}

// New returns an empty document stamped with the current format and version.
func New(tableBits, columnBits int) *Document {
	return &Document{
		Format:     FormatName,
		Version:    CurrentVersion,
		TableBits:  tableBits,
		ColumnBits: columnBits,
	}
}

// Marshal encodes doc.
func Marshal(doc *Document, enc Encoding) ([]byte, error) {
	if enc == EncodingYAML {
		var buf bytes.Buffer
		e := yaml.NewEncoder(&buf)
		e.SetIndent(2)
		if err := e.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode snapshot yaml: %w", err)
		}
		if err := e.Close(); err != nil {
			return nil, fmt.Errorf("encode snapshot yaml: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot json: %w", err)
	}
	return data, nil
}

// Unmarshal decodes and validates a document.
func Unmarshal(data []byte, enc Encoding) (*Document, error) {
	var doc Document
	var err error
	if enc == EncodingYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", enc, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the header fields.
func (d *Document) Validate() error {
	if d.Format != FormatName {
		return domain.ErrValidation("not a snapshot document (format %q)", d.Format)
	}
	if d.Version < 1 || d.Version > CurrentVersion {
		return domain.ErrValidation("unsupported snapshot version %d (max %d)", d.Version, CurrentVersion)
	}
	return nil
}
