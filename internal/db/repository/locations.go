package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"

	"mdstore/internal/domain"
)

// storeLocation writes loc for target id. Canonicalizable values are stored
// once in mds_location_type and referenced by id; everything else goes into
// mds_location_property.
func (g *SQLGateway) storeLocation(ctx context.Context, tx *sql.Tx, id domain.ID, loc domain.Location) error {
	if loc.Len() == 0 {
		return nil
	}
	props := loc.Properties()

	var typeID sql.NullInt64
	if typ, ok := props[domain.LocationTypeKey]; ok {
		tid, err := g.storeLocationType(ctx, tx, typ)
		if err != nil {
			return err
		}
		typeID = sql.NullInt64{Int64: tid, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_location (target_id, type_id) VALUES (?, ?)`),
		int64(id), typeID); err != nil {
		return fmt.Errorf("store location of %d: %w", id, err)
	}

	canonical := loc.CanonicalizableKeys()
	keys := make([]string, 0, len(props))
	for k := range props {
		if !slices.Contains(canonical, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_location_property (target_id, name, value)
			VALUES (?, ?, ?)`), int64(id), k, props[k]); err != nil {
			return fmt.Errorf("store location property %q of %d: %w", k, id, err)
		}
	}
	return nil
}

func (g *SQLGateway) storeLocationType(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx, g.q(`INSERT INTO mds_location_type (name) VALUES (?)
		ON CONFLICT (name) DO NOTHING`), name); err != nil {
		return 0, fmt.Errorf("store location type %q: %w", name, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, g.q(`SELECT id FROM mds_location_type WHERE name = ?`), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup location type %q: %w", name, err)
	}
	return id, nil
}

// loadLocations returns the properties of every located target matching
// where, keyed by target id.
func (g *SQLGateway) loadLocations(ctx context.Context, tx *sql.Tx, where string, args ...any) (map[domain.ID]map[string]string, error) {
	out := make(map[domain.ID]map[string]string)
	put := func(id int64, k, v string) {
		m, ok := out[domain.ID(id)]
		if !ok {
			m = make(map[string]string)
			out[domain.ID(id)] = m
		}
		m[k] = v
	}

	rows, err := tx.QueryContext(ctx, g.q(`SELECT l.target_id, lt.name
		FROM mds_location l
		JOIN mds_target t ON t.id = l.target_id
		LEFT JOIN mds_location_type lt ON lt.id = l.type_id
		WHERE `+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	for rows.Next() {
		var id int64
		var typ sql.NullString
		if err := rows.Scan(&id, &typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan location: %w", err)
		}
		if typ.Valid {
			put(id, domain.LocationTypeKey, typ.String)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}

	rows, err = tx.QueryContext(ctx, g.q(`SELECT p.target_id, p.name, p.value
		FROM mds_location_property p
		JOIN mds_target t ON t.id = p.target_id
		WHERE `+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query location properties: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var k, v string
		if err := rows.Scan(&id, &k, &v); err != nil {
			return nil, fmt.Errorf("scan location property: %w", err)
		}
		put(id, k, v)
	}
	return out, rows.Err()
}

// LocationTypes returns every location type stored so far, sorted.
func (g *SQLGateway) LocationTypes(ctx context.Context) ([]string, error) {
	rows, err := g.read.QueryContext(ctx, `SELECT name FROM mds_location_type ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query location types: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan location type: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
