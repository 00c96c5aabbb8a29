package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/jackc/pgx/v5"
)

const integrationColumns = `id, name, platform_id, source_format, field_mapping, tables, is_active`

const listActiveIntegrations = `-- name: ListActiveIntegrations :many
SELECT ` + integrationColumns + `
FROM integrations
WHERE is_active
ORDER BY id
`

func (q *Queries) ListActiveIntegrations(ctx context.Context) ([]core.Integration, error) {
	rows, err := q.db.Query(ctx, listActiveIntegrations)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var items []core.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return items, nil
}

const listIntegrations = `-- name: ListIntegrations :many
SELECT ` + integrationColumns + `
FROM integrations
ORDER BY id
`

// ListIntegrations returns every integration, active or not.
func (q *Queries) ListIntegrations(ctx context.Context) ([]core.Integration, error) {
	rows, err := q.db.Query(ctx, listIntegrations)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var items []core.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return items, nil
}

const findIntegrationByName = `-- name: FindIntegrationByName :one
SELECT ` + integrationColumns + `
FROM integrations
WHERE name = $1
`

// FindIntegrationByName returns core.ErrNotFound when no row has name.
// Inactive integrations are returned so the caller can report them.
func (q *Queries) FindIntegrationByName(ctx context.Context, name string) (core.Integration, error) {
	i, err := scanIntegration(q.db.QueryRow(ctx, findIntegrationByName, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Integration{}, core.ErrNotFound
	}
	return i, err
}

func scanIntegration(row pgx.Row) (core.Integration, error) {
	var (
		i       core.Integration
		mapping []byte
	)
	if err := row.Scan(
		&i.ID,
		&i.Name,
		&i.PlatformID,
		&i.SourceFormat,
		&mapping,
		&i.Tables,
		&i.IsActive,
	); err != nil {
		return core.Integration{}, fmt.Errorf("scan integration: %w", err)
	}

	if err := json.Unmarshal(mapping, &i.FieldMapping); err != nil {
		return core.Integration{}, fmt.Errorf("integration %q: field mapping: %w", i.Name, err)
	}
	return i, nil
}

const upsertPlatform = `-- name: UpsertPlatform :exec
INSERT INTO platforms (id, code, name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
    code = EXCLUDED.code,
    name = EXCLUDED.name
`

type UpsertPlatformParams struct {
	ID   int
	Code string
	Name string
}

func (q *Queries) UpsertPlatform(ctx context.Context, arg UpsertPlatformParams) error {
	if _, err := q.db.Exec(ctx, upsertPlatform, arg.ID, arg.Code, arg.Name); err != nil {
		return fmt.Errorf("upsert platform %q: %w", arg.Code, err)
	}
	return nil
}

const upsertIntegration = `-- name: UpsertIntegration :one
INSERT INTO integrations (name, platform_id, source_format, field_mapping, tables, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET
    platform_id   = EXCLUDED.platform_id,
    source_format = EXCLUDED.source_format,
    field_mapping = EXCLUDED.field_mapping,
    tables        = EXCLUDED.tables,
    is_active     = EXCLUDED.is_active,
    updated_at    = now()
RETURNING id
`

// UpsertIntegration creates or replaces an integration by name and returns its id.
func (q *Queries) UpsertIntegration(ctx context.Context, i core.Integration) (int64, error) {
	mapping, err := json.Marshal(i.FieldMapping)
	if err != nil {
		return 0, fmt.Errorf("integration %q: encode field mapping: %w", i.Name, err)
	}

	tables := i.Tables
	if tables == nil {
		tables = []string{}
	}

	var id int64
	err = q.db.QueryRow(ctx, upsertIntegration,
		i.Name,
		i.PlatformID,
		i.SourceFormat,
		string(mapping),
		tables,
		i.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert integration %q: %w", i.Name, err)
	}
	return id, nil
}
