package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createJob = `-- name: CreateJob :exec
INSERT INTO ingestion_jobs (id, integration_id, file_path, status, total_rows)
VALUES ($1, $2, $3, 'pending', $4)
`

func (q *Queries) CreateJob(ctx context.Context, integrationID int64, filePath string, totalRows int) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := q.db.Exec(ctx, createJob, toPgUUID(id), integrationID, filePath, totalRows); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

const updateJob = `-- name: UpdateJob :exec
UPDATE ingestion_jobs SET
    status         = $2,
    total_rows     = $3,
    processed_rows = $4,
    inserted_rows  = $5,
    error_rows     = $6,
    error_message  = $7,
    completed_at   = CASE WHEN $2 = 'pending' THEN NULL ELSE now() END
WHERE id = $1
`

// UpdateJob returns core.ErrNotFound when no job has id.
func (q *Queries) UpdateJob(ctx context.Context, id uuid.UUID, u core.JobUpdate) error {
	var msg *string
	if u.ErrorMessage != "" {
		msg = &u.ErrorMessage
	}

	tag, err := q.db.Exec(ctx, updateJob,
		toPgUUID(id),
		string(u.Status),
		u.TotalRows,
		u.ProcessedRows,
		u.InsertedRows,
		u.ErrorRows,
		toPgText(msg),
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", id, core.ErrNotFound)
	}
	return nil
}

const listJobs = `-- name: ListJobs :many
SELECT j.id, j.integration_id, i.name, j.file_path, j.status,
       j.total_rows, j.processed_rows, j.inserted_rows, j.error_rows,
       j.error_message, j.started_at, j.completed_at
FROM ingestion_jobs j
JOIN integrations i ON i.id = j.integration_id
ORDER BY j.started_at DESC, j.id
LIMIT $1
`

// ListJobs returns the most recent jobs, newest first.
func (q *Queries) ListJobs(ctx context.Context, limit int) ([]core.IngestionJob, error) {
	rows, err := q.db.Query(ctx, listJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []core.IngestionJob
	for rows.Next() {
		var (
			j         core.IngestionJob
			id        pgtype.UUID
			status    string
			errMsg    pgtype.Text
			started   pgtype.Timestamptz
			completed pgtype.Timestamptz
		)
		if err := rows.Scan(
			&id,
			&j.IntegrationID,
			&j.Integration,
			&j.FilePath,
			&status,
			&j.TotalRows,
			&j.ProcessedRows,
			&j.InsertedRows,
			&j.ErrorRows,
			&errMsg,
			&started,
			&completed,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.ID = fromPgUUID(id)
		j.Status = core.JobStatus(status)
		j.ErrorMessage = fromPgText(errMsg)
		if t := fromPgTimestamptz(started); t != nil {
			j.StartedAt = *t
		}
		j.CompletedAt = fromPgTimestamptz(completed)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
