package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/ups-collab/internal/core/domain"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// ExportRepository renders comment exports into the artifact store and
// keeps their history.
type ExportRepository struct {
	pool      *pgxpool.Pool
	tx        ports.TransactionManager
	comments  ports.CommentBackend
	artifacts ports.ArtifactStore
	logger    *slog.Logger
}

var _ ports.ExportBackend = (*ExportRepository)(nil)

// ExportRepositoryParams holds the dependencies of an ExportRepository.
type ExportRepositoryParams struct {
	Pool      *pgxpool.Pool
	Comments  ports.CommentBackend
	Artifacts ports.ArtifactStore
	Logger    *slog.Logger
}

// NewExportRepository creates a new export repository.
func NewExportRepository(params ExportRepositoryParams) *ExportRepository {
	return &ExportRepository{
		pool:      params.Pool,
		tx:        NewTransactionManager(params.Pool),
		comments:  params.Comments,
		artifacts: params.Artifacts,
		logger:    params.Logger.With("component", "export_repository"),
	}
}

// ObjectKey is where the artifact of an export is stored.
func ObjectKey(resourceID, exportID string, format domain.ExportFormat) string {
	return fmt.Sprintf("%s/%s.%s", resourceID, exportID, format)
}

// ExportComments snapshots the resource's comments, records the export and
// uploads the rendered artifact, all inside one transaction. An artifact
// whose record does not commit is removed again.
func (r *ExportRepository) ExportComments(ctx context.Context, options domain.ExportOptions, requestedBy uuid.UUID) (string, error) {
	exportID := uuid.NewString()
	key := ObjectKey(options.ResourceID, exportID, options.Format)

	uploaded := false
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		comments, err := r.comments.ListComments(ctx, options.ResourceID)
		if err != nil {
			return fmt.Errorf("load comments: %w", err)
		}
		comments = selectForExport(comments, options.IncludeResolved)

		data, contentType, err := renderExport(options.Format, comments)
		if err != nil {
			return fmt.Errorf("render export: %w", err)
		}

		const query = `
INSERT INTO exports (id, resource_id, format, include_resolved, object_key, comment_count, requested_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
		_, err = GetDBTX(ctx, r.pool).Exec(ctx, query,
			exportID,
			options.ResourceID,
			string(options.Format),
			options.IncludeResolved,
			key,
			len(comments),
			requestedBy,
		)
		if err != nil {
			return fmt.Errorf("insert export: %w", err)
		}

		if err := r.artifacts.PutArtifact(ctx, key, contentType, data); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}
		uploaded = true
		return nil
	})
	if err != nil {
		if uploaded {
			r.discardArtifact(ctx, key)
		}
		return "", err
	}

	r.logger.InfoContext(ctx, "export stored",
		"export_id", exportID,
		"resource_id", options.ResourceID,
		"object_key", key,
	)
	return exportID, nil
}

func (r *ExportRepository) discardArtifact(ctx context.Context, key string) {
	if err := r.artifacts.DeleteArtifact(context.WithoutCancel(ctx), key); err != nil {
		r.logger.WarnContext(ctx, "failed to remove orphaned artifact", "object_key", key, "error", err)
	}
}

// ScheduleExport records a deferred export.
func (r *ExportRepository) ScheduleExport(ctx context.Context, schedule domain.ExportSchedule) (*domain.ExportSchedule, error) {
	const query = `
INSERT INTO export_schedules (id, resource_id, format, include_resolved, run_at, requested_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING run_at
`

	var runAt time.Time
	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		schedule.ID,
		schedule.Options.ResourceID,
		string(schedule.Options.Format),
		schedule.Options.IncludeResolved,
		schedule.RunAt,
		schedule.RequestedBy,
	).Scan(&runAt)
	if err != nil {
		return nil, fmt.Errorf("insert export schedule: %w", err)
	}

	saved := schedule
	saved.RunAt = runAt.UTC()
	return &saved, nil
}

// GetExportHistory lists a resource's exports, newest first.
func (r *ExportRepository) GetExportHistory(ctx context.Context, resourceID string) ([]domain.ExportRecord, error) {
	const query = `
SELECT id, resource_id, format, include_resolved, object_key, comment_count, requested_by, created_at
FROM exports
WHERE resource_id = $1
ORDER BY created_at DESC, id
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ExportRecord, 0)
	for rows.Next() {
		var (
			rec    domain.ExportRecord
			format string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Options.ResourceID,
			&format,
			&rec.Options.IncludeResolved,
			&rec.ObjectKey,
			&rec.CommentCount,
			&rec.RequestedBy,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		rec.Options.Format = domain.ExportFormat(format)
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
