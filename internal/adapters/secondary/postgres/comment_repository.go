package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

const commentColumns = `id, resource_id, content, author_id, author_name, status, priority, assignee,
media_type, position, parent_id, mentions::text[], version, created_at, updated_at,
COALESCE((
    SELECT json_agg(json_build_object('userId', r.user_id, 'type', r.type, 'createdAt', r.created_at)
                    ORDER BY r.created_at, r.user_id, r.type)
    FROM comment_reactions r
    WHERE r.comment_id = comments.id
), '[]'::json)`

// CommentRepository handles database operations for comments. Every write
// bumps the row's version, reactions included.
type CommentRepository struct {
	pool *pgxpool.Pool
	tx   *TransactionManager
}

// Ensure implementation matches the interface.
var _ ports.CommentBackend = (*CommentRepository)(nil)

// NewCommentRepository creates a new comment repository.
func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{pool: pool, tx: NewTransactionManager(pool)}
}

// scanComment maps a comments row to a domain.Comment.
func scanComment(row pgx.Row) (*domain.Comment, error) {
	var (
		c         domain.Comment
		status    string
		priority  string
		mediaType *string
		position  []byte
		mentions  []string
		reactions []byte
	)
	err := row.Scan(
		&c.ID,
		&c.ResourceID,
		&c.Content,
		&c.Author.ID,
		&c.Author.Name,
		&status,
		&priority,
		&c.Assignee,
		&mediaType,
		&position,
		&c.ParentID,
		&mentions,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
		&reactions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCommentNotFound
		}
		return nil, err
	}
	c.Status = domain.CommentStatus(status)
	c.Priority = domain.Priority(priority)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if mediaType != nil {
		c.MediaType = domain.MediaType(*mediaType)
	}
	if len(position) > 0 {
		c.Position = new(domain.Position)
		if err := json.Unmarshal(position, c.Position); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
	}
	for _, m := range mentions {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("decode mention: %w", err)
		}
		c.Mentions = append(c.Mentions, id)
	}
	if err := json.Unmarshal(reactions, &c.Reactions); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}
	if len(c.Reactions) == 0 {
		c.Reactions = nil
	}
	for i := range c.Reactions {
		c.Reactions[i].CreatedAt = c.Reactions[i].CreatedAt.UTC()
	}
	return &c, nil
}

// ListComments retrieves the live comments of a resource, ordered by creation.
func (r *CommentRepository) ListComments(ctx context.Context, resourceID string) ([]domain.Comment, error) {
	const query = `
SELECT ` + commentColumns + `
FROM comments
WHERE resource_id = $1 AND deleted_at IS NULL
ORDER BY created_at, id
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// GetComment retrieves a live comment by ID.
func (r *CommentRepository) GetComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	const query = `
SELECT ` + commentColumns + `
FROM comments
WHERE id = $1 AND deleted_at IS NULL
`
	return scanComment(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
}

// AddComment persists a new comment at version 1. A reply is only stored
// when its parent is a live top-level comment of the same resource.
func (r *CommentRepository) AddComment(ctx context.Context, comment domain.Comment) (*domain.Comment, error) {
	const query = `
INSERT INTO comments (id, resource_id, content, author_id, author_name, status, priority, assignee,
                      media_type, position, parent_id, mentions, version, created_at, updated_at)
SELECT $1::uuid, $2::text, $3::text, $4::uuid, $5::text, $6::text, $7::text, $8::uuid,
       $9::text, $10::text::jsonb, $11::uuid, $12::text[]::uuid[], 1, $13::timestamptz, $13::timestamptz
WHERE $11::uuid IS NULL OR EXISTS (
    SELECT 1 FROM comments p
    WHERE p.id = $11::uuid AND p.resource_id = $2::text AND p.parent_id IS NULL AND p.deleted_at IS NULL
)
RETURNING ` + commentColumns

	var mediaType, position *string
	if comment.MediaType != "" {
		m := string(comment.MediaType)
		mediaType = &m
	}
	if comment.Position != nil {
		raw, err := json.Marshal(comment.Position)
		if err != nil {
			return nil, fmt.Errorf("encode position: %w", err)
		}
		p := string(raw)
		position = &p
	}
	mentions := make([]string, 0, len(comment.Mentions))
	for _, m := range comment.Mentions {
		mentions = append(mentions, m.String())
	}

	return scanComment(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		comment.ID,
		comment.ResourceID,
		comment.Content,
		comment.Author.ID,
		comment.Author.Name,
		string(comment.Status),
		string(comment.Priority),
		comment.Assignee,
		mediaType,
		position,
		comment.ParentID,
		mentions,
		comment.CreatedAt,
	))
}

// UpdateComment applies the set fields of patch.
func (r *CommentRepository) UpdateComment(ctx context.Context, id uuid.UUID, patch domain.CommentPatch) (*domain.Comment, error) {
	const query = `
UPDATE comments
SET content    = COALESCE($2, content),
    status     = COALESCE($3, status),
    priority   = COALESCE($4, priority),
    assignee   = COALESCE($5, assignee),
    version    = version + 1,
    updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
RETURNING ` + commentColumns

	var status, priority *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	if patch.Priority != nil {
		p := string(*patch.Priority)
		priority = &p
	}

	return scanComment(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id, patch.Content, status, priority, patch.Assignee))
}

// ResolveComment marks a comment resolved.
func (r *CommentRepository) ResolveComment(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	status := domain.CommentStatusResolved
	return r.UpdateComment(ctx, id, domain.CommentPatch{Status: &status})
}

// AssignComment sets a comment's assignee.
func (r *CommentRepository) AssignComment(ctx context.Context, id uuid.UUID, assignee uuid.UUID) (*domain.Comment, error) {
	return r.UpdateComment(ctx, id, domain.CommentPatch{Assignee: &assignee})
}

// DeleteComment soft-deletes a comment and its replies in one write,
// keeping tombstones whose versions order the delete after every earlier
// write. It returns the version of the comment's own tombstone.
func (r *CommentRepository) DeleteComment(ctx context.Context, id uuid.UUID) (int64, error) {
	const query = `
WITH thread AS (
    UPDATE comments
    SET deleted_at = NOW(),
        version    = version + 1,
        updated_at = NOW()
    WHERE (id = $1 OR parent_id = $1) AND deleted_at IS NULL
      AND EXISTS (SELECT 1 FROM comments p WHERE p.id = $1 AND p.deleted_at IS NULL)
    RETURNING id, version
)
SELECT version FROM thread WHERE id = $1
`

	var version int64
	if err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrCommentNotFound
		}
		return 0, fmt.Errorf("delete comment: %w", err)
	}
	return version, nil
}

// AddReaction records reaction on a live comment. Repeating a reaction the
// user already holds only bumps the version.
func (r *CommentRepository) AddReaction(ctx context.Context, id uuid.UUID, reaction domain.Reaction) (*domain.Comment, error) {
	const query = `
INSERT INTO comment_reactions (comment_id, user_id, type, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (comment_id, user_id, type) DO NOTHING
`
	return r.writeReaction(ctx, id, query, id, reaction.UserID, string(reaction.Type), reaction.CreatedAt)
}

// RemoveReaction drops one of a user's reactions from a live comment.
func (r *CommentRepository) RemoveReaction(ctx context.Context, id uuid.UUID, userID uuid.UUID, reactionType domain.ReactionType) (*domain.Comment, error) {
	const query = `
DELETE FROM comment_reactions
WHERE comment_id = $1 AND user_id = $2 AND type = $3
`
	return r.writeReaction(ctx, id, query, id, userID, string(reactionType))
}

// writeReaction runs stmt against the reactions of a locked live comment
// and bumps the comment's version in the same transaction.
func (r *CommentRepository) writeReaction(ctx context.Context, id uuid.UUID, stmt string, args ...any) (*domain.Comment, error) {
	const lock = `SELECT deleted_at IS NULL FROM comments WHERE id = $1 FOR UPDATE`
	const bump = `
UPDATE comments
SET version    = version + 1,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + commentColumns

	var comment *domain.Comment
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := GetDBTX(ctx, r.pool)

		var live bool
		if err := db.QueryRow(ctx, lock, id).Scan(&live); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrCommentNotFound
			}
			return fmt.Errorf("lock comment: %w", err)
		}
		if !live {
			return apperrors.ErrCommentNotFound
		}

		if _, err := db.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("write reaction: %w", err)
		}

		var err error
		comment, err = scanComment(db.QueryRow(ctx, bump, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}
