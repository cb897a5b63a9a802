package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// TeamRepository tracks who takes part in a resource.
type TeamRepository struct {
	pool *pgxpool.Pool
}

var _ ports.TeamBackend = (*TeamRepository)(nil)

// NewTeamRepository creates a new team repository.
func NewTeamRepository(pool *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{pool: pool}
}

// UpdateUserPresence records a user's presence on a resource.
func (r *TeamRepository) UpdateUserPresence(ctx context.Context, resourceID string, userID uuid.UUID, status domain.PresenceStatus) error {
	const query = `
INSERT INTO participants (resource_id, user_id, status, last_seen)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (resource_id, user_id)
DO UPDATE SET status = EXCLUDED.status, last_seen = EXCLUDED.last_seen
`
	if _, err := GetDBTX(ctx, r.pool).Exec(ctx, query, resourceID, userID, string(status)); err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

// ListParticipants returns the users online on a resource, most recently
// seen first. Names come from the user's latest comment anywhere.
func (r *TeamRepository) ListParticipants(ctx context.Context, resourceID string) ([]domain.Participant, error) {
	const query = `
SELECT p.user_id,
       COALESCE((
           SELECT c.author_name
           FROM comments c
           WHERE c.author_id = p.user_id
           ORDER BY c.created_at DESC
           LIMIT 1
       ), '')
FROM participants p
WHERE p.resource_id = $1 AND p.status = 'online'
ORDER BY p.last_seen DESC, p.user_id
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// InviteUser records an invitation. Re-inviting an address updates its role.
func (r *TeamRepository) InviteUser(ctx context.Context, invitation domain.Invitation) error {
	const query = `
INSERT INTO invitations (resource_id, email, role, invited_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (resource_id, email)
DO UPDATE SET role = EXCLUDED.role, invited_by = EXCLUDED.invited_by, created_at = NOW()
`
	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		invitation.ResourceID,
		invitation.Email,
		invitation.Role,
		invitation.InvitedBy,
	)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

// RemoveUser drops a user from a resource.
func (r *TeamRepository) RemoveUser(ctx context.Context, resourceID string, userID uuid.UUID) error {
	const query = `DELETE FROM participants WHERE resource_id = $1 AND user_id = $2`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, resourceID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
