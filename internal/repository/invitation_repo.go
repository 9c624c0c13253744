package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"famfinance/internal/database"
	"famfinance/internal/models"
)

// InvitationRepository handles database operations for family invitations
type InvitationRepository struct {
	db database.DBTX
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db database.DBTX) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *InvitationRepository) WithTx(tx *database.Tx) *InvitationRepository {
	return &InvitationRepository{db: tx}
}

// CreateInvitation stores a new invitation
func (r *InvitationRepository) CreateInvitation(ctx context.Context, inv *models.FamilyInvitation) error {
	inv.ExpiresAt = utc(inv.ExpiresAt)
	inv.CreatedAt = utc(inv.CreatedAt)
	query := `
		INSERT INTO family_invitations (family_id, email, role, token, invited_by, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, inv.FamilyID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	inv.ID = id
	return nil
}

const invitationSelect = `
	SELECT i.id, i.family_id, i.email, i.role, i.token, i.invited_by, i.expires_at,
	       i.accepted_at, i.accepted_by, i.created_at, f.name, u.name
	FROM family_invitations i
	INNER JOIN families f ON f.id = i.family_id
	INNER JOIN users u ON u.id = i.invited_by
`

func scanInvitation(row interface{ Scan(...any) error }) (*models.FamilyInvitation, error) {
	inv := &models.FamilyInvitation{}
	var acceptedAt sql.NullTime
	var acceptedBy sql.NullInt64
	err := row.Scan(
		&inv.ID,
		&inv.FamilyID,
		&inv.Email,
		&inv.Role,
		&inv.Token,
		&inv.InvitedBy,
		&inv.ExpiresAt,
		&acceptedAt,
		&acceptedBy,
		&inv.CreatedAt,
		&inv.FamilyName,
		&inv.InviterName,
	)
	if err != nil {
		return nil, err
	}
	inv.AcceptedAt = timePtr(acceptedAt)
	inv.AcceptedBy = int64Ptr(acceptedBy)
	return inv, nil
}

// GetInvitationByToken retrieves an invitation by its token
func (r *InvitationRepository) GetInvitationByToken(ctx context.Context, token string) (*models.FamilyInvitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, invitationSelect+" WHERE i.token = ?", token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// HasPendingInvitation reports whether email has an unaccepted, unexpired invitation to the family
func (r *InvitationRepository) HasPendingInvitation(ctx context.Context, familyID int64, email string, now time.Time) (bool, error) {
	query := `
		SELECT COUNT(*) FROM family_invitations
		WHERE family_id = ? AND email = ? AND accepted_at IS NULL AND expires_at > ?
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, familyID, email, utc(now)).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check pending invitations: %w", err)
	}
	return count > 0, nil
}

// ListPendingInvitations returns a family's open invitations, newest first
func (r *InvitationRepository) ListPendingInvitations(ctx context.Context, familyID int64, now time.Time) ([]models.FamilyInvitation, error) {
	query := invitationSelect + `
		WHERE i.family_id = ? AND i.accepted_at IS NULL AND i.expires_at > ?
		ORDER BY i.created_at DESC, i.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, familyID, utc(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	var invitations []models.FamilyInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// MarkInvitationAccepted records acceptance. It reports false when the invitation was
// already accepted, which makes double acceptance impossible under concurrency.
func (r *InvitationRepository) MarkInvitationAccepted(ctx context.Context, id, userID int64, now time.Time) (bool, error) {
	query := "UPDATE family_invitations SET accepted_at = ?, accepted_by = ? WHERE id = ? AND accepted_at IS NULL"
	result, err := r.db.ExecContext(ctx, query, utc(now), userID, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	return rowsAffected(result)
}

// DeleteInvitation revokes a pending invitation within a family
func (r *InvitationRepository) DeleteInvitation(ctx context.Context, familyID, id int64) (bool, error) {
	query := "DELETE FROM family_invitations WHERE id = ? AND family_id = ? AND accepted_at IS NULL"
	result, err := r.db.ExecContext(ctx, query, id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete invitation: %w", err)
	}
	return rowsAffected(result)
}

// DeleteExpiredInvitations removes expired invitations that were never accepted
func (r *InvitationRepository) DeleteExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM family_invitations WHERE accepted_at IS NULL AND expires_at < ?", utc(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return result.RowsAffected()
}
