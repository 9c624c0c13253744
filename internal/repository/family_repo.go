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

// FamilyRepository handles database operations for families and memberships
type FamilyRepository struct {
	db database.DBTX
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db database.DBTX) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *FamilyRepository) WithTx(tx *database.Tx) *FamilyRepository {
	return &FamilyRepository{db: tx}
}

// IsUniqueViolation reports whether err came from a unique constraint
func (r *FamilyRepository) IsUniqueViolation(err error) bool {
	return r.db.IsUniqueViolation(err)
}

// CreateFamily inserts a family row. defaultForUserID marks a lazily provisioned
// default family; the column is unique so a user gets at most one.
func (r *FamilyRepository) CreateFamily(ctx context.Context, name string, createdBy int64, defaultForUserID *int64, now time.Time) (*models.Family, error) {
	now = utc(now)
	query := `
		INSERT INTO families (name, created_by, default_for_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, name, createdBy, nullInt64(defaultForUserID), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	return &models.Family{
		ID:               id,
		Name:             name,
		CreatedBy:        createdBy,
		DefaultForUserID: defaultForUserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

const familyColumns = "id, name, created_by, default_for_user_id, created_at, updated_at"

func scanFamily(row interface{ Scan(...any) error }) (*models.Family, error) {
	family := &models.Family{}
	var defaultFor sql.NullInt64
	if err := row.Scan(&family.ID, &family.Name, &family.CreatedBy, &defaultFor, &family.CreatedAt, &family.UpdatedAt); err != nil {
		return nil, err
	}
	family.DefaultForUserID = int64Ptr(defaultFor)
	return family, nil
}

// GetFamilyByID retrieves a family by ID
func (r *FamilyRepository) GetFamilyByID(ctx context.Context, familyID int64) (*models.Family, error) {
	family, err := scanFamily(r.db.QueryRowContext(ctx, "SELECT "+familyColumns+" FROM families WHERE id = ?", familyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return family, nil
}

// GetDefaultFamily retrieves the family provisioned by default for a user
func (r *FamilyRepository) GetDefaultFamily(ctx context.Context, userID int64) (*models.Family, error) {
	family, err := scanFamily(r.db.QueryRowContext(ctx, "SELECT "+familyColumns+" FROM families WHERE default_for_user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default family: %w", err)
	}
	return family, nil
}

// ListActiveMemberships returns the user's active memberships, oldest first.
// Ties on joined_at are broken by membership id so the order is total.
func (r *FamilyRepository) ListActiveMemberships(ctx context.Context, userID int64) ([]models.FamilyMembership, error) {
	query := `
		SELECT f.id, f.name, f.created_by, f.default_for_user_id, f.created_at, f.updated_at, fm.role, fm.joined_at
		FROM family_members fm
		INNER JOIN families f ON f.id = fm.family_id
		WHERE fm.user_id = ? AND fm.is_active = TRUE
		ORDER BY fm.joined_at ASC, fm.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.FamilyMembership
	for rows.Next() {
		var m models.FamilyMembership
		var defaultFor sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedBy, &defaultFor, &m.CreatedAt, &m.UpdatedAt, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.DefaultForUserID = int64Ptr(defaultFor)
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// GetMembership returns the membership row for (family, user), active or not
func (r *FamilyRepository) GetMembership(ctx context.Context, familyID, userID int64) (*models.FamilyMember, error) {
	query := `
		SELECT id, family_id, user_id, role, is_active, joined_at, left_at
		FROM family_members
		WHERE family_id = ? AND user_id = ?
	`
	m := &models.FamilyMember{}
	var leftAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, familyID, userID).Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.IsActive, &m.JoinedAt, &leftAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.LeftAt = timePtr(leftAt)
	return m, nil
}

// AddMember creates an active membership, or reactivates the existing row for a user
// who left earlier. There is only ever one row per (family, user).
func (r *FamilyRepository) AddMember(ctx context.Context, familyID, userID int64, role models.Role, now time.Time) error {
	now = utc(now)
	result, err := r.db.ExecContext(ctx, `
		UPDATE family_members SET role = ?, is_active = TRUE, joined_at = ?, left_at = NULL
		WHERE family_id = ? AND user_id = ? AND is_active = FALSE
	`, role, now, familyID, userID)
	if err != nil {
		return fmt.Errorf("failed to reactivate family member: %w", err)
	}
	if reactivated, err := rowsAffected(result); err != nil {
		return fmt.Errorf("failed to reactivate family member: %w", err)
	} else if reactivated {
		return nil
	}

	query := "INSERT INTO family_members (family_id, user_id, role, is_active, joined_at) VALUES (?, ?, ?, TRUE, ?)"
	if _, err := r.db.ExecContext(ctx, query, familyID, userID, role, now); err != nil {
		return fmt.Errorf("failed to add family member: %w", err)
	}
	return nil
}

// ListMembers returns a family's active members with their profiles
func (r *FamilyRepository) ListMembers(ctx context.Context, familyID int64) ([]models.MemberWithUser, error) {
	query := `
		SELECT fm.id, fm.family_id, fm.user_id, fm.role, fm.is_active, fm.joined_at, u.name, u.email
		FROM family_members fm
		INNER JOIN users u ON u.id = fm.user_id
		WHERE fm.family_id = ? AND fm.is_active = TRUE
		ORDER BY fm.joined_at ASC, fm.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []models.MemberWithUser
	for rows.Next() {
		var m models.MemberWithUser
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.IsActive, &m.JoinedAt, &m.Name, &m.Email); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// IsActiveMemberEmail reports whether email belongs to an active member of the family
func (r *FamilyRepository) IsActiveMemberEmail(ctx context.Context, familyID int64, email string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM family_members fm
		INNER JOIN users u ON u.id = fm.user_id
		WHERE fm.family_id = ? AND fm.is_active = TRUE AND u.email = ?
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, familyID, email).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check family membership: %w", err)
	}
	return count > 0, nil
}

// CountActiveAdmins counts a family's active ADMIN members
func (r *FamilyRepository) CountActiveAdmins(ctx context.Context, familyID int64) (int, error) {
	query := "SELECT COUNT(*) FROM family_members WHERE family_id = ? AND role = ? AND is_active = TRUE"
	var count int
	if err := r.db.QueryRowContext(ctx, query, familyID, models.RoleAdmin).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// UpdateRole changes an active member's role
func (r *FamilyRepository) UpdateRole(ctx context.Context, familyID, userID int64, role models.Role) (bool, error) {
	query := "UPDATE family_members SET role = ? WHERE family_id = ? AND user_id = ? AND is_active = TRUE"
	result, err := r.db.ExecContext(ctx, query, role, familyID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to update role: %w", err)
	}
	return rowsAffected(result)
}

// DeactivateMember soft-deletes an active membership
func (r *FamilyRepository) DeactivateMember(ctx context.Context, familyID, userID int64, now time.Time) (bool, error) {
	query := "UPDATE family_members SET is_active = FALSE, left_at = ? WHERE family_id = ? AND user_id = ? AND is_active = TRUE"
	result, err := r.db.ExecContext(ctx, query, utc(now), familyID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate member: %w", err)
	}
	return rowsAffected(result)
}

// RenameFamily updates a family's name
func (r *FamilyRepository) RenameFamily(ctx context.Context, familyID int64, name string, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE families SET name = ?, updated_at = ? WHERE id = ?", name, utc(now), familyID); err != nil {
		return fmt.Errorf("failed to rename family: %w", err)
	}
	return nil
}

// ReleaseDefaultFamily detaches a family from the user it was provisioned for, so
// that user's next provisioning creates a new family
func (r *FamilyRepository) ReleaseDefaultFamily(ctx context.Context, familyID int64, now time.Time) error {
	query := "UPDATE families SET default_for_user_id = NULL, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, utc(now), familyID); err != nil {
		return fmt.Errorf("failed to release default family: %w", err)
	}
	return nil
}
