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

// CategoryRepository handles database operations for categories
type CategoryRepository struct {
	db database.DBTX
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db database.DBTX) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// IsUniqueViolation reports whether err came from a unique constraint
func (r *CategoryRepository) IsUniqueViolation(err error) bool {
	return r.db.IsUniqueViolation(err)
}

// CreateCategory inserts a category; names are unique per family
func (r *CategoryRepository) CreateCategory(ctx context.Context, familyID int64, name string, kind models.TransactionKind, now time.Time) (*models.Category, error) {
	now = utc(now)
	id, err := r.db.ExecReturningID(ctx, "INSERT INTO categories (family_id, name, kind, created_at) VALUES (?, ?, ?, ?)", familyID, name, kind, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &models.Category{ID: id, FamilyID: familyID, Name: name, Kind: kind, CreatedAt: now}, nil
}

// GetCategory retrieves a category within a family
func (r *CategoryRepository) GetCategory(ctx context.Context, familyID, id int64) (*models.Category, error) {
	c := &models.Category{}
	err := r.db.QueryRowContext(ctx, "SELECT id, family_id, name, kind, created_at FROM categories WHERE id = ? AND family_id = ?", id, familyID).
		Scan(&c.ID, &c.FamilyID, &c.Name, &c.Kind, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// ListCategories returns a family's categories by name
func (r *CategoryRepository) ListCategories(ctx context.Context, familyID int64) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, family_id, name, kind, created_at FROM categories WHERE family_id = ? ORDER BY name", familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.FamilyID, &c.Name, &c.Kind, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category within a family
func (r *CategoryRepository) DeleteCategory(ctx context.Context, familyID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ? AND family_id = ?", id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}
	return rowsAffected(result)
}
