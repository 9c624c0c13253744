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

// BudgetRepository handles database operations for budgets and budget templates
type BudgetRepository struct {
	db database.DBTX
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db database.DBTX) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *BudgetRepository) WithTx(tx *database.Tx) *BudgetRepository {
	return &BudgetRepository{db: tx}
}

// IsUniqueViolation reports whether err came from a unique constraint
func (r *BudgetRepository) IsUniqueViolation(err error) bool {
	return r.db.IsUniqueViolation(err)
}

const templateColumns = `id, family_id, category_id, name, monthly_limit, alert_threshold, period,
	auto_generate, is_active, last_generated, created_by, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*models.BudgetTemplate, error) {
	t := &models.BudgetTemplate{}
	var lastGenerated sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.FamilyID,
		&t.CategoryID,
		&t.Name,
		&t.MonthlyLimit,
		&t.AlertThreshold,
		&t.Period,
		&t.AutoGenerate,
		&t.IsActive,
		&lastGenerated,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.LastGenerated = timePtr(lastGenerated)
	return t, nil
}

func (r *BudgetRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]models.BudgetTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budget templates: %w", err)
	}
	defer rows.Close()

	var templates []models.BudgetTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// CreateTemplate stores a new budget template
func (r *BudgetRepository) CreateTemplate(ctx context.Context, t *models.BudgetTemplate) error {
	t.CreatedAt = utc(t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	query := `
		INSERT INTO budget_templates (family_id, category_id, name, monthly_limit, alert_threshold, period,
			auto_generate, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, t.FamilyID, t.CategoryID, t.Name, t.MonthlyLimit, t.AlertThreshold, t.Period,
		t.AutoGenerate, t.IsActive, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create budget template: %w", err)
	}
	t.ID = id
	return nil
}

// GetTemplate retrieves a template within a family
func (r *BudgetRepository) GetTemplate(ctx context.Context, familyID, id int64) (*models.BudgetTemplate, error) {
	query := "SELECT " + templateColumns + " FROM budget_templates WHERE id = ? AND family_id = ?"
	t, err := scanTemplate(r.db.QueryRowContext(ctx, query, id, familyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget template: %w", err)
	}
	return t, nil
}

// ListTemplates returns all of a family's templates
func (r *BudgetRepository) ListTemplates(ctx context.Context, familyID int64) ([]models.BudgetTemplate, error) {
	return r.queryTemplates(ctx, "SELECT "+templateColumns+" FROM budget_templates WHERE family_id = ? ORDER BY name, id", familyID)
}

// ListGeneratingTemplates returns the templates that drive automatic generation
func (r *BudgetRepository) ListGeneratingTemplates(ctx context.Context, familyID int64) ([]models.BudgetTemplate, error) {
	query := "SELECT " + templateColumns + " FROM budget_templates WHERE family_id = ? AND is_active = TRUE AND auto_generate = TRUE ORDER BY id"
	return r.queryTemplates(ctx, query, familyID)
}

// ListFamiliesWithGeneratingTemplates returns the ids of families that have templates to generate
func (r *BudgetRepository) ListFamiliesWithGeneratingTemplates(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT family_id FROM budget_templates WHERE is_active = TRUE AND auto_generate = TRUE ORDER BY family_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query template families: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTemplate saves a template's editable fields
func (r *BudgetRepository) UpdateTemplate(ctx context.Context, t *models.BudgetTemplate) (bool, error) {
	t.UpdatedAt = utc(t.UpdatedAt)
	query := `
		UPDATE budget_templates
		SET category_id = ?, name = ?, monthly_limit = ?, alert_threshold = ?, period = ?,
			auto_generate = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND family_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, t.CategoryID, t.Name, t.MonthlyLimit, t.AlertThreshold, t.Period,
		t.AutoGenerate, t.IsActive, t.UpdatedAt, t.ID, t.FamilyID)
	if err != nil {
		return false, fmt.Errorf("failed to update budget template: %w", err)
	}
	return rowsAffected(result)
}

// DeleteTemplate removes a template; generated budgets keep their rows
func (r *BudgetRepository) DeleteTemplate(ctx context.Context, familyID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM budget_templates WHERE id = ? AND family_id = ?", id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete budget template: %w", err)
	}
	return rowsAffected(result)
}

// TouchTemplateGenerated stamps a template's last_generated time
func (r *BudgetRepository) TouchTemplateGenerated(ctx context.Context, id int64, now time.Time) error {
	now = utc(now)
	if _, err := r.db.ExecContext(ctx, "UPDATE budget_templates SET last_generated = ?, updated_at = ? WHERE id = ?", now, now, id); err != nil {
		return fmt.Errorf("failed to update template last_generated: %w", err)
	}
	return nil
}

// BudgetExistsInWindow reports whether a budget for the category starts inside [start, end]
func (r *BudgetRepository) BudgetExistsInWindow(ctx context.Context, familyID, categoryID int64, start, end time.Time) (bool, error) {
	query := "SELECT COUNT(*) FROM budgets WHERE family_id = ? AND category_id = ? AND start_date >= ? AND start_date <= ?"
	var count int
	if err := r.db.QueryRowContext(ctx, query, familyID, categoryID, utc(start), utc(end)).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check existing budget: %w", err)
	}
	return count > 0, nil
}

// CreateBudget inserts a budget. A duplicate (family, category, start_date) surfaces
// as a unique violation from the driver.
func (r *BudgetRepository) CreateBudget(ctx context.Context, b *models.Budget) error {
	b.StartDate = utc(b.StartDate)
	b.EndDate = utc(b.EndDate)
	b.CreatedAt = utc(b.CreatedAt)
	query := `
		INSERT INTO budgets (family_id, category_id, name, amount, alert_threshold, period,
			start_date, end_date, template_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, b.FamilyID, b.CategoryID, b.Name, b.Amount, b.AlertThreshold, b.Period,
		b.StartDate, b.EndDate, nullInt64(b.TemplateID), b.CreatedBy, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create budget: %w", err)
	}
	b.ID = id
	return nil
}

const budgetColumns = `id, family_id, category_id, name, amount, alert_threshold, period,
	start_date, end_date, template_id, created_by, created_at`

func scanBudget(row interface{ Scan(...any) error }) (*models.Budget, error) {
	b := &models.Budget{}
	var templateID sql.NullInt64
	err := row.Scan(
		&b.ID,
		&b.FamilyID,
		&b.CategoryID,
		&b.Name,
		&b.Amount,
		&b.AlertThreshold,
		&b.Period,
		&b.StartDate,
		&b.EndDate,
		&templateID,
		&b.CreatedBy,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.TemplateID = int64Ptr(templateID)
	return b, nil
}

// GetBudget retrieves a budget within a family
func (r *BudgetRepository) GetBudget(ctx context.Context, familyID, id int64) (*models.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx, "SELECT "+budgetColumns+" FROM budgets WHERE id = ? AND family_id = ?", id, familyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

// ListBudgetsInWindow returns budgets whose start date falls inside [start, end]
func (r *BudgetRepository) ListBudgetsInWindow(ctx context.Context, familyID int64, start, end time.Time) ([]models.Budget, error) {
	query := "SELECT " + budgetColumns + " FROM budgets WHERE family_id = ? AND start_date >= ? AND start_date <= ? ORDER BY name, id"
	rows, err := r.db.QueryContext(ctx, query, familyID, utc(start), utc(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

// CountBudgets counts budgets for a (family, category) pair
func (r *BudgetRepository) CountBudgets(ctx context.Context, familyID, categoryID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM budgets WHERE family_id = ? AND category_id = ?", familyID, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count budgets: %w", err)
	}
	return count, nil
}

// DeleteBudget removes a budget within a family
func (r *BudgetRepository) DeleteBudget(ctx context.Context, familyID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM budgets WHERE id = ? AND family_id = ?", id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete budget: %w", err)
	}
	return rowsAffected(result)
}
