package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/metrics"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/validation"
)

var errBudgetPeriodTaken = errors.New("budget exists for period")

// TemplateInput holds the editable fields of a budget template
type TemplateInput struct {
	CategoryID     int64
	Name           string
	MonthlyLimit   decimal.Decimal
	AlertThreshold int
	Period         models.BudgetPeriod
	AutoGenerate   bool
	IsActive       bool
}

// BudgetInput describes a manually created budget
type BudgetInput struct {
	CategoryID     int64
	Name           string
	Amount         decimal.Decimal
	AlertThreshold int
	Month          time.Time
}

// GenerationTotals aggregates generation across families
type GenerationTotals struct {
	Families  int `json:"families"`
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// BudgetService manages categories, budget templates and budgets
type BudgetService struct {
	db           *database.DB
	budgets      *repository.BudgetRepository
	categories   *repository.CategoryRepository
	transactions *repository.TransactionRepository
	loc          *time.Location
	logger       *log.Logger
	now          func() time.Time
}

// NewBudgetService creates a budget service whose periods are computed in loc
func NewBudgetService(db *database.DB, budgets *repository.BudgetRepository, categories *repository.CategoryRepository,
	transactions *repository.TransactionRepository, loc *time.Location, logger *log.Logger) *BudgetService {
	if loc == nil {
		loc = time.Local
	}
	return &BudgetService{
		db:           db,
		budgets:      budgets,
		categories:   categories,
		transactions: transactions,
		loc:          loc,
		logger:       logger.WithComponent(log.ComponentBudget),
		now:          time.Now,
	}
}

// Period returns the month window for month, or the current month when zero
func (s *BudgetService) Period(month time.Time) Period {
	return MonthWindow(month, s.now(), s.loc)
}

// GenerateForPeriod creates one budget per active, auto-generating template for the
// month. Each template is handled in its own transaction; a failing template is
// reported as skipped and does not stop the others.
func (s *BudgetService) GenerateForPeriod(ctx context.Context, familyID int64, month time.Time) (*models.GenerationResult, error) {
	period := s.Period(month)

	templates, err := s.budgets.ListGeneratingTemplates(ctx, familyID)
	if err != nil {
		return nil, err
	}

	result := &models.GenerationResult{
		Generated: []models.Budget{},
		Skipped:   []models.SkippedTemplate{},
	}
	for i := range templates {
		t := &templates[i]
		budget, err := s.generateFromTemplate(ctx, t, period)
		if err == nil {
			result.Generated = append(result.Generated, *budget)
			metrics.BudgetsGenerated.Inc()
			continue
		}

		reason := models.SkipReasonError
		if errors.Is(err, errBudgetPeriodTaken) || s.budgets.IsUniqueViolation(err) {
			reason = models.SkipReasonExists
		} else {
			s.logger.ErrorContext(ctx, "failed to generate budget",
				log.FieldFamilyID, familyID,
				log.FieldTemplateID, t.ID,
				log.FieldError, err)
		}
		result.Skipped = append(result.Skipped, models.SkippedTemplate{TemplateID: t.ID, Reason: reason})
		metrics.BudgetsSkipped.WithLabelValues(reason).Inc()
	}

	s.logger.InfoContext(ctx, "generated budgets",
		log.FieldFamilyID, familyID,
		log.FieldOperation, log.OpGenerate,
		"period", period.Label(),
		"generated", len(result.Generated),
		"skipped", len(result.Skipped))
	return result, nil
}

func (s *BudgetService) generateFromTemplate(ctx context.Context, t *models.BudgetTemplate, period Period) (*models.Budget, error) {
	now := s.now()
	var budget *models.Budget

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		budgets := s.budgets.WithTx(tx)

		exists, err := budgets.BudgetExistsInWindow(ctx, t.FamilyID, t.CategoryID, period.Start, period.End)
		if err != nil {
			return err
		}
		if exists {
			return errBudgetPeriodTaken
		}

		templateID := t.ID
		b := &models.Budget{
			FamilyID:       t.FamilyID,
			CategoryID:     t.CategoryID,
			Name:           t.Name,
			Amount:         t.MonthlyLimit,
			AlertThreshold: t.AlertThreshold,
			Period:         t.Period,
			StartDate:      period.Start,
			EndDate:        period.End,
			TemplateID:     &templateID,
			CreatedBy:      t.CreatedBy,
			CreatedAt:      now,
		}
		if err := budgets.CreateBudget(ctx, b); err != nil {
			return err
		}
		if err := budgets.TouchTemplateGenerated(ctx, t.ID, now); err != nil {
			return err
		}
		budget = b
		return nil
	})
	return budget, err
}

// GenerateAll runs generation for every family with generating templates
func (s *BudgetService) GenerateAll(ctx context.Context, month time.Time) (GenerationTotals, error) {
	var totals GenerationTotals

	familyIDs, err := s.budgets.ListFamiliesWithGeneratingTemplates(ctx)
	if err != nil {
		return totals, err
	}

	for _, familyID := range familyIDs {
		if ctx.Err() != nil {
			return totals, ctx.Err()
		}
		result, err := s.GenerateForPeriod(ctx, familyID, month)
		if err != nil {
			totals.Failed++
			s.logger.ErrorContext(ctx, "failed to generate family budgets", log.FieldFamilyID, familyID, log.FieldError, err)
			continue
		}
		totals.Families++
		totals.Generated += len(result.Generated)
		totals.Skipped += len(result.Skipped)
	}
	return totals, nil
}

// MissingBudgets returns the generating templates that have no budget in the month.
// Nothing is written.
func (s *BudgetService) MissingBudgets(ctx context.Context, familyID int64, month time.Time) ([]models.BudgetTemplate, error) {
	period := s.Period(month)

	templates, err := s.budgets.ListGeneratingTemplates(ctx, familyID)
	if err != nil {
		return nil, err
	}

	missing := []models.BudgetTemplate{}
	for _, t := range templates {
		exists, err := s.budgets.BudgetExistsInWindow(ctx, familyID, t.CategoryID, period.Start, period.End)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// ListBudgets returns the family's budgets starting in the month
func (s *BudgetService) ListBudgets(ctx context.Context, familyID int64, month time.Time) ([]models.Budget, error) {
	period := s.Period(month)
	return s.budgets.ListBudgetsInWindow(ctx, familyID, period.Start, period.End)
}

// Summary reports spending against each budget of the month
func (s *BudgetService) Summary(ctx context.Context, familyID int64, month time.Time) ([]models.BudgetSummary, error) {
	period := s.Period(month)

	budgets, err := s.budgets.ListBudgetsInWindow(ctx, familyID, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.BudgetSummary, 0, len(budgets))
	for _, b := range budgets {
		spent, err := s.transactions.SumExpenses(ctx, familyID, b.CategoryID, period.Start, period.Next)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.NewBudgetSummary(b, spent))
	}
	return summaries, nil
}

// CreateBudget creates a budget for one month by hand
func (s *BudgetService) CreateBudget(ctx context.Context, familyID, userID int64, in BudgetInput) (*models.Budget, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.AlertThreshold == 0 {
		in.AlertThreshold = models.DefaultAlertThreshold
	}
	if err := validation.First(
		validation.ValidateTitle(in.Name),
		validation.ValidateAmount("amount", in.Amount),
		validation.ValidateAlertThreshold(in.AlertThreshold),
	); err != nil {
		return nil, invalid(err)
	}
	if err := s.requireCategory(ctx, familyID, in.CategoryID); err != nil {
		return nil, err
	}

	period := s.Period(in.Month)
	b := &models.Budget{
		FamilyID:       familyID,
		CategoryID:     in.CategoryID,
		Name:           in.Name,
		Amount:         in.Amount,
		AlertThreshold: in.AlertThreshold,
		Period:         models.PeriodMonthly,
		StartDate:      period.Start,
		EndDate:        period.End,
		CreatedBy:      userID,
		CreatedAt:      s.now(),
	}

	exists, err := s.budgets.BudgetExistsInWindow(ctx, familyID, in.CategoryID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrBudgetExists
	}
	if err := s.budgets.CreateBudget(ctx, b); err != nil {
		if s.budgets.IsUniqueViolation(err) {
			return nil, ErrBudgetExists
		}
		return nil, err
	}
	return b, nil
}

// DeleteBudget removes a budget
func (s *BudgetService) DeleteBudget(ctx context.Context, familyID, id int64) error {
	deleted, err := s.budgets.DeleteBudget(ctx, familyID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("budget")
	}
	return nil
}

// ListTemplates returns all of a family's templates
func (s *BudgetService) ListTemplates(ctx context.Context, familyID int64) ([]models.BudgetTemplate, error) {
	return s.budgets.ListTemplates(ctx, familyID)
}

// GetTemplate returns one template
func (s *BudgetService) GetTemplate(ctx context.Context, familyID, id int64) (*models.BudgetTemplate, error) {
	t, err := s.budgets.GetTemplate(ctx, familyID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFound("budget template")
	}
	return t, nil
}

// CreateTemplate stores a new template
func (s *BudgetService) CreateTemplate(ctx context.Context, familyID, userID int64, in TemplateInput) (*models.BudgetTemplate, error) {
	if err := s.validateTemplate(ctx, familyID, &in); err != nil {
		return nil, err
	}

	t := &models.BudgetTemplate{
		FamilyID:       familyID,
		CategoryID:     in.CategoryID,
		Name:           in.Name,
		MonthlyLimit:   in.MonthlyLimit,
		AlertThreshold: in.AlertThreshold,
		Period:         in.Period,
		AutoGenerate:   in.AutoGenerate,
		IsActive:       in.IsActive,
		CreatedBy:      userID,
		CreatedAt:      s.now(),
	}
	if err := s.budgets.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "budget template created", log.FieldFamilyID, familyID, log.FieldTemplateID, t.ID)
	return t, nil
}

// UpdateTemplate replaces a template's editable fields
func (s *BudgetService) UpdateTemplate(ctx context.Context, familyID, id int64, in TemplateInput) (*models.BudgetTemplate, error) {
	t, err := s.GetTemplate(ctx, familyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateTemplate(ctx, familyID, &in); err != nil {
		return nil, err
	}

	t.CategoryID = in.CategoryID
	t.Name = in.Name
	t.MonthlyLimit = in.MonthlyLimit
	t.AlertThreshold = in.AlertThreshold
	t.Period = in.Period
	t.AutoGenerate = in.AutoGenerate
	t.IsActive = in.IsActive
	t.UpdatedAt = s.now()

	updated, err := s.budgets.UpdateTemplate(ctx, t)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, notFound("budget template")
	}
	return t, nil
}

// DeleteTemplate removes a template. Budgets generated from it are kept.
func (s *BudgetService) DeleteTemplate(ctx context.Context, familyID, id int64) error {
	deleted, err := s.budgets.DeleteTemplate(ctx, familyID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("budget template")
	}
	return nil
}

func (s *BudgetService) validateTemplate(ctx context.Context, familyID int64, in *TemplateInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.AlertThreshold == 0 {
		in.AlertThreshold = models.DefaultAlertThreshold
	}
	if in.Period == "" {
		in.Period = models.PeriodMonthly
	}
	if err := validation.First(
		validation.ValidateTitle(in.Name),
		validation.ValidateAmount("monthlyLimit", in.MonthlyLimit),
		validation.ValidateAlertThreshold(in.AlertThreshold),
	); err != nil {
		return invalid(err)
	}
	if !in.Period.Valid() {
		return invalid(validation.ValidationError{Field: "period", Message: "must be one of MONTHLY, QUARTERLY, YEARLY"})
	}
	return s.requireCategory(ctx, familyID, in.CategoryID)
}

func (s *BudgetService) requireCategory(ctx context.Context, familyID, categoryID int64) error {
	c, err := s.categories.GetCategory(ctx, familyID, categoryID)
	if err != nil {
		return err
	}
	if c == nil {
		return notFound("category")
	}
	return nil
}

// ListCategories returns a family's categories
func (s *BudgetService) ListCategories(ctx context.Context, familyID int64) ([]models.Category, error) {
	return s.categories.ListCategories(ctx, familyID)
}

// CreateCategory adds a category; names are unique within a family
func (s *BudgetService) CreateCategory(ctx context.Context, familyID int64, name string, kind models.TransactionKind) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if kind == "" {
		kind = models.KindExpense
	}
	if err := validation.ValidateTitle(name); err != nil {
		return nil, invalid(err)
	}
	if !kind.Valid() {
		return nil, invalid(validation.ValidationError{Field: "kind", Message: "must be INCOME or EXPENSE"})
	}

	c, err := s.categories.CreateCategory(ctx, familyID, name, kind, s.now())
	if err != nil {
		if s.categories.IsUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes a category
func (s *BudgetService) DeleteCategory(ctx context.Context, familyID, id int64) error {
	deleted, err := s.categories.DeleteCategory(ctx, familyID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("category")
	}
	return nil
}
