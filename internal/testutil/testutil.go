// Package testutil provides database fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/database"
	"famfinance/internal/models"
)

var seq atomic.Int64

// NewTestDB opens a migrated file-backed SQLite database that is removed when the test ends
func NewTestDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// CreateUser inserts a user with a unique email
func CreateUser(t testing.TB, db *database.DB, name string) *models.User {
	t.Helper()

	email := fmt.Sprintf("user%d@example.com", seq.Add(1))
	now := time.Now().UTC()
	id, err := db.ExecReturningID(context.Background(),
		"INSERT INTO users (email, password_hash, name, created_at, updated_at) VALUES (?, '', ?, ?, ?)",
		email, name, now, now)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &models.User{ID: id, Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
}

// CreateFamily inserts a family with an active ADMIN membership for owner
func CreateFamily(t testing.TB, db *database.DB, name string, owner *models.User) int64 {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	id, err := db.ExecReturningID(ctx,
		"INSERT INTO families (name, created_by, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, owner.ID, now, now)
	if err != nil {
		t.Fatalf("failed to create family: %v", err)
	}
	AddMember(t, db, id, owner, models.RoleAdmin, now)
	return id
}

// AddMember inserts an active membership joined at joinedAt
func AddMember(t testing.TB, db *database.DB, familyID int64, user *models.User, role models.Role, joinedAt time.Time) {
	t.Helper()

	_, err := db.ExecContext(context.Background(),
		"INSERT INTO family_members (family_id, user_id, role, is_active, joined_at) VALUES (?, ?, ?, TRUE, ?)",
		familyID, user.ID, role, joinedAt.UTC())
	if err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
}

// CreateCategory inserts an EXPENSE category
func CreateCategory(t testing.TB, db *database.DB, familyID int64, name string) int64 {
	t.Helper()

	id, err := db.ExecReturningID(context.Background(),
		"INSERT INTO categories (family_id, name, kind, created_at) VALUES (?, ?, ?, ?)",
		familyID, name, models.KindExpense, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to create category: %v", err)
	}
	return id
}

// CreateTemplate inserts an active, auto-generating budget template
func CreateTemplate(t testing.TB, db *database.DB, familyID, categoryID, createdBy int64, limit string) int64 {
	t.Helper()

	now := time.Now().UTC()
	id, err := db.ExecReturningID(context.Background(), `
		INSERT INTO budget_templates (family_id, category_id, name, monthly_limit, alert_threshold, period,
			auto_generate, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, TRUE, TRUE, ?, ?, ?)`,
		familyID, categoryID, fmt.Sprintf("template-%d", seq.Add(1)), decimal.RequireFromString(limit),
		models.DefaultAlertThreshold, models.PeriodMonthly, createdBy, now, now)
	if err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	return id
}
