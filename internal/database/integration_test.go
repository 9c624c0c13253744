package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{
		"users", "password_reset_tokens", "families", "family_members", "family_invitations",
		"categories", "budget_templates", "budgets", "reminders",
		"bank_connections", "bank_accounts", "transactions", "email_jobs",
	}

	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// A second run applies nothing
	applied, err := db.RunMigrations(ctx)
	if err != nil {
		t.Fatalf("RunMigrations() second run error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("RunMigrations() second run applied %v, want none", applied)
	}
}

// TestDatabaseTransactions tests transaction support
func TestDatabaseTransactions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	errRollback := errors.New("rollback")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecReturningID(ctx, "INSERT INTO users (email, name) VALUES (?, ?)", "rollback@example.com", "Rollback"); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("WithTx() error = %v, want %v", err, errRollback)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 0 {
		t.Errorf("users after rollback = %d, want 0", count)
	}

	var id int64
	err = db.WithTx(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.ExecReturningID(ctx, "INSERT INTO users (email, name) VALUES (?, ?)", "commit@example.com", "Commit")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() commit error = %v", err)
	}
	if id == 0 {
		t.Error("ExecReturningID() returned 0")
	}
}

func TestUniqueViolationFromDriver(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "INSERT INTO users (email, name) VALUES (?, ?)", "dup@example.com", "One"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.ExecContext(ctx, "INSERT INTO users (email, name) VALUES (?, ?)", "dup@example.com", "Two")
	if err == nil {
		t.Fatal("second insert should fail")
	}
	if !db.IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
}
