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

// BankRepository handles database operations for bank connections and accounts
type BankRepository struct {
	db database.DBTX
}

// NewBankRepository creates a new bank repository
func NewBankRepository(db database.DBTX) *BankRepository {
	return &BankRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *BankRepository) WithTx(tx *database.Tx) *BankRepository {
	return &BankRepository{db: tx}
}

// CreateConnection stores a linked institution
func (r *BankRepository) CreateConnection(ctx context.Context, c *models.BankConnection) error {
	c.CreatedAt = utc(c.CreatedAt)
	query := "INSERT INTO bank_connections (family_id, institution_name, access_token, created_by, created_at) VALUES (?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, c.FamilyID, c.InstitutionName, c.AccessToken, c.CreatedBy, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bank connection: %w", err)
	}
	c.ID = id
	return nil
}

const connectionColumns = "id, family_id, institution_name, access_token, last_synced_at, created_by, created_at"

func scanConnection(row interface{ Scan(...any) error }) (*models.BankConnection, error) {
	c := &models.BankConnection{}
	var lastSynced sql.NullTime
	if err := row.Scan(&c.ID, &c.FamilyID, &c.InstitutionName, &c.AccessToken, &lastSynced, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.LastSyncedAt = timePtr(lastSynced)
	return c, nil
}

// GetConnection retrieves a connection within a family
func (r *BankRepository) GetConnection(ctx context.Context, familyID, id int64) (*models.BankConnection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx, "SELECT "+connectionColumns+" FROM bank_connections WHERE id = ? AND family_id = ?", id, familyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank connection: %w", err)
	}
	return c, nil
}

// ListConnections returns a family's linked institutions
func (r *BankRepository) ListConnections(ctx context.Context, familyID int64) ([]models.BankConnection, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+connectionColumns+" FROM bank_connections WHERE family_id = ? ORDER BY id", familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank connections: %w", err)
	}
	defer rows.Close()

	var connections []models.BankConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank connection: %w", err)
		}
		connections = append(connections, *c)
	}
	return connections, rows.Err()
}

// TouchConnectionSynced records a successful sync
func (r *BankRepository) TouchConnectionSynced(ctx context.Context, id int64, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE bank_connections SET last_synced_at = ? WHERE id = ?", utc(now), id); err != nil {
		return fmt.Errorf("failed to update bank connection: %w", err)
	}
	return nil
}

// UpsertAccount updates the account with the same external id in the family or inserts it
func (r *BankRepository) UpsertAccount(ctx context.Context, a *models.BankAccount) error {
	a.UpdatedAt = utc(a.UpdatedAt)

	var id int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM bank_accounts WHERE family_id = ? AND external_id = ?", a.FamilyID, a.ExternalID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query := `
			INSERT INTO bank_accounts (family_id, connection_id, external_id, name, mask, type, balance, currency, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		id, err = r.db.ExecReturningID(ctx, query, a.FamilyID, a.ConnectionID, a.ExternalID, a.Name, a.Mask, a.Type, a.Balance, a.Currency, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert bank account: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up bank account: %w", err)
	default:
		query := "UPDATE bank_accounts SET connection_id = ?, name = ?, mask = ?, type = ?, balance = ?, currency = ?, updated_at = ? WHERE id = ?"
		if _, err := r.db.ExecContext(ctx, query, a.ConnectionID, a.Name, a.Mask, a.Type, a.Balance, a.Currency, a.UpdatedAt, id); err != nil {
			return fmt.Errorf("failed to update bank account: %w", err)
		}
	}
	a.ID = id
	return nil
}

// ListAccounts returns a family's bank accounts
func (r *BankRepository) ListAccounts(ctx context.Context, familyID int64) ([]models.BankAccount, error) {
	query := `
		SELECT id, family_id, connection_id, external_id, name, mask, type, balance, currency, updated_at
		FROM bank_accounts WHERE family_id = ? ORDER BY name, id
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.BankAccount
	for rows.Next() {
		var a models.BankAccount
		if err := rows.Scan(&a.ID, &a.FamilyID, &a.ConnectionID, &a.ExternalID, &a.Name, &a.Mask, &a.Type, &a.Balance, &a.Currency, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
