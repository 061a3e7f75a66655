package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no account row matches a (user, email) pair.
var ErrNotFound = errors.New("email account not found")

// Store is the persistence interface for linked Gmail accounts. It is
// satisfied by SQLiteStore and by test doubles.
type Store interface {
	FindAccount(ctx context.Context, userID, email string) (*EmailAccount, error)
	UpsertAccount(ctx context.Context, account EmailAccount) error
	UpdateAccessToken(ctx context.Context, userID, email, newToken string) error
	SetPrincipal(ctx context.Context, userID, email string) error
	DeleteAccount(ctx context.Context, userID, email string) error
	IsFirstAccountForUser(ctx context.Context, userID string) (bool, error)
	ListAccounts(ctx context.Context, userID string) ([]EmailAccount, error)
}

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode,
// and runs any pending schema migrations. An empty path opens an in-memory
// database.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// FindAccount returns the account row for a (user, email) pair.
func (s *SQLiteStore) FindAccount(ctx context.Context, userID, email string) (*EmailAccount, error) {
	var account EmailAccount
	err := s.db.GetContext(ctx, &account,
		"SELECT * FROM email_accounts WHERE user_id = ? AND email = ?", userID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return &account, nil
}

// UpsertAccount inserts the account or replaces the credential and status
// fields of an existing (user, email) row. The principal flag is only taken
// from the given account on insert; use SetPrincipal to change it later.
func (s *SQLiteStore) UpsertAccount(ctx context.Context, account EmailAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_accounts (user_id, email, access_token, refresh_token, status, principal)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, email) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			status = excluded.status`,
		account.UserID, account.Email, account.AccessToken, account.RefreshToken,
		account.Status, boolToInt(account.Principal),
	)
	if err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}
	return nil
}

// UpdateAccessToken persists a refreshed access token for an existing row.
func (s *SQLiteStore) UpdateAccessToken(ctx context.Context, userID, email, newToken string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE email_accounts SET access_token = ? WHERE user_id = ? AND email = ?",
		newToken, userID, email,
	)
	if err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPrincipal marks the given mailbox as the user's principal account and
// demotes every sibling in the same transaction, so at most one principal
// row exists per user at any time.
func (s *SQLiteStore) SetPrincipal(ctx context.Context, userID, email string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE email_accounts SET principal = 0 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("demoting sibling accounts: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE email_accounts SET principal = 1 WHERE user_id = ? AND email = ?",
		userID, email,
	)
	if err != nil {
		return fmt.Errorf("promoting account: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// DeleteAccount removes a linked mailbox.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, userID, email string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM email_accounts WHERE user_id = ? AND email = ?", userID, email)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IsFirstAccountForUser reports whether the user has no linked accounts yet.
// Used to decide the default principal flag on first link.
func (s *SQLiteStore) IsFirstAccountForUser(ctx context.Context, userID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM email_accounts WHERE user_id = ?", userID)
	if err != nil {
		return false, fmt.Errorf("counting accounts: %w", err)
	}
	return count == 0, nil
}

// ListAccounts returns all linked mailboxes of a user, principal first.
func (s *SQLiteStore) ListAccounts(ctx context.Context, userID string) ([]EmailAccount, error) {
	var list []EmailAccount
	err := s.db.SelectContext(ctx, &list,
		"SELECT * FROM email_accounts WHERE user_id = ? ORDER BY principal DESC, email", userID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return list, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
