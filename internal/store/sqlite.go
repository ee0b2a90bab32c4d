package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/otp-relay/internal/model"
)

// SQLiteStore implements AccountStore using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ AccountStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
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

// accountRow is the database representation of a stored account.
type accountRow struct {
	ID        string    `db:"id"`
	Provider  string    `db:"provider"`
	Host      string    `db:"host"`
	Port      int       `db:"port"`
	Secure    bool      `db:"secure"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// toAccount maps a row to a keyring-backed account descriptor.
func (r accountRow) toAccount() model.Account {
	return model.Account{
		ID:       r.ID,
		Provider: r.Provider,
		Host:     r.Host,
		Port:     r.Port,
		Secure:   r.Secure,
		Username: r.Username,
		Email:    r.Email,
		Active:   r.Active,
		Keyring:  true,
	}
}

const accountColumns = `id, provider, host, port, secure, username, email, active, created_at, updated_at`

// UpsertAccount inserts or updates an account, keeping the original
// creation time so ordering stays stable across edits.
func (s *SQLiteStore) UpsertAccount(
	ctx context.Context,
	acc model.Account,
) (string, error) {
	if acc.ID == "" {
		acc.ID = "acct-" + uuid.New().String()[:8]
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, provider, host, port, secure, username, email, active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			host = excluded.host,
			port = excluded.port,
			secure = excluded.secure,
			username = excluded.username,
			email = excluded.email,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		acc.ID, acc.Provider, acc.Host, acc.Port,
		boolToInt(acc.Secure), acc.Username, acc.Email,
		boolToInt(acc.Active), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("upserting account %s: %w", acc.ID, err)
	}

	return acc.ID, nil
}

// GetAccounts retrieves all stored accounts in creation order.
func (s *SQLiteStore) GetAccounts(
	ctx context.Context,
) ([]model.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(rows))
	for _, r := range rows {
		accounts = append(accounts, r.toAccount())
	}

	return accounts, nil
}

// GetAccountByID retrieves a single account.
func (s *SQLiteStore) GetAccountByID(
	ctx context.Context,
	id string,
) (*model.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}

	acc := row.toAccount()
	return &acc, nil
}

// DeleteAccount removes an account by ID.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
