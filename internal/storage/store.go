package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// CredentialKey is the settings key under which the vision API key is kept.
const CredentialKey = "visionApiKey"

// ErrMissingCredential is returned when no API key has been configured.
var ErrMissingCredential = errors.New("Missing API key. Set it in the extension options.")

// CredentialStore persists the single user-supplied API credential.
type CredentialStore interface {
	// GetCredential returns the stored key, or "" when none is configured.
	GetCredential(ctx context.Context) (string, error)
	// SetCredential overwrites the stored key.
	SetCredential(ctx context.Context, value string) error
	Close() error
}

// SQLiteStore implements CredentialStore on a small encrypted settings table.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (or creates) the settings database at dbPath.
// Values are encrypted with encryptionKey, see DeriveKey.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent across queries.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("dbPath", dbPath).Msg("could not restrict database permissions")
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		encrypted_value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

// Get returns the decrypted value for name, or "" if it isn't set.
func (s *SQLiteStore) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	err := s.db.QueryRowContext(ctx,
		"SELECT encrypted_value FROM settings WHERE name = ?", name,
	).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query setting %s: %w", name, err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey, name)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt setting %s: %w", name, err)
	}
	return string(plaintext), nil
}

// Set stores value under name, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := Encrypt([]byte(value), s.encryptionKey, name)
	if err != nil {
		return fmt.Errorf("failed to encrypt setting %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (name, encrypted_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			updated_at = excluded.updated_at
	`, name, encrypted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", name, err)
	}
	return nil
}

// Delete removes name. Deleting a missing setting is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", name, err)
	}
	return nil
}

// ClearCredential removes the stored key.
func (s *SQLiteStore) ClearCredential(ctx context.Context) error {
	return s.Delete(ctx, CredentialKey)
}

// GetCredential implements CredentialStore.
func (s *SQLiteStore) GetCredential(ctx context.Context) (string, error) {
	return s.Get(ctx, CredentialKey)
}

// SetCredential implements CredentialStore.
func (s *SQLiteStore) SetCredential(ctx context.Context, value string) error {
	return s.Set(ctx, CredentialKey, value)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HasCredential reports whether a non-empty credential is stored.
func HasCredential(ctx context.Context, store CredentialStore) (bool, error) {
	value, err := store.GetCredential(ctx)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(value) != "", nil
}

// RequireCredential returns the stored credential or ErrMissingCredential.
func RequireCredential(ctx context.Context, store CredentialStore) (string, error) {
	value, err := store.GetCredential(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", ErrMissingCredential
	}
	return value, nil
}
