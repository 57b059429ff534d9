package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-key-32-bytes-long-ok-test!!")

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", testKey)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_GetCredential_Absent(t *testing.T) {
	store := newTestStore(t)

	value, err := store.GetCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestSQLiteStore_SetCredential_Overwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCredential(ctx, "first"))
	require.NoError(t, store.SetCredential(ctx, "second"))

	value, err := store.GetCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestSQLiteStore_ValuesAreEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCredential(ctx, "AIza-secret"))

	var raw string
	err := store.db.QueryRow("SELECT encrypted_value FROM settings WHERE name = ?", CredentialKey).Scan(&raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "AIza-secret")
}

func TestSQLiteStore_WrongKeyFailsToDecrypt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath, testKey)
	require.NoError(t, err)
	require.NoError(t, store.SetCredential(ctx, "secret"))
	require.NoError(t, store.Close())

	other, err := NewSQLiteStore(dbPath, []byte("another-key-32-bytes-long-xxxxx!"))
	require.NoError(t, err)
	defer other.Close()

	_, err = other.GetCredential(ctx)
	assert.Error(t, err)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCredential(ctx, "secret"))
	require.NoError(t, store.Delete(ctx, CredentialKey))
	require.NoError(t, store.Delete(ctx, CredentialKey))

	value, err := store.GetCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestHasCredential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	has, err := HasCredential(ctx, store)
	require.NoError(t, err)
	assert.False(t, has, "absent credential")

	require.NoError(t, store.SetCredential(ctx, ""))
	has, err = HasCredential(ctx, store)
	require.NoError(t, err)
	assert.False(t, has, "empty credential")

	require.NoError(t, store.SetCredential(ctx, "key"))
	has, err = HasCredential(ctx, store)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRequireCredential_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := RequireCredential(context.Background(), store)
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestEncryptDecrypt_BoundToName(t *testing.T) {
	sealed, err := Encrypt([]byte("value"), testKey, "a")
	require.NoError(t, err)

	plaintext, err := Decrypt(sealed, testKey, "a")
	require.NoError(t, err)
	assert.Equal(t, "value", string(plaintext))

	_, err = Decrypt(sealed, testKey, "b")
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey("passphrase")
	require.NoError(t, err)
	k2, err := DeriveKey("passphrase")
	require.NoError(t, err)
	k3, err := DeriveKey("other")
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	_, err = DeriveKey("   ")
	assert.Error(t, err)
}
