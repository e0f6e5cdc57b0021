package web

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
)

func newTestUserStore(t *testing.T, environ map[string]string) (*UserStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	return NewUserStore(logger.Discard, path, env.FromMap(environ)), path
}

func TestLoadCreatesSuperAdmin(t *testing.T) {
	t.Parallel()

	store, path := newTestUserStore(t, map[string]string{
		"SUPER_ADMIN_EMAIL":    "ops@example.test",
		"SUPER_ADMIN_PASSWORD": "hunter2hunter2",
	})

	users, err := store.Load()
	require.NoError(t, err)
	require.Len(t, users, 1)

	admin := users[0]
	assert.Equal(t, "ops@example.test", admin["email"])
	assert.Equal(t, "super_admin", admin["role"])
	assert.Equal(t, "hunter2hunter2", admin["password"])
	assert.Equal(t, true, admin["active"])
	assert.NotEmpty(t, admin["id"])

	// Persisted in the wrapped form.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var wrapped map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &wrapped))
	require.Len(t, wrapped["users"], 1)
}

func TestLoadGeneratesPasswordWhenUnset(t *testing.T) {
	t.Parallel()

	store, _ := newTestUserStore(t, map[string]string{"SUPER_ADMIN_EMAIL": "ops@example.test"})
	users, err := store.Load()
	require.NoError(t, err)
	require.Len(t, users, 1)

	pw, _ := users[0]["password"].(string)
	assert.GreaterOrEqual(t, len(pw), 10)
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	t.Parallel()

	store, path := newTestUserStore(t, map[string]string{
		"SUPER_ADMIN_EMAIL":    "ops@example.test",
		"SUPER_ADMIN_PASSWORD": "pw-pw-pw-pw",
	})
	seed := `{"users":[{"username":"agent1","phone":"0750","commission":"broken"}]}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	users, err := store.Load()
	require.NoError(t, err)
	require.Len(t, users, 2)

	u := users[0]
	assert.Equal(t, "agent1", u["username"])
	assert.NotEmpty(t, u["id"])
	assert.Equal(t, true, u["active"])
	assert.Equal(t, []any{}, u["apis"])
	assert.EqualValues(t, 0, u["credit"])
	assert.EqualValues(t, 0, u["cash"])
	assert.Equal(t, "cash", u["preferred_payment"])
	assert.Equal(t, "", u["email"])
	assert.Equal(t, "0750", u["contact"])
	assert.Equal(t, "user", u["role"])
	assert.Equal(t, []any{}, u["commission"])
	assert.Equal(t, []any{}, u["markup"])
}

func TestLoadAcceptsBareList(t *testing.T) {
	t.Parallel()

	store, path := newTestUserStore(t, map[string]string{
		"SUPER_ADMIN_EMAIL":    "ops@example.test",
		"SUPER_ADMIN_PASSWORD": "pw-pw-pw-pw",
	})
	require.NoError(t, os.WriteFile(path, []byte(`[{"username":"legacy"}]`), 0o600))

	users, err := store.Load()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "legacy", users[0]["username"])
}

func TestLoadPromotesExistingAdmin(t *testing.T) {
	t.Parallel()

	store, path := newTestUserStore(t, map[string]string{
		"SUPER_ADMIN_EMAIL":    "ops@example.test",
		"SUPER_ADMIN_PASSWORD": "ignored-existing",
	})
	seed := `{"users":[{"id":"u1","email":"OPS@example.test","password":"keepme","role":"user"}]}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	users, err := store.Load()
	require.NoError(t, err)
	require.Len(t, users, 1)

	// Promoted, never duplicated, password untouched.
	assert.Equal(t, "super_admin", users[0]["role"])
	assert.Equal(t, "keepme", users[0]["password"])
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	t.Parallel()

	store, path := newTestUserStore(t, map[string]string{"SUPER_ADMIN_EMAIL": "ops@example.test"})
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := store.Load()
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestUserStore(t, map[string]string{
		"SUPER_ADMIN_EMAIL":    "ops@example.test",
		"SUPER_ADMIN_PASSWORD": "pw-pw-pw-pw",
	})

	users, err := store.Load()
	require.NoError(t, err)

	users[0]["cash"] = 12500
	require.NoError(t, store.Save(users))

	again, err := store.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 12500, again[0]["cash"])
}

func TestGeneratePasswordLength(t *testing.T) {
	t.Parallel()

	assert.Len(t, generatePassword(12), 12)
	assert.Len(t, generatePassword(3), 10)
	assert.NotEqual(t, generatePassword(12), generatePassword(12))
}
