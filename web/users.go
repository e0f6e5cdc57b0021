package web

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
)

// A User record. Older files carried partial records, so loading
// backfills missing fields before handing them out.
type User map[string]any

// UserStore reads and writes data/users.json, flock guarded. The file
// wraps the list as {"users": [...]} but a bare list is accepted too.
type UserStore struct {
	logger logger.Logger
	path   string
	lock   *flock.Flock

	adminEmail    string
	adminPassword string
}

// NewUserStore builds a store for the given path. SUPER_ADMIN_EMAIL and
// SUPER_ADMIN_PASSWORD configure the guaranteed admin account; when the
// password is unset a random one is generated on first creation.
func NewUserStore(l logger.Logger, path string, e *env.Environment) *UserStore {
	return &UserStore{
		logger:        l,
		path:          path,
		lock:          flock.New(path + ".lock"),
		adminEmail:    strings.TrimSpace(e.GetOrDefault("SUPER_ADMIN_EMAIL", "admin@example.com")),
		adminPassword: e.GetOrDefault("SUPER_ADMIN_PASSWORD", ""),
	}
}

// Load returns the normalized user list, persisting any backfilled fields
// and guaranteeing the super admin account exists.
func (s *UserStore) Load() ([]User, error) {
	if err := s.lock.Lock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	users, err := s.read()
	if err != nil {
		return nil, err
	}

	changed := false
	for _, u := range users {
		if normalizeUser(u) {
			changed = true
		}
	}
	users, adminAdded := s.ensureSuperAdmin(users)

	if changed || adminAdded {
		if err := s.write(users); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// Save persists the user list as-is.
func (s *UserStore) Save(users []User) error {
	if err := s.lock.Lock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}
	return s.write(users)
}

func (s *UserStore) read() ([]User, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}

	// Wrapped form first, then the legacy bare list.
	var wrapped struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		return wrapped.Users, nil
	}
	var bare []User
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	return nil, fmt.Errorf("users file %s is not valid JSON", s.path)
}

func (s *UserStore) write(users []User) error {
	if users == nil {
		users = []User{}
	}
	data, err := json.MarshalIndent(map[string]any{"users": users}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding users: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating users dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing users: %w", err)
	}
	return nil
}

// normalizeUser backfills the fields every record is expected to carry,
// reporting whether anything changed.
func normalizeUser(u User) bool {
	changed := false

	setDefault := func(key string, value any) {
		if _, ok := u[key]; !ok {
			u[key] = value
			changed = true
		}
	}
	forceList := func(key string) {
		if v, ok := u[key]; !ok || v == nil {
			u[key] = []any{}
			changed = true
		} else if _, isList := v.([]any); !isList {
			u[key] = []any{}
			changed = true
		}
	}

	if str(u["id"]) == "" {
		u["id"] = uuid.New().String()
		changed = true
	}
	setDefault("active", true)
	forceList("apis")
	setDefault("credit", 0)
	setDefault("cash", 0)
	setDefault("preferred_payment", "cash")
	setDefault("email", "")
	setDefault("phone", "")
	setDefault("contact", str(u["phone"]))
	setDefault("role", "user")
	forceList("commission")
	forceList("markup")

	return changed
}

func (s *UserStore) ensureSuperAdmin(users []User) ([]User, bool) {
	for _, u := range users {
		if strings.EqualFold(strings.TrimSpace(str(u["email"])), s.adminEmail) {
			if !strings.EqualFold(str(u["role"]), "super_admin") {
				u["role"] = "super_admin"
				return users, true
			}
			return users, false
		}
	}

	password := s.adminPassword
	if password == "" {
		password = generatePassword(12)
		s.logger.Notice("Created super admin %s with a generated password. Set SUPER_ADMIN_PASSWORD to choose one.", s.adminEmail)
	}

	admin := User{
		"id":                uuid.New().String(),
		"type":              "admin",
		"username":          "admin",
		"email":             s.adminEmail,
		"password":          password,
		"phone":             "",
		"contact":           "",
		"role":              "super_admin",
		"active":            true,
		"credit":            0,
		"cash":              0,
		"preferred_payment": "cash",
		"apis":              []any{},
		"commission":        []any{},
		"markup":            []any{},
	}
	return append(users, admin), true
}

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789@#$%&*_-+!"

func generatePassword(length int) string {
	if length < 10 {
		length = 10
	}
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			// crypto/rand failing means the platform is broken; fall back
			// to something still unguessable.
			return uuid.New().String()
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out)
}
