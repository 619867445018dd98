package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	userKeyPrefix       = "nxus_"
	superAdminKeyPrefix = "nxsa_"
	displayPrefixLength = 8
)

var ErrInvalidValidity = errors.New("validity must be one of 30, 90, 180, 365 days or empty")

const apiKeyColumns = `id, key_hash, key_prefix, name, role, active, allowed_instances, created_at, expires_at, last_used_at, total_requests`

// HashKey returns the hex SHA-256 of a plaintext credential. Only the hash is stored.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateKey creates a plaintext key for the role: "nxsa_" for super admins,
// "nxus_" otherwise, followed by 24 random bytes in hex.
func GenerateKey(role string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	prefix := userKeyPrefix
	if role == RoleSuperAdmin {
		prefix = superAdminKeyPrefix
	}
	return prefix + hex.EncodeToString(buf), nil
}

// DisplayPrefix is the part of a key that is safe to show after creation.
func DisplayPrefix(key string) string {
	if len(key) <= displayPrefixLength {
		return key
	}
	return key[:displayPrefixLength]
}

// ParseValidity maps "30", "90", "180", "365" to an expiry from now. An empty
// value, "0" or "never" means the key does not expire.
func ParseValidity(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case "", "0", "never":
		return nil, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return nil, ErrInvalidValidity
	}
	switch days {
	case 30, 90, 180, 365:
		expires := now.AddDate(0, 0, days)
		return &expires, nil
	}
	return nil, ErrInvalidValidity
}

func NormalizeRole(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", RoleUser, "standard":
		return RoleUser, nil
	case RoleSuperAdmin, "privileged", "admin":
		return RoleSuperAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

type NewAPIKey struct {
	Name             string
	Role             string
	AllowedInstances []string
	ExpiresAt        *time.Time
}

// CreateAPIKey stores a new key and returns it together with the plaintext, which
// is never retrievable again.
func (db *DB) CreateAPIKey(ctx context.Context, in NewAPIKey) (*APIKey, string, error) {
	role, err := NormalizeRole(in.Role)
	if err != nil {
		return nil, "", err
	}
	plain, err := GenerateKey(role)
	if err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	allowed := in.AllowedInstances
	if allowed == nil {
		allowed = []string{}
	}

	var key APIKey
	err = db.x.GetContext(ctx, &key, `
		INSERT INTO gw_api_keys (key_hash, key_prefix, name, role, allowed_instances, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+apiKeyColumns,
		HashKey(plain), DisplayPrefix(plain), in.Name, role, pq.StringArray(allowed), in.ExpiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}
	return &key, plain, nil
}

func (db *DB) FindAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var key APIKey
	err := db.x.GetContext(ctx, &key, `SELECT `+apiKeyColumns+` FROM gw_api_keys WHERE key_hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (db *DB) GetAPIKey(ctx context.Context, id int64) (*APIKey, error) {
	var key APIKey
	err := db.x.GetContext(ctx, &key, `SELECT `+apiKeyColumns+` FROM gw_api_keys WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (db *DB) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	keys := []APIKey{}
	err := db.x.SelectContext(ctx, &keys, `SELECT `+apiKeyColumns+` FROM gw_api_keys ORDER BY created_at DESC`)
	return keys, err
}

// APIKeyUpdate is a partial update; nil fields are left untouched.
type APIKeyUpdate struct {
	Name             *string
	Active           *bool
	AllowedInstances []string
	SetAllowed       bool
	ExpiresAt        *time.Time
	SetExpiry        bool
}

func (u APIKeyUpdate) empty() bool {
	return u.Name == nil && u.Active == nil && !u.SetAllowed && !u.SetExpiry
}

func (db *DB) UpdateAPIKey(ctx context.Context, id int64, u APIKeyUpdate) (*APIKey, error) {
	if u.empty() {
		return db.GetAPIKey(ctx, id)
	}

	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Active != nil {
		add("active", *u.Active)
	}
	if u.SetAllowed {
		allowed := u.AllowedInstances
		if allowed == nil {
			allowed = []string{}
		}
		add("allowed_instances", pq.StringArray(allowed))
	}
	if u.SetExpiry {
		add("expires_at", u.ExpiresAt)
	}
	args = append(args, id)

	var key APIKey
	query := fmt.Sprintf(`UPDATE gw_api_keys SET %s WHERE id = $%d RETURNING `+apiKeyColumns, strings.Join(sets, ", "), len(args))
	err := db.x.GetContext(ctx, &key, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update api key: %w", err)
	}
	return &key, nil
}

func (db *DB) DeleteAPIKey(ctx context.Context, id int64) (*APIKey, error) {
	var key APIKey
	err := db.x.GetContext(ctx, &key, `DELETE FROM gw_api_keys WHERE id = $1 RETURNING `+apiKeyColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// TouchAPIKey records one use of the key.
func (db *DB) TouchAPIKey(ctx context.Context, id int64) error {
	_, err := db.x.ExecContext(ctx, `
		UPDATE gw_api_keys SET last_used_at = NOW(), total_requests = total_requests + 1 WHERE id = $1
	`, id)
	return err
}
