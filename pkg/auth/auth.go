package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
)

var (
	ErrMissingCredential = errors.New("missing API key")
	ErrInvalidCredential = errors.New("invalid API key")
	ErrInactiveKey       = errors.New("API key is inactive")
	ErrExpiredKey        = errors.New("API key has expired")
)

const principalLocal = "principal"

type Config struct {
	// GlobalKey is a built-in privileged credential, read from GLOBAL_API_KEY.
	GlobalKey string

	JWTSecret string
	JWTTTL    time.Duration

	CacheTTL      time.Duration
	RatePerMinute int
}

func ConfigFromEnv() Config {
	return Config{
		GlobalKey:     env.GetEnvStringOrDefault("GLOBAL_API_KEY", ""),
		JWTSecret:     env.GetEnvStringOrDefault("JWT_SECRET_KEY", ""),
		JWTTTL:        env.GetEnvDurationOrDefault("JWT_TTL", time.Hour),
		CacheTTL:      env.GetEnvDurationOrDefault("AUTH_CACHE_TTL", 30*time.Second),
		RatePerMinute: env.GetEnvIntOrDefault("AUTH_RATE_LIMIT_PER_MINUTE", 0),
	}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	KeyID   int64    `json:"id"`
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Allowed []string `json:"allowed_instances"`
	Global  bool     `json:"global,omitempty"`
	Token   bool     `json:"-"`
}

func (p *Principal) Privileged() bool {
	return p != nil && p.Role == database.RoleSuperAdmin
}

// CanAccess reports whether the principal may act on instance.
func (p *Principal) CanAccess(instance string) bool {
	if p == nil {
		return false
	}
	if p.Privileged() {
		return true
	}
	for _, allowed := range p.Allowed {
		if allowed == instance {
			return true
		}
	}
	return false
}

func (p *Principal) limiterKey() string {
	if p.Global {
		return "global"
	}
	return strconv.FormatInt(p.KeyID, 10)
}

// KeyStore looks API keys up by the hex SHA-256 of their plaintext.
type KeyStore interface {
	FindAPIKeyByHash(ctx context.Context, hash string) (*database.APIKey, error)
}

// Toucher records key usage. Calls must not block.
type Toucher interface {
	TouchAPIKey(id int64)
}

// Filter authenticates requests by API key or bearer token and scopes them to
// the instances the key allows.
type Filter struct {
	cfg   Config
	keys  KeyStore
	touch Toucher

	principals *cache.Cache
	limiters   *cache.Cache

	now func() time.Time
}

func NewFilter(cfg Config, keys KeyStore, touch Toucher) *Filter {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = time.Hour
	}
	return &Filter{
		cfg:        cfg,
		keys:       keys,
		touch:      touch,
		principals: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		limiters:   cache.New(10*time.Minute, 20*time.Minute),
		now:        time.Now,
	}
}

// TokensEnabled reports whether bearer tokens can be issued.
func (f *Filter) TokensEnabled() bool {
	return f.cfg.JWTSecret != ""
}

// Invalidate drops a cached principal. Called when a key is changed or deleted.
func (f *Filter) Invalidate(keyHash string) {
	f.principals.Delete(keyHash)
}

func (f *Filter) InvalidateAll() {
	f.principals.Flush()
}

// Resolve authenticates a plaintext API key.
func (f *Filter) Resolve(ctx context.Context, key string) (*Principal, error) {
	if key == "" {
		return nil, ErrMissingCredential
	}
	if f.cfg.GlobalKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(f.cfg.GlobalKey)) == 1 {
		return &Principal{Name: "global", Role: database.RoleSuperAdmin, Global: true}, nil
	}

	hash := database.HashKey(key)
	if cached, found := f.principals.Get(hash); found {
		p := cached.(*Principal)
		f.touchKey(p)
		return p, nil
	}
	if f.keys == nil {
		return nil, ErrInvalidCredential
	}

	record, err := f.keys.FindAPIKeyByHash(ctx, hash)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	if !record.Active {
		return nil, ErrInactiveKey
	}
	if record.Expired(f.now()) {
		return nil, ErrExpiredKey
	}

	p := &Principal{
		KeyID:   record.ID,
		Name:    record.Name,
		Role:    record.Role,
		Allowed: append([]string(nil), record.AllowedInstances...),
	}
	ttl := cache.DefaultExpiration
	if record.ExpiresAt != nil {
		if left := record.ExpiresAt.Sub(f.now()); left < f.cfg.CacheTTL {
			ttl = left
		}
	}
	f.principals.Set(hash, p, ttl)
	f.touchKey(p)
	return p, nil
}

func (f *Filter) touchKey(p *Principal) {
	if f.touch != nil && !p.Global {
		f.touch.TouchAPIKey(p.KeyID)
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *fiber.Ctx) *Principal {
	p, _ := c.Locals(principalLocal).(*Principal)
	return p
}
