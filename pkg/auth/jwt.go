package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokensDisabled = errors.New("JWT_SECRET_KEY not configured")

// TokenClaims carry a snapshot of the API key that requested the token.
type TokenClaims struct {
	KeyID   int64    `json:"key_id"`
	Name    string   `json:"name,omitempty"`
	Role    string   `json:"role"`
	Allowed []string `json:"allowed_instances,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken exchanges an authenticated principal for a short lived HS256 token.
func (f *Filter) IssueToken(p *Principal) (string, time.Time, error) {
	if f.cfg.JWTSecret == "" {
		return "", time.Time{}, ErrTokensDisabled
	}

	now := f.now()
	expires := now.Add(f.cfg.JWTTTL)
	subject := "global"
	if !p.Global {
		subject = strconv.FormatInt(p.KeyID, 10)
	}
	claims := TokenClaims{
		KeyID:   p.KeyID,
		Name:    p.Name,
		Role:    p.Role,
		Allowed: p.Allowed,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(f.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken validates a bearer token and rebuilds its principal.
func (f *Filter) ParseToken(tokenString string) (*Principal, error) {
	if f.cfg.JWTSecret == "" {
		return nil, ErrTokensDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(f.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(f.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return &Principal{
		KeyID:   claims.KeyID,
		Name:    claims.Name,
		Role:    claims.Role,
		Allowed: claims.Allowed,
		Global:  claims.Subject == "global",
		Token:   true,
	}, nil
}
