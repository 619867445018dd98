package types

import "time"

// ResponseToken is returned by the token exchange.
type ResponseToken struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// ResponseMe describes the caller.
type ResponseMe struct {
	ID               int64    `json:"id,omitempty"`
	Name             string   `json:"name"`
	Role             string   `json:"role"`
	AllowedInstances []string `json:"allowed_instances"`
	Global           bool     `json:"global,omitempty"`
	ViaToken         bool     `json:"via_token,omitempty"`
}
