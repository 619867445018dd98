package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
)

type VersionStatus struct {
	CurrentVersion store.WAVersionContainer `json:"current_version"`
	LastRefreshed  *time.Time               `json:"last_refreshed,omitempty"`
	LastError      string                   `json:"last_error,omitempty"`
}

// VersionRefresher keeps the advertised WhatsApp Web version current. Refreshes
// are collapsed with singleflight and throttled by a minimum interval.
type VersionRefresher struct {
	minInterval time.Duration
	fetch       func(ctx context.Context) (*store.WAVersionContainer, error)
	group       singleflight.Group

	mu            sync.RWMutex
	lastRefreshed *time.Time
	lastError     string
}

func NewVersionRefresher() *VersionRefresher {
	return &VersionRefresher{
		minInterval: env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", 10*time.Minute),
		fetch: func(ctx context.Context) (*store.WAVersionContainer, error) {
			return whatsmeow.GetLatestVersion(ctx, &http.Client{Timeout: 15 * time.Second})
		},
	}
}

func (v *VersionRefresher) Status() VersionStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var last *time.Time
	if v.lastRefreshed != nil {
		t := *v.lastRefreshed
		last = &t
	}
	return VersionStatus{
		CurrentVersion: store.GetWAVersion(),
		LastRefreshed:  last,
		LastError:      v.lastError,
	}
}

// Refresh fetches and applies the latest version. Without force it is a no-op
// inside the minimum interval; the bool reports whether a fetch happened.
func (v *VersionRefresher) Refresh(ctx context.Context, force bool) (VersionStatus, bool, error) {
	if !force && v.minInterval > 0 {
		v.mu.RLock()
		last := v.lastRefreshed
		v.mu.RUnlock()
		if last != nil && time.Since(*last) < v.minInterval {
			return v.Status(), false, nil
		}
	}

	_, err, _ := v.group.Do("refresh", func() (interface{}, error) {
		latest, err := v.fetch(ctx)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}
		if err == nil {
			store.SetWAVersion(*latest)
		}

		v.mu.Lock()
		now := time.Now()
		v.lastRefreshed = &now
		v.lastError = ""
		if err != nil {
			v.lastError = err.Error()
		}
		v.mu.Unlock()
		return nil, err
	})
	return v.Status(), true, err
}
