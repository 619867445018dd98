package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
)

// InstanceStore is the subset of the database used to find per-instance hooks.
type InstanceStore interface {
	GetInstance(ctx context.Context, name string) (*database.Instance, error)
}

// Targets resolves where an instance's events go: the global URL and the
// instance's own URL when enabled. Lookups are cached per instance.
type Targets struct {
	global    string
	instances InstanceStore
	cache     *cache.Cache
}

func NewTargets(global string, instances InstanceStore, ttl time.Duration) *Targets {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Targets{
		global:    global,
		instances: instances,
		cache:     cache.New(ttl, 2*ttl),
	}
}

func (t *Targets) Resolve(ctx context.Context, instance string) ([]string, error) {
	own, err := t.instanceURL(ctx, instance)
	if err != nil {
		return nil, err
	}

	urls := t.Global()
	if own != "" && own != t.global {
		urls = append(urls, own)
	}
	return urls, nil
}

// Global returns the instance-independent target, if one is configured.
func (t *Targets) Global() []string {
	if t.global == "" {
		return nil
	}
	return []string{t.global}
}

func (t *Targets) instanceURL(ctx context.Context, instance string) (string, error) {
	if t.instances == nil {
		return "", nil
	}
	if v, found := t.cache.Get(instance); found {
		return v.(string), nil
	}

	url := ""
	rec, err := t.instances.GetInstance(ctx, instance)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return "", err
	case rec.WebhookEnabled:
		url = rec.WebhookURL
	}
	t.cache.SetDefault(instance, url)
	return url, nil
}

// Invalidate forgets the cached URL, called after the instance webhook changes.
func (t *Targets) Invalidate(instance string) {
	t.cache.Delete(instance)
}
