package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
)

var ErrEngineClosed = errors.New("webhook engine is shut down")

type Config struct {
	GlobalURL    string
	Secret       string
	Enabled      bool
	Workers      int
	RetryLimit   int
	QueueSize    int
	AllowPrivate bool
	Timeout      time.Duration
	Backoff      time.Duration
	CacheTTL     time.Duration
	// LookupTimeout bounds the per-event instance webhook lookup.
	LookupTimeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		GlobalURL:    env.GetEnvStringOrDefault("WEBHOOK_URL", ""),
		Secret:       env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		Enabled:      env.GetEnvBoolOrDefault("WEBHOOKS_ENABLED", true),
		Workers:      env.GetEnvPositiveIntOrDefault("WEBHOOK_WORKERS", 4),
		RetryLimit:   env.GetEnvPositiveIntOrDefault("WEBHOOK_RETRY_LIMIT", 3),
		QueueSize:    env.GetEnvPositiveIntOrDefault("WEBHOOK_QUEUE_SIZE", 1000),
		AllowPrivate: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_PRIVATE", false),
		Timeout:      env.GetEnvDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
		Backoff:      env.GetEnvDurationOrDefault("WEBHOOK_RETRY_BACKOFF", 2*time.Second),
		CacheTTL:     env.GetEnvDurationOrDefault("WEBHOOK_CACHE_TTL", 15*time.Second),

		LookupTimeout: env.GetEnvDurationOrDefault("WEBHOOK_LOOKUP_TIMEOUT", 5*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 5 * time.Second
	}
	return c
}

// DeliveryLog receives one row per finished delivery.
type DeliveryLog interface {
	RecordWebhookDelivery(d database.WebhookDelivery)
}

// Engine posts instance events to webhook subscribers from a bounded queue
// served by a fixed worker pool.
type Engine struct {
	cfg        Config
	targets    *Targets
	deliveries DeliveryLog
	httpClient *http.Client

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type deliveryTask struct {
	url   string
	event Event
}

func NewEngine(cfg Config, instances InstanceStore, deliveries DeliveryLog) *Engine {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:        cfg,
		targets:    NewTargets(cfg.GlobalURL, instances, cfg.CacheTTL),
		deliveries: deliveries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		queue:      make(chan Event, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.Enabled {
		for i := 0; i < cfg.Workers; i++ {
			e.wg.Add(1)
			go e.worker()
		}
	}
	return e
}

func (e *Engine) Enabled() bool {
	return e.cfg.Enabled
}

func (e *Engine) Targets() *Targets {
	return e.targets
}

// Notify queues an event for the instance's targets. It never blocks: targets
// are resolved by the workers, and a full queue drops the event and logs it.
func (e *Engine) Notify(instance, event string, data map[string]interface{}) {
	if !e.cfg.Enabled {
		return
	}

	evt := newEvent(instance, event, data)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.queue <- evt:
	default:
		log.Instance(instance).WithField("event", event).Warn("webhook queue full, event dropped")
		e.record(&deliveryTask{event: evt}, Result{Status: DeliveryDropped, Error: "queue full"})
	}
}

// Send delivers an event synchronously to every target and reports each result.
func (e *Engine) Send(ctx context.Context, instance, event string, data map[string]interface{}) ([]Result, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrEngineClosed
	}

	urls, err := e.targets.Resolve(ctx, instance)
	if err != nil {
		return nil, err
	}

	evt := newEvent(instance, event, data)
	results := make([]Result, 0, len(urls))
	for _, u := range urls {
		task := &deliveryTask{url: u, event: evt}
		res := e.deliver(ctx, task)
		e.record(task, res)
		results = append(results, res)
	}
	return results, nil
}

// Shutdown stops accepting events and waits for queued deliveries until ctx
// expires, then aborts the rest.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func newEvent(instance, event string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Event:     event,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for evt := range e.queue {
		for _, u := range e.resolve(evt) {
			task := &deliveryTask{url: u, event: evt}
			e.record(task, e.deliver(e.ctx, task))
		}
	}
}

// resolve finds the targets of evt within the lookup timeout. When the
// instance lookup fails the global URL still receives the event and the
// failure is written to the delivery log.
func (e *Engine) resolve(evt Event) []string {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.LookupTimeout)
	defer cancel()

	urls, err := e.targets.Resolve(ctx, evt.Instance)
	if err == nil {
		return urls
	}
	log.Instance(evt.Instance).WithField("event", evt.Event).WithError(err).Warn("webhook target lookup failed")
	e.record(&deliveryTask{event: evt}, Result{Status: DeliveryFailed, Error: "target lookup: " + err.Error()})
	return e.targets.Global()
}

func (e *Engine) deliver(ctx context.Context, task *deliveryTask) Result {
	res := Result{URL: task.url, Status: DeliveryFailed}
	logger := log.Instance(task.event.Instance).WithFields(logrus.Fields{
		"event":    task.event.Event,
		"event_id": task.event.ID,
	})

	if err := validateURL(task.url, e.cfg.AllowPrivate); err != nil {
		res.Error = err.Error()
		logger.WithError(err).Warn("webhook target rejected")
		return res
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		res.Error = err.Error()
		log.SysErr("webhook-marshal", err)
		return res
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryLimit; attempt++ {
		res.Attempts = attempt
		lastErr = e.post(ctx, task, payload)
		if lastErr == nil {
			res.Status = DeliverySuccess
			logger.WithField("attempts", attempt).Debug("webhook delivered")
			return res
		}
		if attempt == e.cfg.RetryLimit || !sleepCtx(ctx, time.Duration(attempt)*e.cfg.Backoff) {
			break
		}
	}

	res.Error = lastErr.Error()
	logger.WithField("attempts", res.Attempts).WithError(lastErr).Warn("webhook delivery failed")
	return res
}

func (e *Engine) post(ctx context.Context, task *deliveryTask, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", task.event.Event)
	req.Header.Set("X-Webhook-ID", task.event.ID)
	req.Header.Set("User-Agent", "WhatsApp-Gateway-Webhook/1.0")
	if e.cfg.Secret != "" {
		signature := Sign(payload, e.cfg.Secret)
		req.Header.Set("X-Webhook-Signature", signature)
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (e *Engine) record(task *deliveryTask, res Result) {
	if e.deliveries == nil {
		return
	}
	e.deliveries.RecordWebhookDelivery(database.WebhookDelivery{
		Instance:  task.event.Instance,
		EventID:   task.event.ID,
		EventType: task.event.Event,
		URL:       task.url,
		Status:    string(res.Status),
		Attempts:  res.Attempts,
		LastError: res.Error,
	})
}

// Sign returns the "sha256=<hex>" HMAC of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func validateURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	if allowPrivate {
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("only HTTP(S) URLs are allowed")
		}
		return nil
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("private/local network URLs are not allowed")
		}
	}
	return nil
}
