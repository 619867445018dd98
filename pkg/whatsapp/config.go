package whatsapp

import (
	"time"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
)

const (
	defaultMaxAttempts    = 10
	defaultReconnectDelay = 2 * time.Second
	defaultSyncDelay      = 3 * time.Second
	defaultStartWait      = 15 * time.Second
	defaultPairWait       = 5 * time.Second

	// MaxSendDelay caps the composing pause a caller may request before a send.
	MaxSendDelay = 30 * time.Second
)

type Config struct {
	ProxyURL string

	MaxAttempts    int
	ReconnectDelay time.Duration
	SyncDelay      time.Duration
	StartWait      time.Duration
	PairWait       time.Duration

	RestoreConcurrency int
	RestoreJitterMax   time.Duration

	Image ImageOptions
}

func ConfigFromEnv() Config {
	return Config{
		ProxyURL: env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),

		MaxAttempts:    env.GetEnvPositiveIntOrDefault("WHATSAPP_RECONNECT_MAX_ATTEMPTS", defaultMaxAttempts),
		ReconnectDelay: env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_DELAY", defaultReconnectDelay),
		SyncDelay:      env.GetEnvDurationOrDefault("WHATSAPP_SYNC_DELAY", defaultSyncDelay),
		StartWait:      env.GetEnvDurationOrDefault("WHATSAPP_START_WAIT", defaultStartWait),
		PairWait:       env.GetEnvDurationOrDefault("WHATSAPP_PAIR_WAIT", defaultPairWait),

		RestoreConcurrency: env.GetEnvPositiveIntOrDefault("WHATSAPP_STARTUP_RESTORE_CONCURRENCY", 10),
		RestoreJitterMax:   env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_RESTORE_JITTER_MAX", 2*time.Second),

		Image: ImageOptions{
			ConvertWebP: env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_CONVERT_WEBP", false),
			Compress:    env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_COMPRESSION", false),
		},
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.SyncDelay <= 0 {
		c.SyncDelay = defaultSyncDelay
	}
	if c.StartWait <= 0 {
		c.StartWait = defaultStartWait
	}
	if c.PairWait <= 0 {
		c.PairWait = defaultPairWait
	}
	if c.RestoreConcurrency <= 0 {
		c.RestoreConcurrency = 10
	}
	return c
}
