package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Notification delivery
const (
	NotifyQueueSize     = 256
	NotifySendTimeout   = 30 * time.Second
	NotifyRetryInterval = 2 * time.Minute
	NotifyRetryBatch    = 50
)

// Code submission rate limit window
const SubmitRateLimitWindow = time.Minute

// Admin import body limit; codes arrive as one large newline-separated body.
const ImportMaxBodySize = 8 << 20
