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
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Session TTL bounds
const (
	MinSessionTTLSeconds = 60
	MaxSessionTTLSeconds = 24 * 60 * 60
)

// Expiry sweep upper bound
const MaxSweepIntervalSeconds = 60

// Per-connection outbound event buffer; a peer that cannot drain this many
// events is considered stuck and dropped.
const SocketSendBuffer = 32

// Websocket message size cap; relay events are tiny.
const SocketMaxMessageBytes = 4096
