package constants

import "time"

const (
	JWTSecretMinLength = 32

	WebSocketProcessorWorkers   = 10
	WebSocketProcessorQueueSize = 10000
	WebSocketDebugSampleRate    = 0.01
	WebSocketReadBufferSize     = 1024
	WebSocketWriteBufferSize    = 1024

	LastSeenQueueSize     = 100
	LastSeenBatchSize     = 100
	LastSeenFlushEvery    = 500 * time.Millisecond
	LastSeenUpdateTimeout = 3 * time.Second

	DBPoolMaxOpenConns    = 50
	DBPoolMinOpenConns    = 10
	DBPoolConnMaxLifetime = 5 * time.Minute
	DBPoolConnMaxIdleTime = 10 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 15 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultRealtimeHTTPPort = "8083"

	DefaultWebSocketWriteWait   = 10 * time.Second
	DefaultWebSocketPongWait    = 60 * time.Second
	DefaultWebSocketPingPeriod  = 54 * time.Second
	DefaultWebSocketMaxMsgSize  = 1 * 1024 * 1024
	DefaultWebSocketSendBufSize = 256
	DefaultWebSocketSendTimeout = 2 * time.Second

	DefaultLastSeenUpdateInterval = 1 * time.Minute
	DefaultRequestTimeout         = 5 * time.Second

	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 1 * time.Second

	DefaultBridgeConnectTimeout = 30 * time.Second

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
