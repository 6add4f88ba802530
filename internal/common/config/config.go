package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fieldsync/backend/internal/common/constants"
	commonerrors "github.com/fieldsync/backend/internal/common/errors"
)

type RealtimeConfig struct {
	HTTPPort    string
	DatabaseURL string
	NATSURL     string
	JWTSecret   string

	WebSocketWriteWait   time.Duration
	WebSocketPongWait    time.Duration
	WebSocketPingPeriod  time.Duration
	WebSocketMaxMsgSize  int64
	WebSocketSendBufSize int
	WebSocketSendTimeout time.Duration

	ProcessorWorkers   int
	ProcessorQueueSize int

	LastSeenUpdateInterval time.Duration
	RequestTimeout         time.Duration
}

// LoadRealtimeConfig reads the realtime service configuration from the
// environment. DATABASE_URL and NATS_URL are optional: without them the
// service runs with in-memory presence and no cross-instance bridge.
func LoadRealtimeConfig() (RealtimeConfig, error) {
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return RealtimeConfig{}, err
	}

	if err := validateJWTSecret(jwtSecret); err != nil {
		return RealtimeConfig{}, err
	}

	return RealtimeConfig{
		HTTPPort:    getEnv("REALTIME_HTTP_PORT", constants.DefaultRealtimeHTTPPort),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),
		JWTSecret:   jwtSecret,

		WebSocketWriteWait:   getDurationEnv("REALTIME_WS_WRITE_WAIT", constants.DefaultWebSocketWriteWait),
		WebSocketPongWait:    getDurationEnv("REALTIME_WS_PONG_WAIT", constants.DefaultWebSocketPongWait),
		WebSocketPingPeriod:  getDurationEnv("REALTIME_WS_PING_PERIOD", constants.DefaultWebSocketPingPeriod),
		WebSocketMaxMsgSize:  getInt64Env("REALTIME_WS_MAX_MSG_SIZE", constants.DefaultWebSocketMaxMsgSize),
		WebSocketSendBufSize: getIntEnv("REALTIME_WS_SEND_BUF_SIZE", constants.DefaultWebSocketSendBufSize),
		WebSocketSendTimeout: getDurationEnv("REALTIME_WS_SEND_TIMEOUT", constants.DefaultWebSocketSendTimeout),

		ProcessorWorkers:   getIntEnv("REALTIME_PROCESSOR_WORKERS", constants.WebSocketProcessorWorkers),
		ProcessorQueueSize: getIntEnv("REALTIME_PROCESSOR_QUEUE_SIZE", constants.WebSocketProcessorQueueSize),

		LastSeenUpdateInterval: getDurationEnv("REALTIME_LAST_SEEN_INTERVAL", constants.DefaultLastSeenUpdateInterval),
		RequestTimeout:         getDurationEnv("REALTIME_REQUEST_TIMEOUT", constants.DefaultRequestTimeout),
	}, nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < constants.JWTSecretMinLength {
		return commonerrors.ErrInvalidJWTSecret.WithCause(
			fmt.Errorf("got %d bytes", len(secret)))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func mustEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", commonerrors.ErrMissingRequiredEnv.WithCause(fmt.Errorf("%s", key))
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64Env(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
