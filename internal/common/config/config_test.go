package config

import (
	"testing"
	"time"

	commonerrors "github.com/fieldsync/backend/internal/common/errors"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadRealtimeConfig()
	if err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
	if derr, ok := commonerrors.AsDomainError(err); !ok || derr.Code() != commonerrors.ErrMissingRequiredEnv.Code() {
		t.Errorf("expected missing env error, got %v", err)
	}
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := LoadRealtimeConfig()
	if err == nil {
		t.Fatal("expected error for short JWT secret")
	}
	if derr, ok := commonerrors.AsDomainError(err); !ok || derr.Code() != commonerrors.ErrInvalidJWTSecret.Code() {
		t.Errorf("expected invalid secret error, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", validSecret)

	cfg, err := LoadRealtimeConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.HTTPPort != "8083" {
		t.Errorf("expected default port 8083, got %q", cfg.HTTPPort)
	}
	if cfg.DatabaseURL != "" || cfg.NATSURL != "" {
		t.Error("expected optional backends to default to empty")
	}
	if cfg.WebSocketSendBufSize != 256 {
		t.Errorf("expected default send buffer 256, got %d", cfg.WebSocketSendBufSize)
	}
	if cfg.WebSocketPingPeriod >= cfg.WebSocketPongWait {
		t.Error("ping period must be shorter than pong wait")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", validSecret)
	t.Setenv("REALTIME_HTTP_PORT", "9999")
	t.Setenv("REALTIME_WS_SEND_TIMEOUT", "750ms")
	t.Setenv("REALTIME_PROCESSOR_WORKERS", "3")
	t.Setenv("REALTIME_WS_MAX_MSG_SIZE", "2048")

	cfg, err := LoadRealtimeConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.HTTPPort != "9999" {
		t.Errorf("expected port override, got %q", cfg.HTTPPort)
	}
	if cfg.WebSocketSendTimeout != 750*time.Millisecond {
		t.Errorf("expected send timeout override, got %v", cfg.WebSocketSendTimeout)
	}
	if cfg.ProcessorWorkers != 3 {
		t.Errorf("expected worker override, got %d", cfg.ProcessorWorkers)
	}
	if cfg.WebSocketMaxMsgSize != 2048 {
		t.Errorf("expected max msg size override, got %d", cfg.WebSocketMaxMsgSize)
	}
}

func TestMalformedOverridesFallBack(t *testing.T) {
	t.Setenv("JWT_SECRET", validSecret)
	t.Setenv("REALTIME_WS_SEND_TIMEOUT", "soon")
	t.Setenv("REALTIME_PROCESSOR_WORKERS", "many")

	cfg, err := LoadRealtimeConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.WebSocketSendTimeout != 2*time.Second {
		t.Errorf("expected fallback send timeout, got %v", cfg.WebSocketSendTimeout)
	}
	if cfg.ProcessorWorkers != 10 {
		t.Errorf("expected fallback worker count, got %d", cfg.ProcessorWorkers)
	}
}
