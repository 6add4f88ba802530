// Package presence tracks which users are online and in what state, and
// persists coarse last-seen stamps through a batching writer.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsync/backend/internal/common/clock"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/observability/metrics"
	"github.com/fieldsync/backend/pkg/event"
)

type Entry struct {
	Status   event.UserStatus
	LastSeen time.Time
}

type Service struct {
	mu       sync.RWMutex
	users    map[string]Entry
	lastSeen *LastSeenUpdater
	log      *logger.Logger
	clock    clock.Clock
}

type ServiceDeps struct {
	Repo  Repository
	Log   *logger.Logger
	Clock clock.Clock
}

type ServiceConfig struct {
	LastSeenUpdateInterval time.Duration
}

func NewService(ctx context.Context, deps ServiceDeps, cfg ServiceConfig) *Service {
	var lastSeen *LastSeenUpdater
	if deps.Repo != nil && cfg.LastSeenUpdateInterval > 0 {
		lastSeen = NewLastSeenUpdater(ctx, deps.Repo, deps.Log, cfg.LastSeenUpdateInterval, deps.Clock)
	}

	return &Service{
		users:    make(map[string]Entry),
		lastSeen: lastSeen,
		log:      deps.Log,
		clock:    deps.Clock,
	}
}

// SetStatus records a user's presence state and returns the resulting entry.
// Offline users stay in the registry so last-seen survives the disconnect.
func (s *Service) SetStatus(userID string, status event.UserStatus) Entry {
	now := s.clock.Now()

	s.mu.Lock()
	prev, existed := s.users[userID]
	entry := Entry{Status: status, LastSeen: now}
	s.users[userID] = entry
	s.mu.Unlock()

	if existed && prev.Status != status {
		metrics.PresenceStatusGauge.WithLabelValues(string(prev.Status)).Dec()
	}
	if !existed || prev.Status != status {
		metrics.PresenceStatusGauge.WithLabelValues(string(status)).Inc()
	}

	s.Touch(userID)
	return entry
}

// Get returns the presence entry for a user. Unknown users read as offline
// with a zero last-seen.
func (s *Service) Get(userID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.users[userID]
	if !ok {
		return Entry{Status: event.StatusOffline}, false
	}
	return entry, true
}

// Touch refreshes the debounced last-seen stamp without changing status.
func (s *Service) Touch(userID string) {
	if s.lastSeen != nil {
		s.lastSeen.Enqueue(userID)
	}
}

// Snapshot returns the current entry as a wire payload.
func (s *Service) Snapshot(userID string) event.UserStatusPayload {
	entry, _ := s.Get(userID)
	return event.UserStatusPayload{
		UserID:   userID,
		Status:   entry.Status,
		LastSeen: entry.LastSeen.UnixMilli(),
	}
}

func (s *Service) Stop() {
	if s.lastSeen != nil {
		s.lastSeen.Stop()
	}
}
