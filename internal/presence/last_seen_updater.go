package presence

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsync/backend/internal/common/clock"
	"github.com/fieldsync/backend/internal/common/constants"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/observability/metrics"
)

// LastSeenUpdater batches last-seen writes: per-user debounce in front of a
// bounded queue, flushed to the repository on a short ticker. A full queue
// drops the update; last-seen is advisory data.
type LastSeenUpdater struct {
	ctx            context.Context
	cancel         context.CancelFunc
	repo           Repository
	log            *logger.Logger
	clock          clock.Clock
	updateInterval time.Duration
	queue          chan string
	lastSeenCache  map[string]time.Time
	mu             sync.Mutex
	wg             sync.WaitGroup
}

func NewLastSeenUpdater(ctx context.Context, repo Repository, log *logger.Logger, updateInterval time.Duration, clk clock.Clock) *LastSeenUpdater {
	updateCtx, cancel := context.WithCancel(ctx)
	updater := &LastSeenUpdater{
		ctx:            updateCtx,
		cancel:         cancel,
		repo:           repo,
		log:            log,
		clock:          clk,
		updateInterval: updateInterval,
		queue:          make(chan string, constants.LastSeenQueueSize),
		lastSeenCache:  make(map[string]time.Time),
	}

	updater.wg.Add(1)
	go updater.run()

	return updater
}

func (u *LastSeenUpdater) Enqueue(userID string) {
	now := u.clock.Now()

	u.mu.Lock()
	if last, ok := u.lastSeenCache[userID]; ok && now.Sub(last) < u.updateInterval {
		u.mu.Unlock()
		return
	}
	u.lastSeenCache[userID] = now
	u.mu.Unlock()

	select {
	case u.queue <- userID:
	default:
		metrics.PresenceLastSeenDropped.Inc()
		u.log.WithFields(context.Background(), logger.Fields{
			"user_id": userID,
			"action":  "last_seen_enqueue_dropped",
		}).Warn("last seen queue is full, dropping update")
	}
}

func (u *LastSeenUpdater) Stop() {
	u.cancel()
	u.wg.Wait()
}

func (u *LastSeenUpdater) run() {
	defer u.wg.Done()

	ticker := time.NewTicker(constants.LastSeenFlushEvery)
	defer ticker.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-u.ctx.Done():
			u.flush(pending)
			return
		case userID := <-u.queue:
			pending[userID] = struct{}{}
			if len(pending) >= constants.LastSeenBatchSize {
				u.flush(pending)
				pending = make(map[string]struct{})
			}
		case <-ticker.C:
			if len(pending) > 0 {
				u.flush(pending)
				pending = make(map[string]struct{})
			}
		}
	}
}

func (u *LastSeenUpdater) flush(pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}

	userIDs := make([]string, 0, len(pending))
	for userID := range pending {
		userIDs = append(userIDs, userID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.LastSeenUpdateTimeout)
	defer cancel()

	if err := u.repo.UpdateLastSeen(ctx, userIDs, u.clock.Now()); err != nil {
		u.log.WithFields(ctx, logger.Fields{
			"count":  len(userIDs),
			"action": "last_seen_flush_failed",
		}).Warnf("failed to flush last seen updates: %v", err)
		return
	}

	metrics.PresenceLastSeenFlushes.Inc()
}
