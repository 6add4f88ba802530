package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fieldsync/backend/internal/common/clock"
	"github.com/fieldsync/backend/internal/common/constants"
	commonerrors "github.com/fieldsync/backend/internal/common/errors"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/geofence"
	"github.com/fieldsync/backend/internal/observability/metrics"
	"github.com/fieldsync/backend/internal/presence"
	"github.com/fieldsync/backend/pkg/event"
)

// EventPublisher fans events out to other service instances. The in-process
// hub only ever reaches its own connections; the publisher covers the rest.
type EventPublisher interface {
	PublishTeam(teamID string, env *event.Envelope) error
	PublishUser(userID string, env *event.Envelope) error
}

// NoopPublisher is used when no cross-instance transport is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTeam(string, *event.Envelope) error { return nil }
func (NoopPublisher) PublishUser(string, *event.Envelope) error { return nil }

type Hub struct {
	clients     sync.Map // userID -> *Client
	rooms       *Rooms
	processor   *Processor
	presence    *presence.Service
	geofence    *geofence.Evaluator
	log         *logger.Logger
	sendTimeout time.Duration
	connCfg     ConnConfig
	publisher   EventPublisher

	register   chan *Client
	unregister chan *Client

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

type Config struct {
	SendTimeout time.Duration
	Workers     int
	QueueSize   int
	ConnConfig  ConnConfig
}

type Deps struct {
	Presence  *presence.Service
	Geofence  *geofence.Evaluator
	Publisher EventPublisher
	Clock     clock.Clock
	Log       *logger.Logger
}

func New(cfg Config, deps Deps) *Hub {
	h := &Hub{
		rooms:       NewRooms(),
		presence:    deps.Presence,
		geofence:    deps.Geofence,
		log:         deps.Log,
		sendTimeout: cfg.SendTimeout,
		connCfg:     cfg.ConnConfig,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}

	h.publisher = deps.Publisher
	if h.publisher == nil {
		h.publisher = NoopPublisher{}
	}

	router := newCommandRouter(h, deps.Presence, deps.Geofence, deps.Clock, deps.Log)
	h.processor = NewProcessor(cfg.Workers, cfg.QueueSize, router, deps.Log)
	return h
}

// ConnConfig exposes the per-connection tunables so the transport layer
// builds clients with the same settings the hub was configured with.
func (h *Hub) ConnConfig() ConnConfig {
	return h.connCfg
}

// SetPublisher swaps in the cross-instance publisher. Must be called before
// Run; the bridge needs the hub for local delivery, so it connects after the
// hub is built.
func (h *Hub) SetPublisher(p EventPublisher) {
	if p != nil {
		h.publisher = p
	}
}

func (h *Hub) publishTeam(teamID string, env *event.Envelope) error {
	return h.publisher.PublishTeam(teamID, env)
}

func (h *Hub) publishUser(userID string, env *event.Envelope) error {
	return h.publisher.PublishUser(userID, env)
}

func (h *Hub) Run() {
	h.processor.Start()
	go h.run()
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case <-h.shutdown:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) HandleMessage(client *Client, env *event.Envelope) {
	h.processor.Submit(client, env)
}

// Shutdown notifies connected clients, closes every connection and stops the
// worker pool. Called from a server shutdown hook.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() { close(h.shutdown) })

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	h.processor.Stop()
	return nil
}

func (h *Hub) handleRegister(client *Client) {
	// A second connection for the same user replaces the first.
	if prev, loaded := h.clients.LoadAndDelete(client.userID); loaded {
		h.closeClient(prev.(*Client), "replaced")
		metrics.RealtimeConnectionsActive.Dec()
	}

	h.clients.Store(client.userID, client)
	metrics.RealtimeConnectionsActive.Inc()
	metrics.RealtimeConnectionsTotal.Inc()

	h.presence.SetStatus(client.userID, event.StatusOnline)
	h.broadcastStatus(client.userID, event.StatusOnline, client.teamID)

	env, err := event.NewEnvelope(event.TypeAuthenticated, event.AuthenticatedPayload{UserID: client.userID})
	if err == nil {
		h.deliver(client, env)
	}

	h.log.Infof("client connected user_id=%s username=%s team_id=%s", client.userID, client.username, client.teamID)
}

func (h *Hub) handleUnregister(client *Client) {
	current, ok := h.clients.Load(client.userID)
	if !ok || current.(*Client) != client {
		// Already replaced by a newer connection.
		return
	}

	h.clients.Delete(client.userID)
	h.rooms.LeaveAll(client.userID)
	h.geofence.Forget(client.userID)
	client.Stop()

	metrics.RealtimeConnectionsActive.Dec()
	metrics.RealtimeDisconnections.WithLabelValues("client").Inc()

	h.presence.SetStatus(client.userID, event.StatusOffline)
	h.broadcastStatus(client.userID, event.StatusOffline, client.teamID)

	h.log.Infof("client disconnected user_id=%s username=%s", client.userID, client.username)
}

func (h *Hub) closeAll() {
	if env, err := event.NewEnvelope(event.TypeShutdown, struct{}{}); err == nil {
		if data, marshalErr := json.Marshal(env); marshalErr == nil {
			h.clients.Range(func(_, value interface{}) bool {
				client := value.(*Client)
				select {
				case client.send <- data:
				default:
				}
				return true
			})
		}
	}

	h.clients.Range(func(key, value interface{}) bool {
		h.closeClient(value.(*Client), "shutdown")
		h.clients.Delete(key)
		metrics.RealtimeConnectionsActive.Dec()
		return true
	})
}

// closeClient stops the client's pumps. The send channel is never closed;
// the write pump exits through the client context instead, so concurrent
// sends from processor workers stay safe.
func (h *Hub) closeClient(client *Client, reason string) {
	metrics.RealtimeDisconnections.WithLabelValues(reason).Inc()
	client.Stop()
}

// SendToUser delivers an event to a single connected user. Returns
// ErrUserNotConnected when the user has no connection on this instance.
func (h *Hub) SendToUser(userID string, env *event.Envelope) error {
	value, ok := h.clients.Load(userID)
	if !ok {
		return commonerrors.ErrUserNotConnected
	}
	return h.deliver(value.(*Client), env)
}

// BroadcastToTeam sends an event to every member of a team room, best effort.
// A member with a full send buffer is skipped rather than blocking the rest.
func (h *Hub) BroadcastToTeam(teamID string, env *event.Envelope, exceptUserID string) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Errorf("broadcast marshal failed type=%s: %v", env.Type, err)
		return
	}

	metrics.RealtimeEventsBroadcast.WithLabelValues(string(env.Type)).Inc()
	h.log.WithFields(context.Background(), logger.Fields{
		"team_id": teamID,
		"type":    string(env.Type),
		"action":  "broadcast",
	}).DebugSampled(constants.WebSocketDebugSampleRate, "broadcasting event to team room")

	for _, userID := range h.rooms.Members(teamID) {
		if userID == exceptUserID {
			continue
		}
		value, ok := h.clients.Load(userID)
		if !ok {
			continue
		}
		client := value.(*Client)
		select {
		case client.send <- data:
		default:
			metrics.RealtimeDroppedMessages.WithLabelValues(string(env.Type)).Inc()
			h.log.Warnf("send buffer full, dropping broadcast user_id=%s type=%s", userID, env.Type)
		}
	}
}

// SendError delivers an error frame to the sender only.
func (h *Hub) SendError(client *Client, derr commonerrors.DomainError) {
	env, err := event.NewEnvelope(event.TypeError, event.ErrorPayload{
		Code:    derr.Code(),
		Message: derr.Error(),
	})
	if err != nil {
		return
	}
	if deliverErr := h.deliver(client, env); deliverErr != nil {
		h.log.Warnf("error frame not delivered user_id=%s: %v", client.userID, deliverErr)
	}
}

func (h *Hub) Rooms() *Rooms { return h.rooms }

// IsOnline reports whether the user has a live connection on this instance.
func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.clients.Load(userID)
	return ok
}

func (h *Hub) deliver(client *Client, env *event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return commonerrors.ErrMarshalError.WithCause(err)
	}

	select {
	case client.send <- data:
		return nil
	case <-client.ctx.Done():
		return commonerrors.ErrUserNotConnected
	case <-time.After(h.sendTimeout):
		metrics.RealtimeDroppedMessages.WithLabelValues(string(env.Type)).Inc()
		return commonerrors.ErrSendTimeout
	}
}

func (h *Hub) broadcastStatus(userID string, status event.UserStatus, teamID string) {
	entry, _ := h.presence.Get(userID)
	env, err := event.NewEnvelope(event.TypeUserStatusChanged, event.UserStatusPayload{
		UserID:   userID,
		Status:   status,
		LastSeen: entry.LastSeen.UnixMilli(),
	})
	if err != nil {
		return
	}
	if teamID != "" {
		h.BroadcastToTeam(teamID, env, userID)
	}
}
