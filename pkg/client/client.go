// Package client is the Go SDK for the realtime service: a connection
// manager that owns a single authenticated WebSocket with bounded reconnects,
// and an event router that fans incoming events out to typed listeners.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/fieldsync/backend/internal/common/constants"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/pkg/event"
)

// ErrReconnectFailed is reported to error listeners after every reconnect
// attempt has been used up.
var ErrReconnectFailed = errors.New("reconnect attempts exhausted")

// errNoCredential marks a token source that returned an empty token. Connect
// treats it as a soft failure: log and stay disconnected.
var errNoCredential = errors.New("token source returned empty token")

// AuthError means the server rejected the connection's token. The client
// will not reconnect on its own after one of these.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// ServerError carries an error frame the server sent over the socket.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// TokenSource supplies the bearer token for each dial, so callers can plug
// in refreshing credentials.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type staticTokenSource struct {
	token string
}

func (s staticTokenSource) Token(context.Context) (string, error) {
	return s.token, nil
}

// StaticToken wraps a fixed token as a TokenSource.
func StaticToken(token string) TokenSource {
	return staticTokenSource{token: token}
}

type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectAttempts: constants.DefaultReconnectAttempts,
		ReconnectDelay:    constants.DefaultReconnectDelay,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      constants.DefaultWebSocketSendTimeout,
	}
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

type Client struct {
	cfg    Config
	tokens TokenSource
	router *EventRouter
	log    *logger.Logger

	mu         sync.Mutex
	conn       *gorillaWS.Conn
	state      connState
	generation uint64
	closed     bool

	writeMu sync.Mutex
}

func New(cfg Config, tokens TokenSource, router *EventRouter, log *logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		router: router,
		log:    log,
	}
}

func (c *Client) Router() *EventRouter { return c.router }

// Connect dials the server and starts the read loop. Calling Connect while
// already connected or connecting is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = stateConnecting
	c.closed = false
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		if errors.Is(err, errNoCredential) {
			c.log.Warnf("connect skipped: token source returned no credential")
			return nil
		}
		return err
	}

	if !c.adopt(conn) {
		c.log.Warnf("connect raced a disconnect, dropping fresh connection")
	}
	return nil
}

// Disconnect closes the connection and suppresses any pending reconnect.
// Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	wasConnected := c.state == stateConnected
	c.conn = nil
	c.state = stateDisconnected
	c.generation++
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		conn.WriteMessage(gorillaWS.CloseMessage,
			gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}

	if wasConnected {
		c.router.dispatchDisconnect("client disconnect")
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Cleanup drops every registered listener and disconnects. Meant for
// teardown when the owning component goes away.
func (c *Client) Cleanup() {
	c.router.RemoveAll()
	c.Disconnect()
}

// UpdateTaskStatus reports a task status change. Like every send, it is a
// guarded no-op while disconnected.
func (c *Client) UpdateTaskStatus(taskID, status string) error {
	return c.send(event.TypeUpdateTaskStatus, event.UpdateTaskStatusCommand{
		TaskID:    taskID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) UpdateLocation(latitude, longitude float64, accuracy *float64) error {
	return c.send(event.TypeLocationUpdate, event.LocationUpdatePayload{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  accuracy,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) SendNotification(to string, severity event.Severity, title, message string) error {
	return c.send(event.TypeSendNotification, event.SendNotificationCommand{
		To:        to,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) UpdateUserStatus(userID string, status event.UserStatus) error {
	return c.send(event.TypeUserStatusUpdate, event.UserStatusUpdateCommand{
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) JoinTeamRoom(teamID string) error {
	return c.send(event.TypeJoinTeamRoom, event.JoinTeamRoomCommand{
		TeamID:    teamID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) LeaveTeamRoom(teamID string) error {
	return c.send(event.TypeLeaveTeamRoom, event.LeaveTeamRoomCommand{
		TeamID:    teamID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) dial(ctx context.Context) (*gorillaWS.Conn, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	if token == "" {
		return nil, errNoCredential
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := gorillaWS.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

// adopt installs a freshly dialed connection and starts its read loop. A
// Disconnect (or a competing dial) that landed while this dial was in flight
// wins: the new connection is closed instead of installed.
func (c *Client) adopt(conn *gorillaWS.Conn) bool {
	c.mu.Lock()
	if c.closed || c.state != stateConnecting {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.state = stateConnected
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	return true
}

func (c *Client) readLoop(conn *gorillaWS.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}

		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warnf("invalid frame from server: %v", err)
			continue
		}

		if stop := c.handleEnvelope(&env); stop {
			return
		}
	}
}

// handleEnvelope dispatches one server frame. Returns true when the read
// loop should stop (authentication rejected).
func (c *Client) handleEnvelope(env *event.Envelope) bool {
	switch env.Type {
	case event.TypeAuthenticated:
		var p event.AuthenticatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.log.Warnf("bad authenticated payload: %v", err)
			return false
		}
		c.send(event.TypeJoinUserRoom, event.JoinUserRoomCommand{
			UserID:    p.UserID,
			Timestamp: time.Now().UnixMilli(),
		})
		c.router.dispatchConnect()

	case event.TypeAuthenticationError:
		var p event.AuthenticationErrorPayload
		json.Unmarshal(env.Payload, &p)
		c.router.dispatchError(&AuthError{Message: p.Message})
		c.Disconnect()
		return true

	case event.TypeTaskUpdated, event.TypeTaskAssigned:
		var p event.TaskUpdatePayload
		if c.decode(env, &p) {
			c.router.dispatchTaskUpdate(p)
		}

	case event.TypeLocationUpdate:
		var p event.LocationUpdatePayload
		if c.decode(env, &p) {
			c.router.dispatchLocationUpdate(p)
		}

	case event.TypeNotification:
		var p event.NotificationPayload
		if c.decode(env, &p) {
			c.router.dispatchNotification(p)
		}

	case event.TypeUserStatusChanged:
		var p event.UserStatusPayload
		if c.decode(env, &p) {
			c.router.dispatchUserStatus(p)
		}

	case event.TypeGeofenceEvent:
		var p event.GeofencePayload
		if c.decode(env, &p) {
			c.router.dispatchGeofence(p)
		}

	case event.TypeError:
		var p event.ErrorPayload
		if c.decode(env, &p) {
			c.router.dispatchError(&ServerError{Code: p.Code, Message: p.Message})
		}

	default:
		c.log.Debugf("ignoring unknown event type=%s", env.Type)
	}

	return false
}

func (c *Client) decode(env *event.Envelope, out interface{}) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		c.log.Warnf("bad %s payload: %v", env.Type, err)
		return false
	}
	return true
}

func (c *Client) handleDrop(gen uint64, cause error) {
	c.mu.Lock()
	if c.generation != gen || c.closed {
		// Superseded by a newer connection or an intentional disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = stateDisconnected
	c.mu.Unlock()

	c.log.Warnf("connection dropped: %v", cause)
	c.router.dispatchDisconnect(cause.Error())
	go c.reconnect()
}

// reconnect retries the dial a bounded number of times with a fixed delay.
// Exhausting the budget surfaces ErrReconnectFailed to error listeners; the
// caller decides whether to Connect again.
func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(c.cfg.ReconnectDelay)

		c.mu.Lock()
		if c.closed || c.state != stateDisconnected {
			// Disconnected on purpose, or a caller's Connect claimed
			// the transport already.
			c.mu.Unlock()
			return
		}
		c.state = stateConnecting
		c.mu.Unlock()

		conn, err := c.dial(context.Background())
		if err != nil {
			c.log.Warnf("reconnect attempt %d/%d failed: %v", attempt, c.cfg.ReconnectAttempts, err)
			c.mu.Lock()
			if c.state == stateConnecting {
				c.state = stateDisconnected
			}
			c.mu.Unlock()
			continue
		}

		if !c.adopt(conn) {
			return
		}
		c.log.Infof("reconnected after %d attempt(s)", attempt)
		return
	}

	c.router.dispatchError(ErrReconnectFailed)
}

// send marshals and writes a command. While disconnected it warns and drops
// the command, matching fire-and-forget semantics.
func (c *Client) send(msgType event.MessageType, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == stateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.log.Warnf("not connected, dropping command type=%s", msgType)
		return nil
	}

	env, err := event.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(gorillaWS.TextMessage, data)
}
