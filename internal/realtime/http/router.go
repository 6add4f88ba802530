package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	gorillaWS "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldsync/backend/internal/common/constants"
	commonerrors "github.com/fieldsync/backend/internal/common/errors"
	commonhttp "github.com/fieldsync/backend/internal/common/http"
	"github.com/fieldsync/backend/internal/common/httpmetrics"
	"github.com/fieldsync/backend/internal/common/jwtverify"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/observability/metrics"
	"github.com/fieldsync/backend/internal/presence"
	"github.com/fieldsync/backend/internal/realtime/hub"
	"github.com/fieldsync/backend/pkg/event"
)

const authCloseGrace = 100 * time.Millisecond

var errUserIDRequired = commonerrors.NewDomainError(
	commonhttp.CodeUserIDRequired,
	commonerrors.CategoryValidation,
	http.StatusBadRequest,
	"user id required",
)

type Handler struct {
	hub      *hub.Hub
	presence *presence.Service
	log      *logger.Logger
	secret   []byte
	connCfg  hub.ConnConfig
	upgrader gorillaWS.Upgrader
}

func NewHandler(h *hub.Hub, pres *presence.Service, log *logger.Logger, secret []byte) *Handler {
	return &Handler{
		hub:      h,
		presence: pres,
		log:      log,
		secret:   secret,
		connCfg:  h.ConnConfig(),
		upgrader: gorillaWS.Upgrader{
			ReadBufferSize:  constants.WebSocketReadBufferSize,
			WriteBufferSize: constants.WebSocketWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func NewRouter(handler *Handler, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", handler.ServeWS)

	online := commonhttp.RequireMethod(http.MethodGet)(
		commonhttp.WithTimeout(constants.DefaultRequestTimeout)(handler.HandleOnline))
	mux.Handle("/api/realtime/online/", jwtverify.Middleware(string(handler.secret), log)(http.HandlerFunc(online)))

	mux.HandleFunc("/health", commonhttp.HealthHandler(log))
	mux.Handle("/metrics", promhttp.Handler())

	collector := httpmetrics.New("realtime")
	return commonhttp.RecoveryMiddleware(log)(commonhttp.TraceIDMiddleware(collector.Wrap(mux)))
}

// ServeWS upgrades the connection and authenticates it. A bad token still
// gets an upgrade so the client can read a structured authentication_error
// frame before the close, mirroring what browser clients can observe.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token, ok := jwtverify.ExtractTokenFromHeader(r)
	if !ok {
		// Browser WebSocket clients cannot set headers on the dial.
		token = r.URL.Query().Get("token")
	}

	var claims jwtverify.Claims
	var authErr error
	if token != "" {
		claims, authErr = jwtverify.ParseToken(token, h.secret)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed remote=%s: %v", r.RemoteAddr, err)
		return
	}

	if token == "" || authErr != nil {
		h.rejectConn(conn, authErr)
		return
	}

	client := hub.NewClient(h.hub, conn, claims.UserID, claims.Username, claims.TeamID, h.log, h.connCfg)
	h.hub.Register(client)
	client.Start()
}

func (h *Handler) rejectConn(conn *gorillaWS.Conn, authErr error) {
	metrics.RealtimeAuthFailures.Inc()

	code := commonhttp.CodeMissingAuthorization
	reason := "authentication required"
	if authErr != nil {
		code = commonhttp.CodeInvalidToken
		reason = "invalid token"
		h.log.Warnf("websocket auth failed: %v", authErr)
	}

	env, err := event.NewEnvelope(event.TypeAuthenticationError, event.AuthenticationErrorPayload{
		Code:    code,
		Message: reason,
	})
	if err == nil {
		if data, marshalErr := json.Marshal(env); marshalErr == nil {
			conn.SetWriteDeadline(time.Now().Add(h.connCfg.WriteWait))
			conn.WriteMessage(gorillaWS.TextMessage, data)
		}
	}

	conn.SetWriteDeadline(time.Now().Add(h.connCfg.WriteWait))
	conn.WriteMessage(gorillaWS.CloseMessage,
		gorillaWS.FormatCloseMessage(gorillaWS.ClosePolicyViolation, reason))
	time.Sleep(authCloseGrace)
	conn.Close()
}

type onlineResponse struct {
	UserID   string           `json:"user_id"`
	Online   bool             `json:"online"`
	Status   event.UserStatus `json:"status"`
	LastSeen int64            `json:"last_seen"`
}

// HandleOnline reports the live connection state and presence of a user.
func (h *Handler) HandleOnline(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/realtime/online/")
	if userID == "" || strings.Contains(userID, "/") {
		commonhttp.HandleError(w, r, errUserIDRequired, h.log)
		return
	}

	entry, _ := h.presence.Get(userID)
	commonhttp.WriteJSON(w, http.StatusOK, onlineResponse{
		UserID:   userID,
		Online:   h.hub.IsOnline(userID),
		Status:   entry.Status,
		LastSeen: entry.LastSeen.UnixMilli(),
	})
}
