package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/fieldsync/backend/internal/common/clock"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/geofence"
	"github.com/fieldsync/backend/internal/presence"
	"github.com/fieldsync/backend/internal/realtime/hub"
	"github.com/fieldsync/backend/pkg/event"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	srv   *httptest.Server
	hub   *hub.Hub
	store *geofence.Store
	clk   *clock.MockClock
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	log, err := logger.New("", "realtime-test", "ERROR")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	presenceSvc := presence.NewService(context.Background(),
		presence.ServiceDeps{Repo: presence.NewNoopRepository(), Log: log, Clock: clock.NewRealClock()},
		presence.ServiceConfig{},
	)

	store := geofence.NewStore()

	connCfg := hub.ConnConfig{
		WriteWait:   time.Second,
		PongWait:    30 * time.Second,
		PingPeriod:  25 * time.Second,
		MaxMsgSize:  1 << 20,
		SendBufSize: 32,
	}

	clk := clock.NewMockClock(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))

	eventHub := hub.New(
		hub.Config{SendTimeout: time.Second, Workers: 4, QueueSize: 64, ConnConfig: connCfg},
		hub.Deps{Presence: presenceSvc, Geofence: geofence.NewEvaluator(store), Clock: clk, Log: log},
	)
	eventHub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		eventHub.Shutdown(ctx)
	})

	handler := NewHandler(eventHub, presenceSvc, log, []byte(testSecret))
	srv := httptest.NewServer(NewRouter(handler, log))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, hub: eventHub, store: store, clk: clk}
}

func signToken(t *testing.T, userID, username, teamID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"usr":  username,
		"team": teamID,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func dialWS(t *testing.T, env *testEnv, token string) *gorillaWS.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := gorillaWS.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connectUser dials, consumes the authenticated frame and joins the team room.
func connectUser(t *testing.T, env *testEnv, userID, teamID string) *gorillaWS.Conn {
	t.Helper()

	conn := dialWS(t, env, signToken(t, userID, userID, teamID))

	auth := readFrame(t, conn, event.TypeAuthenticated)
	var p event.AuthenticatedPayload
	if err := json.Unmarshal(auth.Payload, &p); err != nil || p.UserID != userID {
		t.Fatalf("bad authenticated frame for %s: %v %+v", userID, err, p)
	}

	writeCommand(t, conn, event.TypeJoinTeamRoom, event.JoinTeamRoomCommand{TeamID: teamID})
	// No ack for joins; give the processor a beat to apply it.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func writeCommand(t *testing.T, conn *gorillaWS.Conn, msgType event.MessageType, payload interface{}) {
	t.Helper()
	env, err := event.NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatalf("failed to build %s: %v", msgType, err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("failed to write %s: %v", msgType, err)
	}
}

// readFrame reads frames until one of the wanted type arrives, skipping
// presence chatter.
func readFrame(t *testing.T, conn *gorillaWS.Conn, want event.MessageType) event.Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read failed while waiting for %s: %v", want, err)
		}
		if env.Type == want {
			return env
		}
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := setupServer(t)
	conn := dialWS(t, env, "not-a-token")

	frame := readFrame(t, conn, event.TypeAuthenticationError)
	var p event.AuthenticationErrorPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if p.Code != "INVALID_TOKEN" {
		t.Errorf("expected INVALID_TOKEN, got %q", p.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after rejection")
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	env := setupServer(t)
	conn := dialWS(t, env, "")

	frame := readFrame(t, conn, event.TypeAuthenticationError)
	var p event.AuthenticationErrorPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if p.Code != "MISSING_AUTHORIZATION" {
		t.Errorf("expected MISSING_AUTHORIZATION, got %q", p.Code)
	}
}

func TestTaskUpdateBroadcast(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")
	bob := connectUser(t, env, "bob", "team-1")

	writeCommand(t, alice, event.TypeUpdateTaskStatus, event.UpdateTaskStatusCommand{
		TaskID: "task-7",
		Status: "completed",
	})

	frame := readFrame(t, bob, event.TypeTaskUpdated)
	var p event.TaskUpdatePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if p.TaskID != "task-7" || p.Status != "completed" {
		t.Errorf("unexpected task payload: %+v", p)
	}
	if p.UpdatedBy != "alice" {
		t.Errorf("expected updated_by stamped from connection identity, got %q", p.UpdatedBy)
	}
	if want := env.clk.Now().UnixMilli(); p.UpdatedAt != want {
		t.Errorf("expected updated_at stamped from the injected clock (%d), got %d", want, p.UpdatedAt)
	}
}

func TestTaskAssignmentPingsAssignee(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")
	// carol is connected but not in alice's team room.
	carol := connectUser(t, env, "carol", "team-2")

	writeCommand(t, alice, event.TypeUpdateTaskStatus, event.UpdateTaskStatusCommand{
		TaskID:     "task-8",
		Status:     "assigned",
		AssignedTo: "carol",
	})

	frame := readFrame(t, carol, event.TypeTaskAssigned)
	var p event.TaskUpdatePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if p.TaskID != "task-8" || p.AssignedTo != "carol" {
		t.Errorf("unexpected assignment payload: %+v", p)
	}
}

func TestNotificationDelivery(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")
	bob := connectUser(t, env, "bob", "team-1")

	writeCommand(t, alice, event.TypeSendNotification, event.SendNotificationCommand{
		To:       "bob",
		Severity: event.SeverityWarning,
		Title:    "vehicle check due",
		Message:  "before next shift",
	})

	frame := readFrame(t, bob, event.TypeNotification)
	var p event.NotificationPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if p.ID == "" {
		t.Error("expected server-generated notification id")
	}
	if p.Severity != event.SeverityWarning || p.Title != "vehicle check due" {
		t.Errorf("unexpected notification payload: %+v", p)
	}
	if p.CreatedAt == 0 {
		t.Error("expected server to stamp created_at")
	}
}

func TestInvalidCommandGetsErrorFrame(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")

	writeCommand(t, alice, event.TypeUpdateTaskStatus, event.UpdateTaskStatusCommand{
		Status: "completed", // no task_id
	})

	frame := readFrame(t, alice, event.TypeError)
	var p event.ErrorPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if p.Code == "" {
		t.Error("expected an error code on the error frame")
	}
}

func TestUnknownCommandGetsErrorFrame(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")

	if err := alice.WriteJSON(event.Envelope{Type: "warp_drive", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readFrame(t, alice, event.TypeError)
}

func TestLocationUpdateAndGeofence(t *testing.T) {
	env := setupServer(t)
	env.store.Replace([]geofence.Geofence{{
		ID:      "fence-1",
		Name:    "depot",
		TeamID:  "team-1",
		Lat:     0,
		Lng:     0,
		RadiusM: 500,
	}})

	alice := connectUser(t, env, "alice", "team-1")
	bob := connectUser(t, env, "bob", "team-1")

	// Inside the fence.
	writeCommand(t, alice, event.TypeLocationUpdate, event.LocationUpdatePayload{
		Latitude:  0.001,
		Longitude: 0.001,
	})

	loc := readFrame(t, bob, event.TypeLocationUpdate)
	var lp event.LocationUpdatePayload
	if err := json.Unmarshal(loc.Payload, &lp); err != nil {
		t.Fatalf("bad location payload: %v", err)
	}
	if lp.UserID != "alice" {
		t.Errorf("expected location stamped with connection identity, got %q", lp.UserID)
	}
	if lp.Timestamp == 0 {
		t.Error("expected server to stamp missing timestamp")
	}

	enter := readFrame(t, bob, event.TypeGeofenceEvent)
	var gp event.GeofencePayload
	if err := json.Unmarshal(enter.Payload, &gp); err != nil {
		t.Fatalf("bad geofence payload: %v", err)
	}
	if gp.Transition != event.TransitionEnter || gp.GeofenceID != "fence-1" {
		t.Errorf("expected enter transition for fence-1, got %+v", gp)
	}

	// Far outside.
	writeCommand(t, alice, event.TypeLocationUpdate, event.LocationUpdatePayload{
		Latitude:  10,
		Longitude: 10,
	})

	exit := readFrame(t, bob, event.TypeGeofenceEvent)
	if err := json.Unmarshal(exit.Payload, &gp); err != nil {
		t.Fatalf("bad geofence payload: %v", err)
	}
	if gp.Transition != event.TransitionExit {
		t.Errorf("expected exit transition, got %+v", gp)
	}
}

func TestOutOfRangeLocationRejected(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")

	writeCommand(t, alice, event.TypeLocationUpdate, event.LocationUpdatePayload{
		Latitude:  95,
		Longitude: 0,
	})

	readFrame(t, alice, event.TypeError)
}

func TestUserStatusUpdateBroadcast(t *testing.T) {
	env := setupServer(t)

	alice := connectUser(t, env, "alice", "team-1")
	bob := connectUser(t, env, "bob", "team-1")

	writeCommand(t, alice, event.TypeUserStatusUpdate, event.UserStatusUpdateCommand{
		UserID: "alice",
		Status: event.StatusBusy,
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for busy status")
		}
		frame := readFrame(t, bob, event.TypeUserStatusChanged)
		var p event.UserStatusPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if p.UserID == "alice" && p.Status == event.StatusBusy {
			return
		}
	}
}

func TestOnlineEndpoint(t *testing.T) {
	env := setupServer(t)

	connectUser(t, env, "alice", "team-1")
	token := signToken(t, "bob", "bob", "team-1")

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+path, nil)
		if err != nil {
			t.Fatalf("build request failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	// Unauthenticated requests are turned away.
	anon, err := http.Get(env.srv.URL + "/api/realtime/online/alice")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	anon.Body.Close()
	if anon.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", anon.StatusCode)
	}

	resp := get("/api/realtime/online/alice")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body onlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !body.Online || body.Status != event.StatusOnline {
		t.Errorf("expected alice online, got %+v", body)
	}

	resp2 := get("/api/realtime/online/ghost")
	defer resp2.Body.Close()

	var ghost onlineResponse
	if err := json.NewDecoder(resp2.Body).Decode(&ghost); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ghost.Online || ghost.Status != event.StatusOffline {
		t.Errorf("expected ghost offline, got %+v", ghost)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)

	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", resp.StatusCode)
	}
}
