// Package event defines the wire contract shared by the realtime server and
// the Go client SDK: the JSON envelope, message type constants, and the
// payload structs for every domain event and outbound command.
package event

import "encoding/json"

type MessageType string

// Server-to-client message types.
const (
	TypeAuthenticated       MessageType = "authenticated"
	TypeAuthenticationError MessageType = "authentication_error"
	TypeTaskUpdated         MessageType = "task_updated"
	TypeTaskAssigned        MessageType = "task_assigned"
	TypeLocationUpdate      MessageType = "location_update"
	TypeNotification        MessageType = "notification"
	TypeUserStatusChanged   MessageType = "user_status_changed"
	TypeGeofenceEvent       MessageType = "geofence_event"
	TypeError               MessageType = "error"
	TypeShutdown            MessageType = "shutdown"
)

// Client-to-server command types. TypeLocationUpdate is reused in both
// directions: the same payload shape travels client -> server -> team room.
const (
	TypeJoinUserRoom     MessageType = "join_user_room"
	TypeJoinTeamRoom     MessageType = "join_team_room"
	TypeLeaveTeamRoom    MessageType = "leave_team_room"
	TypeUpdateTaskStatus MessageType = "update_task_status"
	TypeSendNotification MessageType = "send_notification"
	TypeUserStatusUpdate MessageType = "user_status_update"
)

func (mt MessageType) String() string {
	return string(mt)
}

func (mt MessageType) IsValid() bool {
	switch mt {
	case TypeAuthenticated, TypeAuthenticationError, TypeTaskUpdated,
		TypeTaskAssigned, TypeLocationUpdate, TypeNotification,
		TypeUserStatusChanged, TypeGeofenceEvent, TypeError, TypeShutdown,
		TypeJoinUserRoom, TypeJoinTeamRoom, TypeLeaveTeamRoom,
		TypeUpdateTaskStatus, TypeSendNotification, TypeUserStatusUpdate:
		return true
	default:
		return false
	}
}

type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and wraps it with the given type.
func NewEnvelope(msgType MessageType, payload interface{}) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:    msgType,
		Payload: payloadBytes,
	}, nil
}

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusBusy    UserStatus = "busy"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

type GeofenceTransition string

const (
	TransitionEnter GeofenceTransition = "enter"
	TransitionExit  GeofenceTransition = "exit"
)

// AuthenticatedPayload acknowledges a successful bearer-token handshake.
type AuthenticatedPayload struct {
	UserID string `json:"user_id"`
}

type AuthenticationErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TaskUpdatePayload is broadcast as task_updated (and task_assigned when the
// update carries a new assignee).
type TaskUpdatePayload struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	UpdatedBy  string `json:"updated_by"`
	AssignedTo string `json:"assigned_to,omitempty"`
	UpdatedAt  int64  `json:"updated_at"`
}

type LocationUpdatePayload struct {
	UserID    string   `json:"user_id"`
	TeamID    string   `json:"team_id,omitempty"`
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Timestamp int64    `json:"timestamp"`
}

type NotificationPayload struct {
	ID        string   `json:"id"`
	Severity  Severity `json:"severity"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	UserID    string   `json:"user_id"`
	CreatedAt int64    `json:"created_at"`
}

type UserStatusPayload struct {
	UserID   string     `json:"user_id"`
	Status   UserStatus `json:"status"`
	LastSeen int64      `json:"last_seen"`
}

type GeofencePayload struct {
	Transition   GeofenceTransition `json:"transition"`
	UserID       string             `json:"user_id"`
	TeamID       string             `json:"team_id,omitempty"`
	GeofenceID   string             `json:"geofence_id"`
	GeofenceName string             `json:"geofence_name"`
	Latitude     float64            `json:"latitude"`
	Longitude    float64            `json:"longitude"`
	Timestamp    int64              `json:"timestamp"`
}

// Outbound commands. Each is stamped with a client-generated timestamp
// before transmission; the server treats the stamp as informational only.

type JoinUserRoomCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	Timestamp int64  `json:"timestamp"`
}

type JoinTeamRoomCommand struct {
	TeamID    string `json:"team_id" validate:"required"`
	Timestamp int64  `json:"timestamp"`
}

type LeaveTeamRoomCommand struct {
	TeamID    string `json:"team_id" validate:"required"`
	Timestamp int64  `json:"timestamp"`
}

type UpdateTaskStatusCommand struct {
	TaskID     string `json:"task_id" validate:"required"`
	Status     string `json:"status" validate:"required,max=64"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type SendNotificationCommand struct {
	To        string   `json:"to" validate:"required"`
	Severity  Severity `json:"severity" validate:"required,oneof=info warning error success"`
	Title     string   `json:"title" validate:"required,max=256"`
	Message   string   `json:"message" validate:"max=4096"`
	Timestamp int64    `json:"timestamp"`
}

type UserStatusUpdateCommand struct {
	UserID    string     `json:"user_id" validate:"required"`
	Status    UserStatus `json:"status" validate:"required,oneof=online offline busy"`
	Timestamp int64      `json:"timestamp"`
}
