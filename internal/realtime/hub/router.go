package hub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/fieldsync/backend/internal/common/clock"
	commonerrors "github.com/fieldsync/backend/internal/common/errors"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/geofence"
	"github.com/fieldsync/backend/internal/presence"
	"github.com/fieldsync/backend/pkg/event"
)

type commandRouter struct {
	hub      *Hub
	presence *presence.Service
	geofence *geofence.Evaluator
	log      *logger.Logger
	clk      clock.Clock
}

func newCommandRouter(h *Hub, pres *presence.Service, geo *geofence.Evaluator, clk clock.Clock, log *logger.Logger) *commandRouter {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &commandRouter{
		hub:      h,
		presence: pres,
		geofence: geo,
		log:      log,
		clk:      clk,
	}
}

func (r *commandRouter) Route(ctx context.Context, client *Client, env *event.Envelope) error {
	switch env.Type {
	case event.TypeJoinUserRoom:
		return r.handleJoinUserRoom(client, env)
	case event.TypeJoinTeamRoom:
		return r.handleJoinTeamRoom(client, env)
	case event.TypeLeaveTeamRoom:
		return r.handleLeaveTeamRoom(client, env)
	case event.TypeUpdateTaskStatus:
		return r.handleUpdateTaskStatus(client, env)
	case event.TypeLocationUpdate:
		return r.handleLocationUpdate(client, env)
	case event.TypeSendNotification:
		return r.handleSendNotification(client, env)
	case event.TypeUserStatusUpdate:
		return r.handleUserStatusUpdate(client, env)
	default:
		r.hub.SendError(client, commonerrors.ErrUnknownMessageType)
		return commonerrors.ErrUnknownMessageType
	}
}

// join_user_room is implicit on this server: connections are keyed by user id
// the moment they register. The command only refreshes presence.
func (r *commandRouter) handleJoinUserRoom(client *Client, env *event.Envelope) error {
	var cmd event.JoinUserRoomCommand
	if err := r.decode(client, env.Payload, &cmd); err != nil {
		return err
	}
	r.presence.Touch(client.userID)
	r.log.Debugf("user room confirmed user_id=%s", client.userID)
	return nil
}

func (r *commandRouter) handleJoinTeamRoom(client *Client, env *event.Envelope) error {
	var cmd event.JoinTeamRoomCommand
	if err := r.decode(client, env.Payload, &cmd); err != nil {
		return err
	}
	r.hub.Rooms().JoinTeam(cmd.TeamID, client.userID)
	r.log.Debugf("joined team room team_id=%s user_id=%s", cmd.TeamID, client.userID)
	return nil
}

func (r *commandRouter) handleLeaveTeamRoom(client *Client, env *event.Envelope) error {
	var cmd event.LeaveTeamRoomCommand
	if err := r.decode(client, env.Payload, &cmd); err != nil {
		return err
	}
	r.hub.Rooms().LeaveTeam(cmd.TeamID, client.userID)
	return nil
}

func (r *commandRouter) handleUpdateTaskStatus(client *Client, env *event.Envelope) error {
	var cmd event.UpdateTaskStatusCommand
	if err := r.decode(client, env.Payload, &cmd); err != nil {
		return err
	}

	updatedAt := cmd.Timestamp
	if updatedAt == 0 {
		updatedAt = r.clk.Now().UnixMilli()
	}

	payload := event.TaskUpdatePayload{
		TaskID:     cmd.TaskID,
		Status:     cmd.Status,
		UpdatedBy:  client.userID,
		AssignedTo: cmd.AssignedTo,
		UpdatedAt:  updatedAt,
	}

	out, err := event.NewEnvelope(event.TypeTaskUpdated, payload)
	if err != nil {
		return err
	}
	r.fanOutToTeams(client, out)

	// A reassignment also pings the new assignee directly.
	if cmd.AssignedTo != "" && cmd.AssignedTo != client.userID {
		assigned, envErr := event.NewEnvelope(event.TypeTaskAssigned, payload)
		if envErr != nil {
			return envErr
		}
		if sendErr := r.hub.SendToUser(cmd.AssignedTo, assigned); sendErr != nil {
			r.log.Debugf("assignee not local user_id=%s: %v", cmd.AssignedTo, sendErr)
		}
		if pubErr := r.hub.publishUser(cmd.AssignedTo, assigned); pubErr != nil {
			r.log.Warnf("task assignment publish failed user_id=%s: %v", cmd.AssignedTo, pubErr)
		}
	}
	return nil
}

func (r *commandRouter) handleLocationUpdate(client *Client, env *event.Envelope) error {
	var loc event.LocationUpdatePayload
	if err := json.Unmarshal(env.Payload, &loc); err != nil {
		r.hub.SendError(client, commonerrors.ErrInvalidPayload)
		return commonerrors.ErrInvalidPayload.WithCause(err)
	}

	// Identity comes from the authenticated connection, never the payload.
	loc.UserID = client.userID
	if loc.TeamID == "" {
		loc.TeamID = client.teamID
	}
	if loc.Timestamp == 0 {
		loc.Timestamp = r.clk.Now().UnixMilli()
	}

	if err := event.Validate(loc); err != nil {
		r.hub.SendError(client, commonerrors.ErrInvalidPayload)
		return commonerrors.ErrInvalidPayload.WithCause(err)
	}

	r.presence.Touch(client.userID)

	out, err := event.NewEnvelope(event.TypeLocationUpdate, loc)
	if err != nil {
		return err
	}
	r.fanOutToTeams(client, out)

	for _, transition := range r.geofence.Evaluate(loc) {
		geoEnv, envErr := event.NewEnvelope(event.TypeGeofenceEvent, transition)
		if envErr != nil {
			continue
		}
		r.hub.BroadcastToTeam(loc.TeamID, geoEnv, "")
		if pubErr := r.hub.publishTeam(loc.TeamID, geoEnv); pubErr != nil {
			r.log.Warnf("geofence event publish failed team_id=%s: %v", loc.TeamID, pubErr)
		}
	}

	return nil
}

func (r *commandRouter) handleSendNotification(client *Client, env *event.Envelope) error {
	var cmd event.SendNotificationCommand
	if err := r.decode(client, env.Payload, &cmd); err != nil {
		return err
	}

	out, err := event.NewEnvelope(event.TypeNotification, event.NotificationPayload{
		ID:        uuid.NewString(),
		Severity:  cmd.Severity,
		Title:     cmd.Title,
		Message:   cmd.Message,
		UserID:    cmd.To,
		CreatedAt: r.clk.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	if sendErr := r.hub.SendToUser(cmd.To, out); sendErr != nil {
		// Target may live on another instance or be offline entirely.
		r.log.Debugf("notification target not local user_id=%s: %v", cmd.To, sendErr)
	}

	if pubErr := r.hub.publishUser(cmd.To, out); pubErr != nil {
		r.log.Warnf("notification publish failed user_id=%s: %v", cmd.To, pubErr)
	}
	return nil
}

func (r *commandRouter) handleUserStatusUpdate(client *Client, env *event.Envelope) error {
	var cmd event.UserStatusUpdateCommand
	if err := r.decode(client, env.Payload, &cmd); err != nil {
		return err
	}

	entry := r.presence.SetStatus(client.userID, cmd.Status)

	out, err := event.NewEnvelope(event.TypeUserStatusChanged, event.UserStatusPayload{
		UserID:   client.userID,
		Status:   cmd.Status,
		LastSeen: entry.LastSeen.UnixMilli(),
	})
	if err != nil {
		return err
	}

	r.fanOutToTeams(client, out)
	return nil
}

func (r *commandRouter) decode(client *Client, payload json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(payload, out); err != nil {
		r.hub.SendError(client, commonerrors.ErrInvalidPayload)
		return commonerrors.ErrInvalidPayload.WithCause(err)
	}
	if err := event.Validate(out); err != nil {
		r.hub.SendError(client, commonerrors.ErrInvalidPayload)
		return commonerrors.ErrInvalidPayload.WithCause(err)
	}
	return nil
}

// fanOutToTeams broadcasts locally and publishes for other instances. The
// claim team is the default audience; explicitly joined rooms extend it.
func (r *commandRouter) fanOutToTeams(client *Client, env *event.Envelope) {
	teams := make(map[string]struct{})
	if client.teamID != "" {
		teams[client.teamID] = struct{}{}
	}
	for _, teamID := range r.hub.Rooms().TeamsOf(client.userID) {
		teams[teamID] = struct{}{}
	}

	for teamID := range teams {
		r.hub.BroadcastToTeam(teamID, env, client.userID)
		if err := r.hub.publishTeam(teamID, env); err != nil {
			r.log.Warnf("event publish failed team_id=%s type=%s: %v", teamID, env.Type, err)
		}
	}
}
