package event

import (
	"encoding/json"
	"testing"
)

func TestMessageTypeIsValid(t *testing.T) {
	valid := []MessageType{
		TypeAuthenticated, TypeAuthenticationError, TypeTaskUpdated,
		TypeTaskAssigned, TypeLocationUpdate, TypeNotification,
		TypeUserStatusChanged, TypeGeofenceEvent, TypeError, TypeShutdown,
		TypeJoinUserRoom, TypeJoinTeamRoom, TypeLeaveTeamRoom,
		TypeUpdateTaskStatus, TypeSendNotification, TypeUserStatusUpdate,
	}
	for _, mt := range valid {
		if !mt.IsValid() {
			t.Errorf("expected %q to be valid", mt)
		}
	}

	for _, mt := range []MessageType{"", "message", "TASK_UPDATED"} {
		if mt.IsValid() {
			t.Errorf("expected %q to be invalid", mt)
		}
	}
}

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeNotification, NotificationPayload{
		ID:       "n-1",
		Severity: SeverityWarning,
		Title:    "battery low",
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != TypeNotification {
		t.Errorf("expected type %q, got %q", TypeNotification, decoded.Type)
	}

	var payload NotificationPayload
	if err := json.Unmarshal(decoded.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.ID != "n-1" || payload.Severity != SeverityWarning {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestValidateLocationBounds(t *testing.T) {
	ok := LocationUpdatePayload{UserID: "u", Latitude: 55.75, Longitude: 37.61}
	if err := Validate(ok); err != nil {
		t.Errorf("expected valid location, got %v", err)
	}

	badLat := LocationUpdatePayload{UserID: "u", Latitude: 91, Longitude: 0}
	if err := Validate(badLat); err == nil {
		t.Error("expected latitude out of range to fail validation")
	}

	badLng := LocationUpdatePayload{UserID: "u", Latitude: 0, Longitude: -181}
	if err := Validate(badLng); err == nil {
		t.Error("expected longitude out of range to fail validation")
	}

	negAccuracy := -1.0
	badAcc := LocationUpdatePayload{UserID: "u", Accuracy: &negAccuracy}
	if err := Validate(badAcc); err == nil {
		t.Error("expected negative accuracy to fail validation")
	}
}

func TestValidateCommands(t *testing.T) {
	if err := Validate(SendNotificationCommand{
		To:       "user-2",
		Severity: SeverityInfo,
		Title:    "shift change",
	}); err != nil {
		t.Errorf("expected valid notification command, got %v", err)
	}

	if err := Validate(SendNotificationCommand{
		To:       "user-2",
		Severity: "fatal",
		Title:    "shift change",
	}); err == nil {
		t.Error("expected unknown severity to fail validation")
	}

	if err := Validate(UpdateTaskStatusCommand{Status: "done"}); err == nil {
		t.Error("expected missing task id to fail validation")
	}

	if err := Validate(UserStatusUpdateCommand{UserID: "u", Status: "away"}); err == nil {
		t.Error("expected unknown status to fail validation")
	}

	if err := Validate(JoinTeamRoomCommand{TeamID: "team-1"}); err != nil {
		t.Errorf("expected valid join command, got %v", err)
	}
}
