package hub

import (
	"sort"
	"testing"
)

func TestRoomsJoinLeave(t *testing.T) {
	rooms := NewRooms()

	rooms.JoinTeam("team-1", "u1")
	rooms.JoinTeam("team-1", "u2")
	rooms.JoinTeam("team-2", "u1")

	members := rooms.Members("team-1")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "u1" || members[1] != "u2" {
		t.Errorf("unexpected team-1 members: %v", members)
	}

	teams := rooms.TeamsOf("u1")
	sort.Strings(teams)
	if len(teams) != 2 || teams[0] != "team-1" || teams[1] != "team-2" {
		t.Errorf("unexpected teams for u1: %v", teams)
	}

	rooms.LeaveTeam("team-1", "u1")
	if teams := rooms.TeamsOf("u1"); len(teams) != 1 || teams[0] != "team-2" {
		t.Errorf("expected u1 only in team-2, got %v", teams)
	}
}

func TestRoomsJoinIsIdempotent(t *testing.T) {
	rooms := NewRooms()

	rooms.JoinTeam("team-1", "u1")
	rooms.JoinTeam("team-1", "u1")

	if members := rooms.Members("team-1"); len(members) != 1 {
		t.Errorf("expected single membership, got %v", members)
	}
}

func TestRoomsLeaveUnknownIsNoop(t *testing.T) {
	rooms := NewRooms()

	rooms.LeaveTeam("team-1", "ghost")
	rooms.JoinTeam("team-1", "u1")
	rooms.LeaveTeam("team-1", "ghost")

	if members := rooms.Members("team-1"); len(members) != 1 {
		t.Errorf("expected u1 unaffected, got %v", members)
	}
}

func TestRoomsLeaveAll(t *testing.T) {
	rooms := NewRooms()

	rooms.JoinTeam("team-1", "u1")
	rooms.JoinTeam("team-2", "u1")
	rooms.JoinTeam("team-1", "u2")

	rooms.LeaveAll("u1")

	if teams := rooms.TeamsOf("u1"); len(teams) != 0 {
		t.Errorf("expected u1 out of every room, got %v", teams)
	}
	if members := rooms.Members("team-1"); len(members) != 1 || members[0] != "u2" {
		t.Errorf("expected u2 to remain in team-1, got %v", members)
	}
	if members := rooms.Members("team-2"); len(members) != 0 {
		t.Errorf("expected team-2 empty, got %v", members)
	}
}
