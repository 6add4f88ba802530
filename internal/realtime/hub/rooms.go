package hub

import (
	"sync"

	"github.com/fieldsync/backend/internal/observability/metrics"
)

// Rooms tracks team room membership. User rooms need no bookkeeping: every
// connection is addressable by its user id through the hub's client map.
type Rooms struct {
	mu      sync.RWMutex
	byTeam  map[string]map[string]struct{}
	teamsOf map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		byTeam:  make(map[string]map[string]struct{}),
		teamsOf: make(map[string]map[string]struct{}),
	}
}

func (r *Rooms) JoinTeam(teamID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byTeam[teamID] == nil {
		r.byTeam[teamID] = make(map[string]struct{})
	}
	if _, ok := r.byTeam[teamID][userID]; ok {
		return
	}
	r.byTeam[teamID][userID] = struct{}{}

	if r.teamsOf[userID] == nil {
		r.teamsOf[userID] = make(map[string]struct{})
	}
	r.teamsOf[userID][teamID] = struct{}{}

	metrics.RealtimeRoomMembers.WithLabelValues("team").Inc()
}

func (r *Rooms) LeaveTeam(teamID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveTeamLocked(teamID, userID)
}

// LeaveAll removes the user from every team room, called on disconnect.
func (r *Rooms) LeaveAll(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for teamID := range r.teamsOf[userID] {
		r.leaveTeamLocked(teamID, userID)
	}
}

func (r *Rooms) leaveTeamLocked(teamID, userID string) {
	members, ok := r.byTeam[teamID]
	if !ok {
		return
	}
	if _, ok := members[userID]; !ok {
		return
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(r.byTeam, teamID)
	}

	delete(r.teamsOf[userID], teamID)
	if len(r.teamsOf[userID]) == 0 {
		delete(r.teamsOf, userID)
	}

	metrics.RealtimeRoomMembers.WithLabelValues("team").Dec()
}

func (r *Rooms) Members(teamID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.byTeam[teamID]))
	for userID := range r.byTeam[teamID] {
		members = append(members, userID)
	}
	return members
}

func (r *Rooms) TeamsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	teams := make([]string, 0, len(r.teamsOf[userID]))
	for teamID := range r.teamsOf[userID] {
		teams = append(teams, teamID)
	}
	return teams
}
