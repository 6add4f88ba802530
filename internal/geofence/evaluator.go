package geofence

import (
	"math"
	"sync"

	"github.com/fieldsync/backend/internal/observability/metrics"
	"github.com/fieldsync/backend/pkg/event"
)

const earthRadiusM = 6371000.0

// Evaluator keeps per-user fence occupancy and turns location pings into
// enter/exit transitions. Occupancy is process-local: a reconnecting user
// re-enters fences on their first ping, which downstream consumers treat as
// idempotent.
type Evaluator struct {
	store *Store

	mu     sync.Mutex
	inside map[string]map[string]struct{}
}

func NewEvaluator(store *Store) *Evaluator {
	return &Evaluator{
		store:  store,
		inside: make(map[string]map[string]struct{}),
	}
}

// Evaluate returns the transitions caused by a location ping, in fence
// definition order: enters for newly containing fences, exits for departed
// ones.
func (e *Evaluator) Evaluate(loc event.LocationUpdatePayload) []event.GeofencePayload {
	fences := e.store.ForTeam(loc.TeamID)
	if len(fences) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	occupied := e.inside[loc.UserID]
	if occupied == nil {
		occupied = make(map[string]struct{})
		e.inside[loc.UserID] = occupied
	}

	var transitions []event.GeofencePayload
	for _, fence := range fences {
		contains := haversineM(loc.Latitude, loc.Longitude, fence.Lat, fence.Lng) <= fence.RadiusM
		_, wasInside := occupied[fence.ID]

		switch {
		case contains && !wasInside:
			occupied[fence.ID] = struct{}{}
			transitions = append(transitions, e.payload(event.TransitionEnter, loc, fence))
		case !contains && wasInside:
			delete(occupied, fence.ID)
			transitions = append(transitions, e.payload(event.TransitionExit, loc, fence))
		}
	}

	for _, t := range transitions {
		metrics.GeofenceTransitionsTotal.WithLabelValues(string(t.Transition)).Inc()
	}

	return transitions
}

// Forget drops a user's occupancy state, typically on disconnect.
func (e *Evaluator) Forget(userID string) {
	e.mu.Lock()
	delete(e.inside, userID)
	e.mu.Unlock()
}

func (e *Evaluator) payload(transition event.GeofenceTransition, loc event.LocationUpdatePayload, fence Geofence) event.GeofencePayload {
	return event.GeofencePayload{
		Transition:   transition,
		UserID:       loc.UserID,
		TeamID:       loc.TeamID,
		GeofenceID:   fence.ID,
		GeofenceName: fence.Name,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		Timestamp:    loc.Timestamp,
	}
}

func haversineM(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
