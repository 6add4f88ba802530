package geofence

import (
	"math"
	"testing"

	"github.com/fieldsync/backend/pkg/event"
)

func depotStore() *Store {
	store := NewStore()
	store.Replace([]Geofence{
		{ID: "fence-1", Name: "depot", TeamID: "team-1", Lat: 55.75, Lng: 37.61, RadiusM: 300},
		{ID: "fence-2", Name: "yard", TeamID: "team-1", Lat: 55.70, Lng: 37.50, RadiusM: 100},
		{ID: "fence-3", Name: "other", TeamID: "team-2", Lat: 55.75, Lng: 37.61, RadiusM: 300},
	})
	return store
}

func ping(lat, lng float64) event.LocationUpdatePayload {
	return event.LocationUpdatePayload{
		UserID:    "u1",
		TeamID:    "team-1",
		Latitude:  lat,
		Longitude: lng,
		Timestamp: 1700000000000,
	}
}

func TestEnterAndExitTransitions(t *testing.T) {
	eval := NewEvaluator(depotStore())

	enters := eval.Evaluate(ping(55.75, 37.61))
	if len(enters) != 1 {
		t.Fatalf("expected 1 enter, got %v", enters)
	}
	if enters[0].Transition != event.TransitionEnter || enters[0].GeofenceID != "fence-1" {
		t.Errorf("unexpected transition: %+v", enters[0])
	}
	if enters[0].UserID != "u1" || enters[0].GeofenceName != "depot" {
		t.Errorf("payload not filled from ping and fence: %+v", enters[0])
	}

	// Staying inside produces nothing.
	if again := eval.Evaluate(ping(55.7501, 37.6101)); len(again) != 0 {
		t.Errorf("expected no transitions while staying inside, got %v", again)
	}

	exits := eval.Evaluate(ping(56.0, 38.0))
	if len(exits) != 1 || exits[0].Transition != event.TransitionExit {
		t.Fatalf("expected 1 exit, got %v", exits)
	}
}

func TestTeamScoping(t *testing.T) {
	eval := NewEvaluator(depotStore())

	loc := ping(55.75, 37.61)
	loc.TeamID = "team-2"

	transitions := eval.Evaluate(loc)
	if len(transitions) != 1 || transitions[0].GeofenceID != "fence-3" {
		t.Errorf("expected only team-2 fences considered, got %v", transitions)
	}
}

func TestNoFencesNoTransitions(t *testing.T) {
	eval := NewEvaluator(NewStore())

	if transitions := eval.Evaluate(ping(55.75, 37.61)); transitions != nil {
		t.Errorf("expected nil transitions without fences, got %v", transitions)
	}
}

func TestForgetResetsOccupancy(t *testing.T) {
	eval := NewEvaluator(depotStore())

	if first := eval.Evaluate(ping(55.75, 37.61)); len(first) != 1 {
		t.Fatalf("expected initial enter, got %v", first)
	}

	eval.Forget("u1")

	// After Forget the first ping inside re-enters.
	reenter := eval.Evaluate(ping(55.75, 37.61))
	if len(reenter) != 1 || reenter[0].Transition != event.TransitionEnter {
		t.Errorf("expected re-enter after Forget, got %v", reenter)
	}
}

func TestHaversineDistance(t *testing.T) {
	// Moscow to Saint Petersburg, roughly 634 km.
	d := haversineM(55.7558, 37.6173, 59.9311, 30.3609)
	if math.Abs(d-634000) > 5000 {
		t.Errorf("expected ~634km, got %.0fm", d)
	}

	if d := haversineM(10, 20, 10, 20); d != 0 {
		t.Errorf("expected zero distance for identical points, got %f", d)
	}
}
