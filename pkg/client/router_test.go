package client

import (
	"errors"
	"testing"

	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/pkg/event"
)

func newTestRouter(t *testing.T) *EventRouter {
	t.Helper()
	log, err := logger.New("", "client-test", "ERROR")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return NewEventRouter(log)
}

func TestDispatchOrder(t *testing.T) {
	router := newTestRouter(t)

	var order []int
	router.OnTaskUpdate(func(event.TaskUpdatePayload) { order = append(order, 1) })
	router.OnTaskUpdate(func(event.TaskUpdatePayload) { order = append(order, 2) })
	router.OnTaskUpdate(func(event.TaskUpdatePayload) { order = append(order, 3) })

	router.dispatchTaskUpdate(event.TaskUpdatePayload{TaskID: "t-1"})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected listeners in registration order, got %v", order)
	}
}

func TestRemoveListener(t *testing.T) {
	router := newTestRouter(t)

	var first, second int
	sub := router.OnNotification(func(event.NotificationPayload) { first++ })
	router.OnNotification(func(event.NotificationPayload) { second++ })

	router.dispatchNotification(event.NotificationPayload{ID: "n-1"})
	router.Remove(sub)
	router.dispatchNotification(event.NotificationPayload{ID: "n-2"})

	if first != 1 {
		t.Errorf("expected removed listener to fire once, got %d", first)
	}
	if second != 2 {
		t.Errorf("expected surviving listener to fire twice, got %d", second)
	}
}

func TestRemoveUnknownSubscriptionIsNoop(t *testing.T) {
	router := newTestRouter(t)

	var calls int
	router.OnConnect(func() { calls++ })

	router.Remove(Subscription{})
	router.Remove(Subscription{kind: kindConnect, id: 9999})
	router.dispatchConnect()

	if calls != 1 {
		t.Errorf("expected listener to survive unknown removals, got %d calls", calls)
	}
}

func TestDuplicateListenersAllowed(t *testing.T) {
	router := newTestRouter(t)

	var calls int
	fn := func(event.UserStatusPayload) { calls++ }
	a := router.OnUserStatus(fn)
	b := router.OnUserStatus(fn)
	if a == b {
		t.Fatal("expected distinct subscriptions for duplicate registrations")
	}

	router.dispatchUserStatus(event.UserStatusPayload{UserID: "u"})
	if calls != 2 {
		t.Errorf("expected both registrations to fire, got %d", calls)
	}

	router.Remove(a)
	router.dispatchUserStatus(event.UserStatusPayload{UserID: "u"})
	if calls != 3 {
		t.Errorf("expected one registration left, got %d total calls", calls)
	}
}

func TestPanicIsolation(t *testing.T) {
	router := newTestRouter(t)

	var after bool
	router.OnGeofenceEvent(func(event.GeofencePayload) { panic("listener bug") })
	router.OnGeofenceEvent(func(event.GeofencePayload) { after = true })

	router.dispatchGeofence(event.GeofencePayload{GeofenceID: "g-1"})

	if !after {
		t.Error("expected listener after the panicking one to still run")
	}
}

func TestRemoveAll(t *testing.T) {
	router := newTestRouter(t)

	var calls int
	router.OnConnect(func() { calls++ })
	router.OnDisconnect(func(string) { calls++ })
	router.OnError(func(error) { calls++ })
	router.OnLocationUpdate(func(event.LocationUpdatePayload) { calls++ })

	router.RemoveAll()

	router.dispatchConnect()
	router.dispatchDisconnect("gone")
	router.dispatchError(errors.New("boom"))
	router.dispatchLocationUpdate(event.LocationUpdatePayload{})

	if calls != 0 {
		t.Errorf("expected no listeners after RemoveAll, got %d calls", calls)
	}
}
