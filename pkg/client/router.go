package client

import (
	"sync"

	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/pkg/event"
)

// Subscription identifies a registered listener so it can be removed later.
// The zero value never matches anything.
type Subscription struct {
	kind string
	id   uint64
}

const (
	kindTaskUpdate     = "task_update"
	kindLocationUpdate = "location_update"
	kindNotification   = "notification"
	kindUserStatus     = "user_status"
	kindGeofence       = "geofence"
	kindConnect        = "connect"
	kindDisconnect     = "disconnect"
	kindError          = "error"
)

type taskUpdateListener struct {
	id uint64
	fn func(event.TaskUpdatePayload)
}

type locationUpdateListener struct {
	id uint64
	fn func(event.LocationUpdatePayload)
}

type notificationListener struct {
	id uint64
	fn func(event.NotificationPayload)
}

type userStatusListener struct {
	id uint64
	fn func(event.UserStatusPayload)
}

type geofenceListener struct {
	id uint64
	fn func(event.GeofencePayload)
}

type connectListener struct {
	id uint64
	fn func()
}

type disconnectListener struct {
	id uint64
	fn func(reason string)
}

type errorListener struct {
	id uint64
	fn func(err error)
}

// EventRouter fans incoming events out to registered listeners. Listeners
// run synchronously in registration order; a panicking listener is recovered
// and logged so its neighbors still run.
type EventRouter struct {
	mu     sync.RWMutex
	nextID uint64
	log    *logger.Logger

	taskUpdates     []taskUpdateListener
	locationUpdates []locationUpdateListener
	notifications   []notificationListener
	userStatuses    []userStatusListener
	geofences       []geofenceListener
	connects        []connectListener
	disconnects     []disconnectListener
	errors          []errorListener
}

func NewEventRouter(log *logger.Logger) *EventRouter {
	return &EventRouter{log: log}
}

func (r *EventRouter) OnTaskUpdate(fn func(event.TaskUpdatePayload)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.taskUpdates = append(r.taskUpdates, taskUpdateListener{id: id, fn: fn})
	return Subscription{kind: kindTaskUpdate, id: id}
}

func (r *EventRouter) OnLocationUpdate(fn func(event.LocationUpdatePayload)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.locationUpdates = append(r.locationUpdates, locationUpdateListener{id: id, fn: fn})
	return Subscription{kind: kindLocationUpdate, id: id}
}

func (r *EventRouter) OnNotification(fn func(event.NotificationPayload)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.notifications = append(r.notifications, notificationListener{id: id, fn: fn})
	return Subscription{kind: kindNotification, id: id}
}

func (r *EventRouter) OnUserStatus(fn func(event.UserStatusPayload)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.userStatuses = append(r.userStatuses, userStatusListener{id: id, fn: fn})
	return Subscription{kind: kindUserStatus, id: id}
}

func (r *EventRouter) OnGeofenceEvent(fn func(event.GeofencePayload)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.geofences = append(r.geofences, geofenceListener{id: id, fn: fn})
	return Subscription{kind: kindGeofence, id: id}
}

func (r *EventRouter) OnConnect(fn func()) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.connects = append(r.connects, connectListener{id: id, fn: fn})
	return Subscription{kind: kindConnect, id: id}
}

func (r *EventRouter) OnDisconnect(fn func(reason string)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.disconnects = append(r.disconnects, disconnectListener{id: id, fn: fn})
	return Subscription{kind: kindDisconnect, id: id}
}

func (r *EventRouter) OnError(fn func(err error)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextIDLocked()
	r.errors = append(r.errors, errorListener{id: id, fn: fn})
	return Subscription{kind: kindError, id: id}
}

// Remove unregisters a listener. Removing an unknown or already-removed
// subscription is a no-op.
func (r *EventRouter) Remove(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch sub.kind {
	case kindTaskUpdate:
		for i, l := range r.taskUpdates {
			if l.id == sub.id {
				r.taskUpdates = append(r.taskUpdates[:i], r.taskUpdates[i+1:]...)
				return
			}
		}
	case kindLocationUpdate:
		for i, l := range r.locationUpdates {
			if l.id == sub.id {
				r.locationUpdates = append(r.locationUpdates[:i], r.locationUpdates[i+1:]...)
				return
			}
		}
	case kindNotification:
		for i, l := range r.notifications {
			if l.id == sub.id {
				r.notifications = append(r.notifications[:i], r.notifications[i+1:]...)
				return
			}
		}
	case kindUserStatus:
		for i, l := range r.userStatuses {
			if l.id == sub.id {
				r.userStatuses = append(r.userStatuses[:i], r.userStatuses[i+1:]...)
				return
			}
		}
	case kindGeofence:
		for i, l := range r.geofences {
			if l.id == sub.id {
				r.geofences = append(r.geofences[:i], r.geofences[i+1:]...)
				return
			}
		}
	case kindConnect:
		for i, l := range r.connects {
			if l.id == sub.id {
				r.connects = append(r.connects[:i], r.connects[i+1:]...)
				return
			}
		}
	case kindDisconnect:
		for i, l := range r.disconnects {
			if l.id == sub.id {
				r.disconnects = append(r.disconnects[:i], r.disconnects[i+1:]...)
				return
			}
		}
	case kindError:
		for i, l := range r.errors {
			if l.id == sub.id {
				r.errors = append(r.errors[:i], r.errors[i+1:]...)
				return
			}
		}
	}
}

// RemoveAll drops every registered listener.
func (r *EventRouter) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.taskUpdates = nil
	r.locationUpdates = nil
	r.notifications = nil
	r.userStatuses = nil
	r.geofences = nil
	r.connects = nil
	r.disconnects = nil
	r.errors = nil
}

func (r *EventRouter) nextIDLocked() uint64 {
	r.nextID++
	return r.nextID
}

func (r *EventRouter) dispatchTaskUpdate(p event.TaskUpdatePayload) {
	r.mu.RLock()
	listeners := append([]taskUpdateListener(nil), r.taskUpdates...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindTaskUpdate, func() { l.fn(p) })
	}
}

func (r *EventRouter) dispatchLocationUpdate(p event.LocationUpdatePayload) {
	r.mu.RLock()
	listeners := append([]locationUpdateListener(nil), r.locationUpdates...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindLocationUpdate, func() { l.fn(p) })
	}
}

func (r *EventRouter) dispatchNotification(p event.NotificationPayload) {
	r.mu.RLock()
	listeners := append([]notificationListener(nil), r.notifications...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindNotification, func() { l.fn(p) })
	}
}

func (r *EventRouter) dispatchUserStatus(p event.UserStatusPayload) {
	r.mu.RLock()
	listeners := append([]userStatusListener(nil), r.userStatuses...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindUserStatus, func() { l.fn(p) })
	}
}

func (r *EventRouter) dispatchGeofence(p event.GeofencePayload) {
	r.mu.RLock()
	listeners := append([]geofenceListener(nil), r.geofences...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindGeofence, func() { l.fn(p) })
	}
}

func (r *EventRouter) dispatchConnect() {
	r.mu.RLock()
	listeners := append([]connectListener(nil), r.connects...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindConnect, l.fn)
	}
}

func (r *EventRouter) dispatchDisconnect(reason string) {
	r.mu.RLock()
	listeners := append([]disconnectListener(nil), r.disconnects...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindDisconnect, func() { l.fn(reason) })
	}
}

func (r *EventRouter) dispatchError(err error) {
	r.mu.RLock()
	listeners := append([]errorListener(nil), r.errors...)
	r.mu.RUnlock()
	for _, l := range listeners {
		r.invoke(kindError, func() { l.fn(err) })
	}
}

func (r *EventRouter) invoke(kind string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("listener panic kind=%s: %v", kind, rec)
		}
	}()
	fn()
}
