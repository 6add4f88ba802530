// Package bridge fans realtime events out across service instances over NATS.
// Each instance publishes the events it originates and mirrors remote ones
// into its local hub, so a team spread over several instances still sees a
// single room.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fieldsync/backend/internal/common/constants"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/observability/metrics"
	"github.com/fieldsync/backend/pkg/event"
)

const (
	teamSubjectPrefix = "fieldsync.events.team."
	userSubjectPrefix = "fieldsync.events.user."
)

// LocalDelivery is the slice of the hub the bridge needs to mirror remote
// events into this instance.
type LocalDelivery interface {
	BroadcastToTeam(teamID string, env *event.Envelope, exceptUserID string)
	SendToUser(userID string, env *event.Envelope) error
}

type remoteEvent struct {
	Origin   string          `json:"origin"`
	Envelope *event.Envelope `json:"envelope"`
}

type Bridge struct {
	conn       *nats.Conn
	instanceID string
	local      LocalDelivery
	log        *logger.Logger
	subs       []*nats.Subscription
}

// Connect dials NATS and subscribes to the event subjects. The instance id
// stamped on published events lets subscribers drop their own echoes.
func Connect(url string, local LocalDelivery, log *logger.Logger) (*Bridge, error) {
	conn, err := nats.Connect(url,
		nats.Name("fieldsync-realtime"),
		nats.Timeout(constants.DefaultBridgeConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected url=%s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := &Bridge{
		conn:       conn,
		instanceID: uuid.NewString(),
		local:      local,
		log:        log,
	}

	teamSub, err := conn.Subscribe(teamSubjectPrefix+">", b.handleTeamMessage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe team events: %w", err)
	}
	userSub, err := conn.Subscribe(userSubjectPrefix+">", b.handleUserMessage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe user events: %w", err)
	}
	b.subs = append(b.subs, teamSub, userSub)

	log.Infof("event bridge connected url=%s instance_id=%s", conn.ConnectedUrl(), b.instanceID)
	return b, nil
}

func (b *Bridge) PublishTeam(teamID string, env *event.Envelope) error {
	return b.publish(teamSubjectPrefix+teamID, env)
}

func (b *Bridge) PublishUser(userID string, env *event.Envelope) error {
	return b.publish(userSubjectPrefix+userID, env)
}

func (b *Bridge) publish(subject string, env *event.Envelope) error {
	data, err := json.Marshal(remoteEvent{Origin: b.instanceID, Envelope: env})
	if err != nil {
		metrics.BridgePublishErrors.Inc()
		return fmt.Errorf("marshal bridge event: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		metrics.BridgePublishErrors.Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	metrics.BridgePublishesTotal.WithLabelValues(string(env.Type)).Inc()
	return nil
}

func (b *Bridge) handleTeamMessage(msg *nats.Msg) {
	env, ok := b.decode(msg)
	if !ok {
		return
	}
	teamID := strings.TrimPrefix(msg.Subject, teamSubjectPrefix)
	b.local.BroadcastToTeam(teamID, env, "")
}

func (b *Bridge) handleUserMessage(msg *nats.Msg) {
	env, ok := b.decode(msg)
	if !ok {
		return
	}
	userID := strings.TrimPrefix(msg.Subject, userSubjectPrefix)
	// The user may simply not be connected here; other instances carry them.
	_ = b.local.SendToUser(userID, env)
}

func (b *Bridge) decode(msg *nats.Msg) (*event.Envelope, bool) {
	var remote remoteEvent
	if err := json.Unmarshal(msg.Data, &remote); err != nil {
		b.log.Warnf("bridge event decode failed subject=%s: %v", msg.Subject, err)
		return nil, false
	}
	if remote.Origin == b.instanceID || remote.Envelope == nil {
		return nil, false
	}
	metrics.BridgeRemoteEventsTotal.WithLabelValues(string(remote.Envelope.Type)).Inc()
	return remote.Envelope, true
}

func (b *Bridge) Close() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.conn.Close()
}
