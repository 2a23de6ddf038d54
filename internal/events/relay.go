// Package events relays fleet-bus traffic across instances of the
// coordination hub via NATS, so a horizontally-scaled deployment's other
// instances fan an event out to their own locally-connected sessions.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/streamspace-dev/ringforge/internal/logger"
)

// Config configures the optional NATS relay.
type Config struct {
	URL      string
	User     string
	Password string
	NodeID   string
}

// Relay republishes fleet-bus events to NATS and delivers events published
// by other instances back to a local callback. When Config.URL is empty,
// or the connection attempt fails, the relay degrades to a disabled no-op:
// the hub still works as a single instance, it just doesn't fan events to
// peers.
type Relay struct {
	conn    *nats.Conn
	nodeID  string
	enabled bool
	subs    []*nats.Subscription
}

// NewRelay connects to NATS if cfg.URL is set, returning a disabled relay
// otherwise or on connection failure.
func NewRelay(cfg Config) (*Relay, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.URL == "" {
		logger.Fleet().Info().Msg("NATS_URL not configured, cross-instance fleet relay disabled")
		return &Relay{enabled: false, nodeID: cfg.NodeID}, nil
	}

	opts := []nats.Option{
		nats.Name("ringforge-fleet-relay"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Fleet().Warn().Err(err).Msg("NATS relay disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Fleet().Info().Str("url", nc.ConnectedUrl()).Msg("NATS relay reconnected")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Fleet().Warn().Err(err).Str("url", cfg.URL).Msg("failed to connect fleet relay to NATS, disabling")
		return &Relay{enabled: false, nodeID: cfg.NodeID}, nil
	}

	logger.Fleet().Info().Str("url", conn.ConnectedUrl()).Msg("fleet relay connected to NATS")
	return &Relay{conn: conn, nodeID: cfg.NodeID, enabled: true}, nil
}

// Enabled reports whether the relay is actively connected.
func (r *Relay) Enabled() bool { return r.enabled }

// Publish republishes a fleet event for other instances to pick up. A
// disabled relay silently drops the call.
func (r *Relay) Publish(tenantID, fleetID, eventID, kind string, payload []byte) error {
	if !r.enabled {
		return nil
	}
	ev := RelayedEvent{
		EventID:    eventID,
		TenantID:   tenantID,
		FleetID:    fleetID,
		Kind:       kind,
		Timestamp:  time.Now(),
		OriginNode: r.nodeID,
		Payload:    payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal relayed event: %w", err)
	}
	return r.conn.Publish(FleetSubject(tenantID, fleetID), data)
}

// SubscribeFleet registers a handler invoked for every event relayed onto
// the given fleet's subject by other instances. Events originated by this
// node are dropped here, before the handler runs, by comparing OriginNode
// against this relay's node id, since NATS
// delivers a publisher's own messages back to it only if explicitly
// subscribed; ringforge always is, to keep relay logic uniform.
func (r *Relay) SubscribeFleet(tenantID, fleetID string, handler func(*RelayedEvent)) error {
	if !r.enabled {
		return nil
	}
	sub, err := r.conn.Subscribe(FleetSubject(tenantID, fleetID), func(msg *nats.Msg) {
		var ev RelayedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Fleet().Warn().Err(err).Msg("failed to unmarshal relayed fleet event")
			return
		}
		if ev.OriginNode == r.nodeID {
			return
		}
		handler(&ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe fleet subject: %w", err)
	}
	r.subs = append(r.subs, sub)
	return nil
}

// Close drains subscriptions and closes the NATS connection.
func (r *Relay) Close() {
	if !r.enabled {
		return
	}
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.conn.Drain()
	r.conn.Close()
}
