// Package events publishes auth lifecycle events over MQTT so other
// Inkboard services (presence, board activity) can react to session and
// identity changes without polling the auth store.
//
// Publishing is best-effort: a broker outage never fails an auth
// operation. The publisher is optional; a disabled configuration yields
// the no-op implementation.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/inkboard/inkboard-auth/internal/infrastructure/config"
)

// Topic hierarchy: inkboard/auth/{entity}/{event}
const (
	TopicSessionIssued    = "inkboard/auth/session/issued"
	TopicSessionRotated   = "inkboard/auth/session/rotated"
	TopicSessionRevoked   = "inkboard/auth/session/revoked"
	TopicIdentityPromoted = "inkboard/auth/identity/promoted"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher emits auth lifecycle events.
type Publisher interface {
	SessionIssued(subjectID, role string)
	SessionRotated(subjectID, role string)
	SessionRevoked(subjectID string)
	IdentityPromoted(guestID, userID string)
	Close()
}

// Logger is the slice of the logging interface the publisher needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Nop is a Publisher that discards everything. Used when MQTT is disabled.
type Nop struct{}

func (Nop) SessionIssued(_, _ string)    {}
func (Nop) SessionRotated(_, _ string)   {}
func (Nop) SessionRevoked(_ string)      {}
func (Nop) IdentityPromoted(_, _ string) {}
func (Nop) Close()                       {}

// MQTTPublisher publishes events to an MQTT broker.
type MQTTPublisher struct {
	client pahomqtt.Client
	qos    byte
	log    Logger
}

// Connect establishes a broker connection and returns a publisher.
// Auto-reconnect is left to the paho client; events raised while
// disconnected are dropped, matching the best-effort contract.
func Connect(cfg config.MQTTConfig, log Logger) (*MQTTPublisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to MQTT broker: timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}

	return &MQTTPublisher{
		client: client,
		qos:    byte(cfg.QoS), //nolint:gosec // QoS validated to 0..2 at startup
		log:    log,
	}, nil
}

// SessionIssued announces a freshly issued session.
func (p *MQTTPublisher) SessionIssued(subjectID, role string) {
	p.publish(TopicSessionIssued, map[string]any{
		"subject_id": subjectID,
		"role":       role,
	})
}

// SessionRotated announces a rotated session.
func (p *MQTTPublisher) SessionRotated(subjectID, role string) {
	p.publish(TopicSessionRotated, map[string]any{
		"subject_id": subjectID,
		"role":       role,
	})
}

// SessionRevoked announces an explicit logout.
func (p *MQTTPublisher) SessionRevoked(subjectID string) {
	p.publish(TopicSessionRevoked, map[string]any{
		"subject_id": subjectID,
	})
}

// IdentityPromoted announces a guest-to-registered promotion.
func (p *MQTTPublisher) IdentityPromoted(guestID, userID string) {
	p.publish(TopicIdentityPromoted, map[string]any{
		"guest_id": guestID,
		"user_id":  userID,
	})
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(uint(publishTimeout.Milliseconds())) //nolint:gosec // constant fits uint
}

// publish sends one event, logging failures instead of returning them.
func (p *MQTTPublisher) publish(topic string, payload map[string]any) {
	payload["at"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("marshalling auth event", "topic", topic, "error", err)
		return
	}

	token := p.client.Publish(topic, p.qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		p.log.Warn("publishing auth event timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn("publishing auth event", "topic", topic, "error", err)
	}
}
