package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectPublisher is the part of *nats.Conn used by the forwarder.
type SubjectPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes bus events on <prefix>.<type> subjects.
type NATSForwarder struct {
	conn   SubjectPublisher
	prefix string
	logger *zerolog.Logger
}

func NewNATSForwarder(conn SubjectPublisher, prefix string, logger *zerolog.Logger) *NATSForwarder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NATSForwarder{conn: conn, prefix: prefix, logger: logger}
}

// ConnectNATS dials url and names the connection after the app.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// Subject returns the subject an event type is forwarded to.
func (f *NATSForwarder) Subject(eventType string) string {
	if f.prefix == "" {
		return eventType
	}
	return f.prefix + "." + eventType
}

// Handle is an EventHandler.
func (f *NATSForwarder) Handle(event *Event) error {
	subject := f.Subject(event.Type)
	if err := f.conn.Publish(subject, event.Payload); err != nil {
		f.logger.Error().Err(err).Str("subject", subject).Msg("Failed to forward event to NATS")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	f.logger.Debug().Str("subject", subject).Msg("Event forwarded to NATS")
	return nil
}

// Attach subscribes the forwarder to every event type on bus.
func (f *NATSForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}
