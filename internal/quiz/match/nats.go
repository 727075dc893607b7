package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultSubject is where completed-match records are published.
const DefaultSubject = "quiz.match.completed"

// NATSConfig holds connection settings for the NATS recorder.
type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default recorder configuration.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Subject:       DefaultSubject,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSRecorder publishes completed-match records to a NATS subject.
type NATSRecorder struct {
	nc      *nats.Conn
	subject string
}

// envelope is the published message shape, matching the event envelope
// downstream consumers already handle.
type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewNATSRecorder(cfg NATSConfig) (*NATSRecorder, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSRecorder{nc: nc, subject: subject}, nil
}

func (r *NATSRecorder) RecordMatch(_ context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal match record: %w", err)
	}
	msg, err := json.Marshal(envelope{
		EventID:   uuid.New().String(),
		EventType: "MatchCompleted",
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal match envelope: %w", err)
	}

	if err := r.nc.Publish(r.subject, msg); err != nil {
		return fmt.Errorf("publish match record: %w", err)
	}
	log.Info().
		Str("room_id", rec.RoomID).
		Str("subject", r.subject).
		Msg("match record published")
	return nil
}

func (r *NATSRecorder) Close() {
	r.nc.Close()
}
