// Package events publishes post and connection events to NATS. Publishing is
// always a secondary effect: failures are logged by Emit and never fail the
// operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

const component = "events"

// Subjects, relative to the configured prefix.
const (
	SubjectPostCreated       = "post.created"
	SubjectPostCompleted     = "post.completed"
	SubjectPostCancelled     = "post.cancelled"
	SubjectPostExpired       = "post.expired"
	SubjectConnectionCreated = "connection.created"
)

// Bus publishes events.
type Bus interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close() error
}

// PostEvent describes a post lifecycle change.
type PostEvent struct {
	PostID  string    `json:"post_id"`
	Kind    string    `json:"kind"`
	OwnerID int64     `json:"owner_id"`
	Route   string    `json:"route"`
	Status  string    `json:"status"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// NewPostEvent builds the event for p at its current status.
func NewPostEvent(p domain.Post, at time.Time) PostEvent {
	return PostEvent{
		PostID:  p.ID,
		Kind:    string(p.Kind),
		OwnerID: p.OwnerID,
		Route:   p.Route.Key(),
		Status:  string(p.Status),
		Reason:  p.ExpiredReason,
		At:      at.UTC(),
	}
}

// StatusSubject maps a post status onto its subject.
func StatusSubject(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return SubjectPostCompleted
	case domain.StatusCancelled:
		return SubjectPostCancelled
	case domain.StatusExpired:
		return SubjectPostExpired
	}
	return SubjectPostCreated
}

// ConnectionEvent describes a new introduction.
type ConnectionEvent struct {
	ConnectionID string    `json:"connection_id"`
	PostID       string    `json:"post_id"`
	Kind         string    `json:"kind"`
	RequesterID  int64     `json:"requester_id"`
	PosterID     int64     `json:"poster_id"`
	At           time.Time `json:"at"`
}

// Emit publishes payload and logs a failure instead of returning it.
func Emit(ctx context.Context, bus Bus, subject string, payload any) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, subject, payload); err != nil {
		logger.Warn(ctx, component, "event.publish",
			slog.String("status", "fail"),
			slog.String("subject", subject),
			logger.Err(err),
		)
	}
}

// Config configures the NATS connection.
type Config struct {
	URL           string        `yaml:"url" envconfig:"NATS_URL"`
	SubjectPrefix string        `yaml:"subject_prefix" envconfig:"NATS_SUBJECT_PREFIX"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Normalize fills defaults.
func (c *Config) Normalize() {
	c.URL = strings.TrimSpace(c.URL)
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "luukyone"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Open connects to NATS when a URL is configured and returns a no-op bus otherwise.
func Open(cfg Config) (Bus, error) {
	cfg.Normalize()
	if cfg.URL == "" {
		logger.Info(context.Background(), component, "bus.disabled", slog.String("status", "skip"))
		return Nop{}, nil
	}
	opts := []nats.Option{
		nats.Name("luukyone-bot"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			attrs := []slog.Attr{slog.String("status", "degraded")}
			if err != nil {
				attrs = append(attrs, logger.Err(err))
			}
			logger.Warn(context.Background(), component, "nats.disconnected", attrs...)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(context.Background(), component, "nats.reconnected",
				slog.String("status", "ok"),
				slog.String("host", nc.ConnectedUrl()),
			)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info(context.Background(), component, "nats.closed")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	logger.Info(context.Background(), component, "bus.connected",
		slog.String("status", "ok"),
		slog.String("host", nc.ConnectedUrl()),
	)
	return &NATS{conn: nc, prefix: cfg.SubjectPrefix}, nil
}

// NATS publishes JSON payloads under prefix.subject.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

func (n *NATS) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", subject, err)
	}
	full := n.prefix + "." + subject
	if err := n.conn.Publish(full, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", full, err)
	}
	logger.Debug(ctx, component, "event.published", slog.String("subject", full))
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                              { return nil }
