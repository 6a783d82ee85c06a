// Package lifecycle moves posts out of the active state on their owner's
// request and keeps the channel copy in sync.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/events"
)

const component = "service.lifecycle"

// DefaultListLimit caps ListOwned when no limit is given.
const DefaultListLimit = 10

// Store is the persistence the manager needs.
type Store interface {
	GetPost(ctx context.Context, kind domain.Kind, id string) (domain.Post, error)
	TransitionPost(ctx context.Context, t domain.Transition, at time.Time) (bool, error)
	ListOwned(ctx context.Context, ownerID int64, kind domain.Kind, limit int) ([]domain.Post, error)
}

// Channel updates the published copy of a post.
type Channel interface {
	// Update edits the channel message in place to show the post's status.
	Update(ctx context.Context, p domain.Post) error
	// Announce posts a standalone status notice when editing is impossible.
	Announce(ctx context.Context, p domain.Post) error
}

// SyncResult reports what happened to the channel copy.
type SyncResult int

const (
	// SyncSkipped means the post was never published.
	SyncSkipped SyncResult = iota
	SyncUpdated
	SyncAnnounced
	SyncFailed
)

func (r SyncResult) String() string {
	switch r {
	case SyncUpdated:
		return "updated"
	case SyncAnnounced:
		return "announced"
	case SyncFailed:
		return "failed"
	}
	return "skipped"
}

// Confirmation is what the owner is asked before a transition is applied.
type Confirmation struct {
	Post   domain.Post
	Target domain.Status
	Text   string
}

// Outcome is the result of a confirmed transition. Sync failures are
// reported here and never as an error.
type Outcome struct {
	Post    domain.Post
	Sync    SyncResult
	SyncErr error
}

// Manager implements owner-initiated transitions.
type Manager struct {
	store   Store
	channel Channel
	bus     events.Bus
	now     func() time.Time
}

// New constructs a Manager. bus may be nil.
func New(store Store, channel Channel, bus events.Bus, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Manager{store: store, channel: channel, bus: bus, now: now}
}

// RequestTransition checks that t may be applied and returns the prompt to
// confirm it. Nothing is written.
func (m *Manager) RequestTransition(ctx context.Context, t domain.Transition) (Confirmation, error) {
	p, err := m.authorize(ctx, t)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Post: p, Target: t.Target, Text: confirmText(p, t.Target)}, nil
}

// ConfirmTransition re-validates t and applies it. The write is conditional
// on the post still being active, so a concurrent sweep or a double tap
// yields ErrInvalidState instead of a second transition.
func (m *Manager) ConfirmTransition(ctx context.Context, t domain.Transition) (Outcome, error) {
	start := time.Now()
	p, err := m.authorize(ctx, t)
	if err != nil {
		return Outcome{}, err
	}
	at := m.now()
	applied, err := m.store.TransitionPost(ctx, t, at)
	if err != nil {
		m.logFail(ctx, t, err)
		return Outcome{}, fmt.Errorf("transition %s: %w", t.PostID, err)
	}
	if !applied {
		err := fmt.Errorf("post %s is no longer active: %w", t.PostID, domain.ErrInvalidState)
		m.logFail(ctx, t, err)
		return Outcome{}, err
	}

	p.Status = t.Target
	switch t.Target {
	case domain.StatusCompleted:
		p.CompletedAt = at
	case domain.StatusCancelled:
		p.CancelledAt = at
	}

	out := Outcome{Post: p}
	out.Sync, out.SyncErr = m.sync(ctx, p)

	logger.Info(ctx, component, "post.transition",
		slog.String("status", "ok"),
		slog.String("post_id", p.ID),
		slog.String("kind", string(p.Kind)),
		slog.String("target_status", string(t.Target)),
		slog.String("sync", out.Sync.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	events.Emit(ctx, m.bus, events.StatusSubject(p.Status), events.NewPostEvent(p, at))
	return out, nil
}

// ListOwned returns the owner's posts of kind, newest first.
func (m *Manager) ListOwned(ctx context.Context, ownerID int64, kind domain.Kind, limit int) ([]domain.Post, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("kind %q: %w", kind, domain.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return m.store.ListOwned(ctx, ownerID, kind, limit)
}

func (m *Manager) authorize(ctx context.Context, t domain.Transition) (domain.Post, error) {
	if !t.Target.OwnerTarget() {
		return domain.Post{}, fmt.Errorf("target %q: %w", t.Target, domain.ErrValidation)
	}
	kind := t.Kind
	if kind == "" {
		kind, _ = domain.KindOf(t.PostID)
	}
	if !kind.Valid() {
		return domain.Post{}, fmt.Errorf("post %s: %w", t.PostID, domain.ErrNotFound)
	}
	p, err := m.store.GetPost(ctx, kind, t.PostID)
	if err != nil {
		return domain.Post{}, err
	}
	if p.OwnerID != t.ActorID {
		return domain.Post{}, fmt.Errorf("post %s owned by another user: %w", p.ID, domain.ErrForbidden)
	}
	if p.Status != domain.StatusActive {
		return domain.Post{}, fmt.Errorf("post %s is %s: %w", p.ID, p.Status, domain.ErrInvalidState)
	}
	return p, nil
}

// sync edits the channel copy, falling back to a standalone announcement.
func (m *Manager) sync(ctx context.Context, p domain.Post) (SyncResult, error) {
	if p.Channel.IsZero() || m.channel == nil {
		return SyncSkipped, nil
	}
	updErr := m.channel.Update(ctx, p)
	if updErr == nil {
		return SyncUpdated, nil
	}
	logger.Warn(ctx, component, "channel.update",
		slog.String("status", "degraded"),
		slog.String("post_id", p.ID),
		logger.Err(updErr),
	)
	annErr := m.channel.Announce(ctx, p)
	if annErr == nil {
		return SyncAnnounced, nil
	}
	err := fmt.Errorf("%w: %w", domain.ErrPublishFailed, errors.Join(updErr, annErr))
	logger.Error(ctx, component, "channel.announce",
		slog.String("status", "fail"),
		slog.String("post_id", p.ID),
		logger.Err(err),
	)
	return SyncFailed, err
}

func (m *Manager) logFail(ctx context.Context, t domain.Transition, err error) {
	logger.Warn(ctx, component, "post.transition",
		slog.String("status", "fail"),
		slog.String("post_id", t.PostID),
		slog.String("target_status", string(t.Target)),
		slog.String("err_code", domain.Code(err)),
		logger.Err(err),
	)
}

func confirmText(p domain.Post, target domain.Status) string {
	verb := "cancel"
	if target == domain.StatusCompleted {
		verb = "mark as completed"
	}
	return fmt.Sprintf("Do you want to %s %s (%s)?\nThis cannot be undone.", verb, p.ID, p.Route.String())
}
