// Package intro brokers one-time introductions between a requester and the
// owner of a post.
package intro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/events"
)

const component = "service.intro"

// Users looks up onboarded users.
type Users interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

// Posts looks up posts.
type Posts interface {
	GetPost(ctx context.Context, kind domain.Kind, id string) (domain.Post, error)
}

// Connections persists introduction records.
type Connections interface {
	FindConnection(ctx context.Context, requesterID, posterID int64, postID string) (domain.Connection, bool, error)
	InsertConnection(ctx context.Context, c domain.Connection) error
	DeleteConnection(ctx context.Context, id string) error
}

// Messenger delivers the two sides of an introduction.
type Messenger interface {
	// SendIntro delivers the poster's contact to the requester synchronously.
	SendIntro(ctx context.Context, requesterID int64, text string) error
	// NotifyPoster queues a notice for the poster. A nil error means the
	// notice was accepted for delivery, not that it arrived.
	NotifyPoster(ctx context.Context, posterID int64, text string) error
}

// ContactRequest asks for an introduction to the owner of PostID. PosterID
// may be zero, in which case the post owner is assumed.
type ContactRequest struct {
	RequesterID int64
	PosterID    int64
	PostID      string
	Kind        domain.Kind
}

// ContactResult is a successful introduction. NotifyErr reports a poster
// notice that could not be queued; it never fails the introduction.
type ContactResult struct {
	Connection domain.Connection
	Poster     domain.User
	Post       domain.Post
	NotifyErr  error
}

// Broker implements InitiateContact.
type Broker struct {
	users       Users
	posts       Posts
	connections Connections
	messenger   Messenger
	bus         events.Bus
	now         func() time.Time
	loc         *time.Location
}

// Options wires a Broker.
type Options struct {
	Users       Users
	Posts       Posts
	Connections Connections
	Messenger   Messenger
	Events      events.Bus
	Now         func() time.Time
	Location    *time.Location
}

// New constructs a Broker.
func New(opts Options) *Broker {
	b := &Broker{
		users:       opts.Users,
		posts:       opts.Posts,
		connections: opts.Connections,
		messenger:   opts.Messenger,
		bus:         opts.Events,
		now:         opts.Now,
		loc:         opts.Location,
	}
	if b.bus == nil {
		b.bus = events.Nop{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	return b
}

// InitiateContact records the introduction and delivers the poster's contact
// to the requester. At most one connection exists per
// (requester, poster, post). When the requester cannot be reached the
// connection is removed again and ErrPublishFailed is returned so the
// request can be retried. Closed posts yield ErrInvalidState.
func (b *Broker) InitiateContact(ctx context.Context, req ContactRequest) (ContactResult, error) {
	start := time.Now()
	res, err := b.initiate(ctx, req)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("post_id", req.PostID),
		slog.Int64("requester_id", req.RequesterID),
		slog.Int64("poster_id", res.Poster.ID),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err_code", domain.Code(err)), logger.Err(err))
		logger.Warn(ctx, component, "contact.initiate", attrs...)
		return res, err
	}
	if res.NotifyErr != nil {
		attrs[0] = slog.String("status", "degraded")
		attrs = append(attrs, slog.String("cause", res.NotifyErr.Error()))
	}
	logger.Info(ctx, component, "contact.initiate", attrs...)
	return res, nil
}

func (b *Broker) initiate(ctx context.Context, req ContactRequest) (ContactResult, error) {
	if req.PosterID != 0 && req.PosterID == req.RequesterID {
		return ContactResult{}, domain.ErrSelfContact
	}
	requester, err := b.users.GetUser(ctx, req.RequesterID)
	if err != nil {
		return ContactResult{}, fmt.Errorf("requester %d: %w", req.RequesterID, err)
	}

	kind := req.Kind
	if kind == "" {
		kind, _ = domain.KindOf(req.PostID)
	}
	if !kind.Valid() {
		return ContactResult{}, fmt.Errorf("post %s: %w", req.PostID, domain.ErrNotFound)
	}
	post, err := b.posts.GetPost(ctx, kind, req.PostID)
	if err != nil {
		return ContactResult{}, err
	}
	posterID := req.PosterID
	if posterID == 0 {
		posterID = post.OwnerID
	}
	if post.OwnerID != posterID {
		return ContactResult{}, fmt.Errorf("post %s not owned by %d: %w", post.ID, posterID, domain.ErrForbidden)
	}
	if posterID == req.RequesterID {
		return ContactResult{}, domain.ErrSelfContact
	}
	if post.Status != domain.StatusActive {
		return ContactResult{}, fmt.Errorf("post %s is %s: %w", post.ID, post.Status, domain.ErrInvalidState)
	}
	poster, err := b.users.GetUser(ctx, posterID)
	if err != nil {
		return ContactResult{}, fmt.Errorf("poster %d: %w", posterID, err)
	}
	res := ContactResult{Poster: poster, Post: post}

	if _, found, err := b.connections.FindConnection(ctx, req.RequesterID, posterID, post.ID); err != nil {
		return res, err
	} else if found {
		return res, domain.ErrAlreadyContacted
	}

	conn := domain.Connection{
		ID:          domain.NewConnectionID(),
		RequesterID: req.RequesterID,
		PosterID:    posterID,
		PostID:      post.ID,
		Kind:        kind,
		CreatedAt:   b.now(),
		Status:      domain.ConnectionIntroduced,
	}
	if err := b.connections.InsertConnection(ctx, conn); err != nil {
		return res, err
	}

	if err := b.messenger.SendIntro(ctx, req.RequesterID, IntroText(poster, post, b.loc)); err != nil {
		sendErr := fmt.Errorf("deliver introduction: %w: %w", domain.ErrPublishFailed, err)
		if derr := b.connections.DeleteConnection(ctx, conn.ID); derr != nil {
			return res, errors.Join(sendErr, fmt.Errorf("compensate connection %s: %w", conn.ID, derr))
		}
		return res, sendErr
	}
	res.Connection = conn

	if err := b.messenger.NotifyPoster(ctx, posterID, PosterNoticeText(requester, post)); err != nil {
		res.NotifyErr = err
	}
	events.Emit(ctx, b.bus, events.SubjectConnectionCreated, events.ConnectionEvent{
		ConnectionID: conn.ID,
		PostID:       conn.PostID,
		Kind:         string(conn.Kind),
		RequesterID:  conn.RequesterID,
		PosterID:     conn.PosterID,
		At:           conn.CreatedAt.UTC(),
	})
	return res, nil
}

// IntroText is the message the requester receives.
func IntroText(poster domain.User, post domain.Post, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🤝 Introduction\n\n")
	name := poster.DisplayName
	if name == "" {
		name = "The poster"
	}
	fmt.Fprintf(&b, "%s posted %s\n", name, post.ID)
	fmt.Fprintf(&b, "Route: %s\n", post.Route.String())
	if post.Kind == domain.KindTravel {
		fmt.Fprintf(&b, "Departure: %s\n", post.DepartureDate.In(loc).Format("02 Jan 2006"))
	} else {
		fmt.Fprintf(&b, "Urgency: %s\n", post.Urgency.Label())
	}
	fmt.Fprintf(&b, "\nContact: %s\n", poster.ContactLink())
	b.WriteString("\nThis introduction is sent once per post. Please be respectful and agree on the details directly.")
	return b.String()
}

// PosterNoticeText is the message the poster receives.
func PosterNoticeText(requester domain.User, post domain.Post) string {
	name := requester.DisplayName
	if name == "" {
		name = "Someone"
	}
	return fmt.Sprintf("👋 %s is interested in your post %s (%s) and received your contact: %s",
		name, post.ID, post.Route.String(), requester.ContactLink())
}
