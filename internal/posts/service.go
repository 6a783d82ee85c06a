// Package posts commits drafts collected by the conversation engine: it
// allocates the post id, persists the post, publishes it to the channel and
// records the channel reference.
package posts

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

const component = "service.posts"

// Store is the persistence the commit path needs.
type Store interface {
	InsertPost(ctx context.Context, p domain.Post) error
	SetChannelRef(ctx context.Context, kind domain.Kind, id string, ref domain.ChannelRef) error
	DeletePost(ctx context.Context, kind domain.Kind, id string) error
}

// Publisher sends posts to the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, p domain.Post) (domain.ChannelRef, error)
	Delete(ctx context.Context, ref domain.ChannelRef) error
}

// Result is the outcome of a commit. A post that could not be published is
// still committed; Published is false and PublishErr says why.
type Result struct {
	Post       domain.Post
	Published  bool
	PublishErr error
}

// Options wires a Service.
type Options struct {
	Store     Store
	Publisher Publisher
	Events    events.Bus
	Now       func() time.Time
	NewID     func(kind domain.Kind, now time.Time) string
	// OnCreated runs after a successful commit, e.g. to notify subscribers.
	OnCreated func(ctx context.Context, p domain.Post)
}

// Service implements the commit path.
type Service struct {
	store     Store
	publisher Publisher
	bus       events.Bus
	now       func() time.Time
	newID     func(kind domain.Kind, now time.Time) string
	onCreated func(ctx context.Context, p domain.Post)
}

// New constructs a Service.
func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		publisher: opts.Publisher,
		bus:       opts.Events,
		now:       opts.Now,
		newID:     opts.NewID,
		onCreated: opts.OnCreated,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = domain.NewPostID
	}
	if s.bus == nil {
		s.bus = events.Nop{}
	}
	return s
}

// Create validates d, persists it as an active post and publishes it.
//
// A publish failure keeps the post and is reported through Result. A failure
// to record the channel reference after a successful publish deletes the
// post again (and best-effort the channel message) so no active post is left
// pointing at an unknown message.
func (s *Service) Create(ctx context.Context, d domain.Draft) (Result, error) {
	start := time.Now()
	if err := d.Validate(); err != nil {
		return Result{}, err
	}
	now := s.now()
	p := d.Post(s.newID(d.Kind, now), now)

	if err := s.store.InsertPost(ctx, p); err != nil {
		logger.Error(ctx, component, "post.create",
			slog.String("status", "fail"),
			slog.String("post_id", p.ID),
			logger.Err(err),
		)
		return Result{}, fmt.Errorf("create %s: %w", p.ID, err)
	}

	res := Result{Post: p}
	ref, err := s.publisher.Publish(ctx, p)
	if err != nil {
		res.PublishErr = fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
		logger.Warn(ctx, component, "post.publish",
			slog.String("status", "degraded"),
			slog.String("post_id", p.ID),
			slog.String("kind", string(p.Kind)),
			logger.Err(err),
		)
	} else {
		if err := s.store.SetChannelRef(ctx, p.Kind, p.ID, ref); err != nil {
			s.compensate(ctx, p, ref, err)
			return Result{}, fmt.Errorf("record channel ref for %s: %w", p.ID, err)
		}
		res.Post.Channel = ref
		res.Published = true
	}

	status := "ok"
	if !res.Published {
		status = "degraded"
	}
	logger.Info(ctx, component, "post.created",
		slog.String("status", status),
		slog.String("post_id", p.ID),
		slog.String("kind", string(p.Kind)),
		slog.Int64("owner_id", p.OwnerID),
		slog.Bool("published", res.Published),
		slog.Duration("duration", logger.Took(start)),
	)
	events.Emit(ctx, s.bus, events.SubjectPostCreated, events.NewPostEvent(res.Post, now))
	if s.onCreated != nil {
		s.onCreated(ctx, res.Post)
	}
	return res, nil
}

func (s *Service) compensate(ctx context.Context, p domain.Post, ref domain.ChannelRef, cause error) {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("post_id", p.ID),
		logger.Err(cause),
	}
	var errs []error
	if err := s.store.DeletePost(ctx, p.Kind, p.ID); err != nil {
		errs = append(errs, err)
	}
	if err := s.publisher.Delete(ctx, ref); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		attrs = append(attrs, slog.String("cause", err.Error()))
	}
	logger.Error(ctx, component, "post.compensate", attrs...)
}
