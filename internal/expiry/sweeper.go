// Package expiry marks stale active posts as expired.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/events"
)

const component = "service.expiry"

// Store is the persistence the sweeper needs.
type Store interface {
	ListActive(ctx context.Context, kind domain.Kind) ([]domain.Post, error)
	ExpirePosts(ctx context.Context, batch []domain.Expiration) ([]domain.Expiration, error)
}

// Channel updates the published copy of an expired post.
type Channel interface {
	Update(ctx context.Context, p domain.Post) error
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Travel  int
	Favor   int
	Expired []domain.Expiration
	// ChannelFailures counts channel copies that could not be updated.
	ChannelFailures int
}

// Total is the number of posts expired by the sweep.
func (r SweepReport) Total() int {
	return r.Travel + r.Favor
}

// Sweeper implements Sweep.
type Sweeper struct {
	store   Store
	channel Channel
	bus     events.Bus
	now     func() time.Time
	loc     *time.Location
}

// New constructs a Sweeper. Day boundaries are computed in loc.
func New(store Store, channel Channel, bus events.Bus, now func() time.Time, loc *time.Location) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Sweeper{store: store, channel: channel, bus: bus, now: now, loc: loc}
}

// Rule reports whether p is due to expire at now and why.
//
// Travel plans expire once their departure day is over; favor requests once
// their urgency window has elapsed since creation.
func Rule(p domain.Post, now time.Time, loc *time.Location) (string, bool) {
	if p.Status != domain.StatusActive {
		return "", false
	}
	switch p.Kind {
	case domain.KindTravel:
		if p.DepartureDate.Before(domain.StartOfDay(now, loc)) {
			return domain.ReasonDeparturePassed, true
		}
	case domain.KindFavor:
		if !now.Before(p.CreatedAt.Add(p.Urgency.Window())) {
			return p.Urgency.ExpiryReason(), true
		}
	}
	return "", false
}

// Sweep expires every qualifying active post in one transaction and then
// updates the channel copies best-effort. Running it twice in a row expires
// nothing the second time.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	now := s.now()

	due := make(map[string]domain.Post)
	var batch []domain.Expiration
	for _, kind := range []domain.Kind{domain.KindTravel, domain.KindFavor} {
		active, err := s.store.ListActive(ctx, kind)
		if err != nil {
			s.logFail(ctx, err)
			return SweepReport{}, fmt.Errorf("list active %s: %w", kind, err)
		}
		for _, p := range active {
			reason, ok := Rule(p, now, s.loc)
			if !ok {
				continue
			}
			batch = append(batch, domain.Expiration{Kind: p.Kind, PostID: p.ID, At: now, Reason: reason})
			due[p.ID] = p
		}
	}

	var report SweepReport
	if len(batch) == 0 {
		logger.Info(ctx, component, "sweep.finished",
			slog.String("status", "skip"),
			slog.Int("expired", 0),
			slog.Duration("duration", logger.Took(start)),
		)
		return report, nil
	}

	applied, err := s.store.ExpirePosts(ctx, batch)
	if err != nil {
		s.logFail(ctx, err)
		return SweepReport{}, fmt.Errorf("expire %d posts: %w", len(batch), err)
	}
	report.Expired = applied

	for _, e := range applied {
		switch e.Kind {
		case domain.KindTravel:
			report.Travel++
		case domain.KindFavor:
			report.Favor++
		}
		p := due[e.PostID]
		p.Status = domain.StatusExpired
		p.ExpiredAt = e.At
		p.ExpiredReason = e.Reason
		if !s.syncChannel(ctx, p) {
			report.ChannelFailures++
		}
		events.Emit(ctx, s.bus, events.SubjectPostExpired, events.NewPostEvent(p, e.At))
	}

	status := "ok"
	if report.ChannelFailures > 0 {
		status = "degraded"
	}
	logger.Info(ctx, component, "sweep.finished",
		slog.String("status", status),
		slog.Int("expired", report.Total()),
		slog.Int("travel", report.Travel),
		slog.Int("favor", report.Favor),
		slog.Int("count", report.ChannelFailures),
		slog.Duration("duration", logger.Took(start)),
	)
	return report, nil
}

func (s *Sweeper) syncChannel(ctx context.Context, p domain.Post) bool {
	if s.channel == nil || p.Channel.IsZero() {
		return true
	}
	if err := s.channel.Update(ctx, p); err != nil {
		logger.Warn(ctx, component, "channel.update",
			slog.String("status", "fail"),
			slog.String("post_id", p.ID),
			logger.Err(err),
		)
		return false
	}
	return true
}

func (s *Sweeper) logFail(ctx context.Context, err error) {
	logger.Error(ctx, component, "sweep.finished",
		slog.String("status", "fail"),
		slog.String("err_code", domain.Code(err)),
		logger.Err(err),
	)
}
