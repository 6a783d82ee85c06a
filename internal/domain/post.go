package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates travel plans from favor requests.
type Kind string

const (
	KindTravel Kind = "travel"
	KindFavor  Kind = "favor"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTravel || k == KindFavor
}

// Prefix is the postId prefix for the kind.
func (k Kind) Prefix() string {
	if k == KindFavor {
		return "F"
	}
	return "T"
}

// KindOf derives the kind from a postId prefix.
func KindOf(postID string) (Kind, bool) {
	switch {
	case strings.HasPrefix(postID, "T-"):
		return KindTravel, true
	case strings.HasPrefix(postID, "F-"):
		return KindFavor, true
	}
	return "", false
}

// Status is the post lifecycle status.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// OwnerTarget reports whether an owner may request a transition into s.
func (s Status) OwnerTarget() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Expiry reasons recorded on expired posts.
const (
	ReasonDeparturePassed       = "departure_passed"
	ReasonUrgentWindowElapsed   = "urgent_window_elapsed"
	ReasonNormalWindowElapsed   = "normal_window_elapsed"
	ReasonFlexibleWindowElapsed = "flexible_window_elapsed"
)

// ChannelRef locates the published copy of a post in the broadcast channel.
type ChannelRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the post was never published.
func (r ChannelRef) IsZero() bool {
	return r.ChatID == 0 || r.MessageID == 0
}

// Post is a committed travel plan or favor request.
type Post struct {
	ID         string
	Kind       Kind
	OwnerID    int64
	Route      Route
	Categories []Category
	// DepartureDate is set for travel plans (midnight, bot timezone).
	DepartureDate time.Time
	// Urgency is set for favor requests.
	Urgency     Urgency
	Weight      string
	Description string
	PhotoRef    string

	Status        Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
	CompletedAt   time.Time
	CancelledAt   time.Time
	ExpiredAt     time.Time
	ExpiredReason string
	Channel       ChannelRef
}

// Draft is a post as collected by a conversation, before commit.
type Draft struct {
	Kind          Kind
	OwnerID       int64
	Route         Route
	Categories    []Category
	DepartureDate time.Time
	Urgency       Urgency
	Weight        string
	Description   string
	PhotoRef      string
}

// Validate checks the invariants a draft must satisfy at commit time.
func (d Draft) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("kind %q: %w", d.Kind, ErrValidation)
	}
	if d.OwnerID == 0 {
		return fmt.Errorf("owner missing: %w", ErrValidation)
	}
	if !d.Route.Valid() {
		return fmt.Errorf("route %s: %w", d.Route.Key(), ErrValidation)
	}
	if len(d.Categories) == 0 {
		return fmt.Errorf("empty category set: %w", ErrValidation)
	}
	for _, c := range d.Categories {
		if !c.Valid() {
			return fmt.Errorf("category %q: %w", c, ErrValidation)
		}
	}
	switch d.Kind {
	case KindTravel:
		if d.DepartureDate.IsZero() {
			return fmt.Errorf("departure date missing: %w", ErrValidation)
		}
	case KindFavor:
		if !d.Urgency.Valid() {
			return fmt.Errorf("urgency %q: %w", d.Urgency, ErrValidation)
		}
	}
	return nil
}

// Post materializes the draft as an active post.
func (d Draft) Post(id string, now time.Time) Post {
	p := Post{
		ID:            id,
		Kind:          d.Kind,
		OwnerID:       d.OwnerID,
		Route:         d.Route,
		Categories:    append([]Category(nil), d.Categories...),
		DepartureDate: d.DepartureDate,
		Urgency:       d.Urgency,
		Weight:        d.Weight,
		Description:   d.Description,
		PhotoRef:      d.PhotoRef,
		Status:        StatusActive,
		CreatedAt:     now,
	}
	p.ExpiresAt = p.computeExpiry()
	return p
}

// computeExpiry returns the instant the sweeper starts treating the post as
// stale: the day after departure for travel, created+window for favors.
func (p Post) computeExpiry() time.Time {
	if p.Kind == KindTravel {
		return p.DepartureDate.AddDate(0, 0, 1)
	}
	return p.CreatedAt.Add(p.Urgency.Window())
}

// StampedAt returns the timestamp field matching the post's terminal status.
func (p Post) StampedAt() time.Time {
	switch p.Status {
	case StatusCompleted:
		return p.CompletedAt
	case StatusCancelled:
		return p.CancelledAt
	case StatusExpired:
		return p.ExpiredAt
	}
	return time.Time{}
}

// Transition is an owner-initiated status change.
type Transition struct {
	PostID  string
	Kind    Kind
	ActorID int64
	Target  Status
}

// Expiration is one sweeper update.
type Expiration struct {
	Kind   Kind
	PostID string
	At     time.Time
	Reason string
}
