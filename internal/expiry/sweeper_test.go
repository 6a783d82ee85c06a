package expiry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/database"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store/migrations"
)

var yangon = time.FixedZone("MMT", 6*3600+1800)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "sweep.db")}
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.RunMigrations(db, cfg.Driver, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func TestRule(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, yangon)
	today := domain.StartOfDay(now, yangon)
	cases := []struct {
		name   string
		post   domain.Post
		reason string
		due    bool
	}{
		{"travel yesterday", domain.Post{Kind: domain.KindTravel, Status: domain.StatusActive, DepartureDate: today.AddDate(0, 0, -1)}, domain.ReasonDeparturePassed, true},
		{"travel today", domain.Post{Kind: domain.KindTravel, Status: domain.StatusActive, DepartureDate: today}, "", false},
		{"travel tomorrow", domain.Post{Kind: domain.KindTravel, Status: domain.StatusActive, DepartureDate: today.AddDate(0, 0, 1)}, "", false},
		{"urgent elapsed", domain.Post{Kind: domain.KindFavor, Status: domain.StatusActive, Urgency: domain.UrgencyUrgent, CreatedAt: now.Add(-72 * time.Hour)}, domain.ReasonUrgentWindowElapsed, true},
		{"urgent fresh", domain.Post{Kind: domain.KindFavor, Status: domain.StatusActive, Urgency: domain.UrgencyUrgent, CreatedAt: now.Add(-71 * time.Hour)}, "", false},
		{"normal elapsed", domain.Post{Kind: domain.KindFavor, Status: domain.StatusActive, Urgency: domain.UrgencyNormal, CreatedAt: now.AddDate(0, 0, -8)}, domain.ReasonNormalWindowElapsed, true},
		{"flexible elapsed", domain.Post{Kind: domain.KindFavor, Status: domain.StatusActive, Urgency: domain.UrgencyFlexible, CreatedAt: now.AddDate(0, 0, -14)}, domain.ReasonFlexibleWindowElapsed, true},
		{"already completed", domain.Post{Kind: domain.KindTravel, Status: domain.StatusCompleted, DepartureDate: today.AddDate(0, 0, -3)}, "", false},
	}
	for _, tc := range cases {
		reason, due := Rule(tc.post, now, yangon)
		if due != tc.due || reason != tc.reason {
			t.Fatalf("%s: got (%q, %v), want (%q, %v)", tc.name, reason, due, tc.reason, tc.due)
		}
	}
}

type channelRecorder struct {
	updated []string
	err     error
}

func (c *channelRecorder) Update(_ context.Context, p domain.Post) error {
	if c.err != nil {
		return c.err
	}
	c.updated = append(c.updated, p.ID+":"+p.ExpiredReason)
	return nil
}

func insert(t *testing.T, st *store.Store, p domain.Post) {
	t.Helper()
	ctx := context.Background()
	if err := st.InsertPost(ctx, p); err != nil {
		t.Fatalf("insert %s: %v", p.ID, err)
	}
	if !p.Channel.IsZero() {
		if err := st.SetChannelRef(ctx, p.Kind, p.ID, p.Channel); err != nil {
			t.Fatalf("channel ref %s: %v", p.ID, err)
		}
	}
}

func travelPost(id string, departure, created time.Time) domain.Post {
	return domain.Post{
		ID:            id,
		Kind:          domain.KindTravel,
		OwnerID:       1,
		Categories:    []domain.Category{domain.CategoryFood},
		Route:         domain.Route{From: domain.CitySingapore, To: domain.CityBangkok},
		DepartureDate: departure,
		Status:        domain.StatusActive,
		CreatedAt:     created,
	}
}

func favorPost(id string, u domain.Urgency, created time.Time) domain.Post {
	return domain.Post{
		ID:         id,
		Kind:       domain.KindFavor,
		OwnerID:    2,
		Categories: []domain.Category{domain.CategoryOther},
		Route:      domain.Route{From: domain.CityYangon, To: domain.CitySingapore},
		Urgency:    u,
		Status:     domain.StatusActive,
		CreatedAt:  created,
	}
}

func TestSweepExpiresOnceAndSyncsChannel(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, yangon)
	today := domain.StartOfDay(now, yangon)

	stale := travelPost("T-261010-AAAAAA", today.AddDate(0, 0, -1), now.AddDate(0, 0, -6))
	stale.Channel = domain.ChannelRef{ChatID: -100, MessageID: 11}
	fresh := travelPost("T-261016-BBBBBB", today.AddDate(0, 0, 1), now)
	favor := favorPost("F-261001-CCCCCC", domain.UrgencyNormal, now.AddDate(0, 0, -15))
	for _, p := range []domain.Post{stale, fresh, favor} {
		insert(t, st, p)
	}

	ch := &channelRecorder{}
	sw := New(st, ch, nil, func() time.Time { return now }, yangon)

	report, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Travel != 1 || report.Favor != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(ch.updated) != 1 || ch.updated[0] != "T-261010-AAAAAA:departure_passed" {
		t.Fatalf("unexpected channel updates %v", ch.updated)
	}

	got, err := st.GetPost(ctx, domain.KindFavor, favor.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Status != domain.StatusExpired || got.ExpiredReason != domain.ReasonNormalWindowElapsed {
		t.Fatalf("favor not expired: %+v", got)
	}
	if got, _ := st.GetPost(ctx, domain.KindTravel, fresh.ID); got.Status != domain.StatusActive {
		t.Fatalf("fresh travel plan must stay active, got %s", got.Status)
	}

	again, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if again.Total() != 0 {
		t.Fatalf("second sweep expired %d posts", again.Total())
	}
}

func TestSweepChannelFailureIsCounted(t *testing.T) {
	st := newStore(t)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	p := favorPost("F-261001-DDDDDD", domain.UrgencyUrgent, now.AddDate(0, 0, -4))
	p.Channel = domain.ChannelRef{ChatID: -100, MessageID: 5}
	insert(t, st, p)

	sw := New(st, &channelRecorder{err: errors.New("message can't be edited")}, nil, func() time.Time { return now }, time.UTC)
	report, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("channel failure must not fail the sweep: %v", err)
	}
	if report.Favor != 1 || report.ChannelFailures != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}
