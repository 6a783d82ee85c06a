package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/expiry"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store"
)

type fakeSweeper struct{ runs int }

func (f *fakeSweeper) Sweep(context.Context) (expiry.SweepReport, error) {
	f.runs++
	return expiry.SweepReport{}, nil
}

type fakePosts map[domain.Kind][]domain.Post

func (f fakePosts) ListActive(_ context.Context, kind domain.Kind) ([]domain.Post, error) {
	return f[kind], nil
}

type fakeAnnouncer struct{ texts []string }

func (f *fakeAnnouncer) AnnounceText(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type fakeSubscribers []int64

func (f fakeSubscribers) ListSubscribers(_ context.Context, topic store.Topic) ([]int64, error) {
	if topic != store.TopicDailySummary {
		return nil, errors.New("unexpected topic")
	}
	return f, nil
}

type fakeDM struct{ to []int64 }

func (f *fakeDM) Direct(_ context.Context, userID int64, _ string) error {
	f.to = append(f.to, userID)
	return nil
}

func activeTravel(from, to domain.City) domain.Post {
	return domain.Post{Kind: domain.KindTravel, Status: domain.StatusActive, Route: domain.Route{From: from, To: to}}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Timezone != "Asia/Yangon" || cfg.Sweep != "0 * * * *" || cfg.TravelSummary != "0 8 * * *" || cfg.FavorSummary != "0 20 * * *" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Location().String() != "Asia/Yangon" {
		t.Fatalf("Location = %s", cfg.Location())
	}
}

func TestConfigNormalizeRejectsBadSpec(t *testing.T) {
	cfg := Config{Sweep: "every hour"}
	if err := cfg.Normalize(); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
	cfg = Config{Timezone: "Mars/Olympus"}
	if err := cfg.Normalize(); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestSummaryAnnouncesAndMessagesSubscribers(t *testing.T) {
	ann, dm := &fakeAnnouncer{}, &fakeDM{}
	s, err := New(Config{}, Deps{
		Posts: fakePosts{domain.KindTravel: {
			activeTravel(domain.CitySingapore, domain.CityBangkok),
			activeTravel(domain.CitySingapore, domain.CityBangkok),
			activeTravel(domain.CityYangon, domain.CityBangkok),
		}},
		Announcer:   ann,
		Subscribers: fakeSubscribers{1, 2},
		Messenger:   dm,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Summary(context.Background(), domain.KindTravel); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(ann.texts) != 1 || !strings.Contains(ann.texts[0], "Singapore → Bangkok: 2") {
		t.Fatalf("unexpected announcement %v", ann.texts)
	}
	if len(dm.to) != 2 {
		t.Fatalf("expected two direct summaries, got %v", dm.to)
	}
}

func TestEmptySummaryIsSkipped(t *testing.T) {
	ann := &fakeAnnouncer{}
	s, err := New(Config{}, Deps{Posts: fakePosts{}, Announcer: ann, Messenger: &fakeDM{}, Subscribers: fakeSubscribers{1}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Summary(context.Background(), domain.KindFavor); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(ann.texts) != 0 {
		t.Fatalf("empty summary must not be announced")
	}
}

func TestRunAppliesTimeout(t *testing.T) {
	sw := &fakeSweeper{}
	s, err := New(Config{JobTimeout: 20 * time.Millisecond}, Deps{Sweeper: sw})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var deadline bool
	s.Run(context.Background(), "test.job", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})
	if !deadline {
		t.Fatalf("job context should carry a deadline")
	}
	if err := s.Sweep(context.Background()); err != nil || sw.runs != 1 {
		t.Fatalf("Sweep = %v, runs = %d", err, sw.runs)
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{}, Deps{Sweeper: &fakeSweeper{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
