package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

type failingBus struct{ calls int }

func (b *failingBus) Publish(context.Context, string, any) error {
	b.calls++
	return errors.New("nats down")
}
func (b *failingBus) Close() error { return nil }

func TestEmitSwallowsErrors(t *testing.T) {
	bus := &failingBus{}
	Emit(context.Background(), bus, SubjectPostCreated, PostEvent{PostID: "T-1"})
	if bus.calls != 1 {
		t.Fatalf("expected one publish attempt, got %d", bus.calls)
	}
	Emit(context.Background(), nil, SubjectPostCreated, nil)
}

func TestOpenWithoutURLIsNop(t *testing.T) {
	bus, err := Open(Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := bus.(Nop); !ok {
		t.Fatalf("expected Nop bus, got %T", bus)
	}
	if err := bus.Publish(context.Background(), SubjectPostExpired, nil); err != nil {
		t.Fatalf("Nop publish: %v", err)
	}
}

func TestStatusSubject(t *testing.T) {
	cases := map[domain.Status]string{
		domain.StatusActive:    SubjectPostCreated,
		domain.StatusCompleted: SubjectPostCompleted,
		domain.StatusCancelled: SubjectPostCancelled,
		domain.StatusExpired:   SubjectPostExpired,
	}
	for status, want := range cases {
		if got := StatusSubject(status); got != want {
			t.Fatalf("StatusSubject(%s) = %s, want %s", status, got, want)
		}
	}
}

func TestNewPostEvent(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.FixedZone("MMT", 23400))
	p := domain.Post{ID: "F-1", Kind: domain.KindFavor, OwnerID: 3, Route: domain.Route{From: domain.CityBangkok, To: domain.CityYangon}, Status: domain.StatusExpired, ExpiredReason: domain.ReasonUrgentWindowElapsed}
	ev := NewPostEvent(p, at)
	if ev.Route != "BKK-RGN" || ev.Reason != domain.ReasonUrgentWindowElapsed || ev.At.Location() != time.UTC {
		t.Fatalf("unexpected event %+v", ev)
	}
}
