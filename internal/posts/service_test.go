package posts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/events"
)

type fakeStore struct {
	mu      sync.Mutex
	posts   map[string]domain.Post
	refErr  error
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: map[string]domain.Post{}}
}

func (f *fakeStore) InsertPost(_ context.Context, p domain.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[p.ID] = p
	return nil
}

func (f *fakeStore) SetChannelRef(_ context.Context, _ domain.Kind, id string, ref domain.ChannelRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refErr != nil {
		return f.refErr
	}
	p := f.posts[id]
	p.Channel = ref
	f.posts[id] = p
	return nil
}

func (f *fakeStore) DeletePost(_ context.Context, _ domain.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePublisher struct {
	err     error
	deleted []domain.ChannelRef
}

func (f *fakePublisher) Publish(context.Context, domain.Post) (domain.ChannelRef, error) {
	if f.err != nil {
		return domain.ChannelRef{}, f.err
	}
	return domain.ChannelRef{ChatID: -100, MessageID: 7}, nil
}

func (f *fakePublisher) Delete(_ context.Context, ref domain.ChannelRef) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

type recordingBus struct {
	subjects []string
}

func (b *recordingBus) Publish(_ context.Context, subject string, _ any) error {
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *recordingBus) Close() error { return nil }

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func travelDraft() domain.Draft {
	return domain.Draft{
		Kind:          domain.KindTravel,
		OwnerID:       42,
		Route:         domain.Route{From: domain.CitySingapore, To: domain.CityBangkok},
		Categories:    []domain.Category{domain.Categories[0]},
		DepartureDate: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		Weight:        "5kg",
	}
}

func newService(st *fakeStore, pub *fakePublisher, bus events.Bus, created *[]domain.Post) *Service {
	return New(Options{
		Store:     st,
		Publisher: pub,
		Events:    bus,
		Now:       func() time.Time { return fixedNow },
		OnCreated: func(_ context.Context, p domain.Post) {
			if created != nil {
				*created = append(*created, p)
			}
		},
	})
}

func TestCreatePublishesAndRecordsRef(t *testing.T) {
	st, pub, bus := newFakeStore(), &fakePublisher{}, &recordingBus{}
	var created []domain.Post
	svc := newService(st, pub, bus, &created)

	res, err := svc.Create(context.Background(), travelDraft())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Published || res.PublishErr != nil {
		t.Fatalf("expected published result, got %+v", res)
	}
	if !strings.HasPrefix(res.Post.ID, "T-261016-") {
		t.Fatalf("unexpected id %q", res.Post.ID)
	}
	stored, ok := st.posts[res.Post.ID]
	if !ok {
		t.Fatalf("post not persisted")
	}
	if stored.Status != domain.StatusActive || stored.Channel.MessageID != 7 {
		t.Fatalf("unexpected stored post %+v", stored)
	}
	if len(bus.subjects) != 1 || bus.subjects[0] != events.SubjectPostCreated {
		t.Fatalf("unexpected events %v", bus.subjects)
	}
	if len(created) != 1 || created[0].ID != res.Post.ID {
		t.Fatalf("OnCreated not called with the post: %+v", created)
	}
}

func TestCreateKeepsPostWhenPublishFails(t *testing.T) {
	st, pub := newFakeStore(), &fakePublisher{err: errors.New("channel down")}
	svc := newService(st, pub, nil, nil)

	res, err := svc.Create(context.Background(), travelDraft())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Published {
		t.Fatalf("expected unpublished result")
	}
	if !errors.Is(res.PublishErr, domain.ErrPublishFailed) {
		t.Fatalf("PublishErr = %v, want ErrPublishFailed", res.PublishErr)
	}
	if p, ok := st.posts[res.Post.ID]; !ok || p.Status != domain.StatusActive || !p.Channel.IsZero() {
		t.Fatalf("post should stay active without channel ref, got %+v (ok=%v)", p, ok)
	}
}

func TestCreateCompensatesWhenRefCannotBeRecorded(t *testing.T) {
	st, pub := newFakeStore(), &fakePublisher{}
	st.refErr = domain.ErrStoreFailure
	var created []domain.Post
	svc := newService(st, pub, nil, &created)

	_, err := svc.Create(context.Background(), travelDraft())
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("err = %v, want ErrStoreFailure", err)
	}
	if len(st.posts) != 0 || len(st.deleted) != 1 {
		t.Fatalf("post should be removed, posts=%v deleted=%v", st.posts, st.deleted)
	}
	if len(pub.deleted) != 1 {
		t.Fatalf("channel message should be deleted, got %v", pub.deleted)
	}
	if len(created) != 0 {
		t.Fatalf("OnCreated must not run after compensation")
	}
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, &fakePublisher{}, nil, nil)

	d := travelDraft()
	d.Categories = nil
	if _, err := svc.Create(context.Background(), d); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(st.posts) != 0 {
		t.Fatalf("invalid draft must not be persisted")
	}
}
