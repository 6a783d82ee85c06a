package scene

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/posts"
)

const (
	testChat = int64(500)
	testUser = int64(42)
)

type recordingRenderer struct {
	mu      sync.Mutex
	prompts []Prompt
	targets []RenderTarget
	current RenderTarget
	next    int
	err     error
}

func (r *recordingRenderer) Render(_ context.Context, target RenderTarget, p Prompt) (RenderTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return RenderTarget{}, r.err
	}
	r.prompts = append(r.prompts, p)
	r.targets = append(r.targets, target)
	if !target.Edits() {
		r.next++
		target = EditAt(target.ChatID, 1000+r.next)
	}
	r.current = target
	return target, nil
}

func (r *recordingRenderer) last(t *testing.T) Prompt {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prompts) == 0 {
		t.Fatalf("nothing rendered")
	}
	return r.prompts[len(r.prompts)-1]
}

type fakeCreator struct {
	drafts    []domain.Draft
	err       error
	published bool
}

func (f *fakeCreator) Create(_ context.Context, d domain.Draft) (posts.Result, error) {
	if f.err != nil {
		return posts.Result{}, f.err
	}
	f.drafts = append(f.drafts, d)
	p := d.Post(domain.NewPostID(d.Kind, fixedNow()), fixedNow())
	return posts.Result{Post: p, Published: f.published}, nil
}

type memSettings struct {
	saved map[int64]domain.NotificationSettings
}

func (m *memSettings) NotificationSettings(_ context.Context, id int64) (domain.NotificationSettings, error) {
	if s, ok := m.saved[id]; ok {
		return s, nil
	}
	return domain.DefaultNotificationSettings, nil
}

func (m *memSettings) SetNotificationSettings(_ context.Context, id int64, s domain.NotificationSettings) error {
	m.saved[id] = s
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
}

type harness struct {
	t        *testing.T
	engine   *Engine
	renderer *recordingRenderer
	creator  *fakeCreator
	settings *memSettings
	now      time.Time
}

func newHarness(t *testing.T, idle time.Duration) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		renderer: &recordingRenderer{},
		creator:  &fakeCreator{published: true},
		settings: &memSettings{saved: map[int64]domain.NotificationSettings{}},
		now:      fixedNow(),
	}
	h.engine = New(Options{
		Renderer:    h.renderer,
		Posts:       h.creator,
		Settings:    h.settings,
		IdleTimeout: idle,
		Now:         func() time.Time { return h.now },
	})
	return h
}

func (h *harness) enter(id ID) EnterResult {
	h.t.Helper()
	res, err := h.engine.Enter(context.Background(), testChat, testUser, id, SendTo(testChat))
	if err != nil {
		h.t.Fatalf("Enter(%s): %v", id, err)
	}
	return res
}

// tap presses a button on the message the scene last rendered into.
func (h *harness) tap(data string) bool {
	h.t.Helper()
	return h.tapAt(h.renderer.current.MessageID, data)
}

func (h *harness) tapAt(messageID int, data string) bool {
	h.t.Helper()
	handled, err := h.engine.Handle(context.Background(), testChat, TapInput(testUser, data, EditAt(testChat, messageID)))
	if err != nil {
		h.t.Fatalf("tap %s: %v", data, err)
	}
	return handled
}

func (h *harness) text(s string) bool {
	h.t.Helper()
	handled, err := h.engine.Handle(context.Background(), testChat, TextInput(testUser, s))
	if err != nil {
		h.t.Fatalf("text %q: %v", s, err)
	}
	return handled
}

func hasButton(p Prompt, data string) bool {
	for _, row := range p.Rows {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestTravelFlowCommitsOnePost(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	if !hasButton(h.renderer.last(t), "travel:route:SIN-BKK") {
		t.Fatalf("route button missing: %+v", h.renderer.last(t))
	}
	h.tap("travel:route:SIN-BKK")
	h.tap("travel:date:tomorrow")
	h.tap("travel:cat:food")
	h.tap("travel:cat:medicine")
	h.tap("travel:catok")
	h.text("7 kg")

	if len(h.creator.drafts) != 1 {
		t.Fatalf("expected one committed draft, got %d", len(h.creator.drafts))
	}
	d := h.creator.drafts[0]
	if d.Kind != domain.KindTravel || d.OwnerID != testUser || d.Route.Key() != "SIN-BKK" {
		t.Fatalf("unexpected draft %+v", d)
	}
	wantDate := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	if !d.DepartureDate.Equal(wantDate) {
		t.Fatalf("departure = %v, want %v", d.DepartureDate, wantDate)
	}
	if len(d.Categories) != 2 || d.Weight != "7kg" {
		t.Fatalf("unexpected categories/weight %+v", d)
	}
	last := h.renderer.last(t)
	if !strings.Contains(last.Text, "T-261016-") {
		t.Fatalf("final prompt should carry the post id, got %q", last.Text)
	}
	if !hasButton(last, DefaultMenuButton.Data) {
		t.Fatalf("final prompt should offer the main menu")
	}
	if h.engine.InProgress(testChat) {
		t.Fatalf("scene should be finished")
	}
}

func TestTravelRejectsPastDate(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	h.tap("travel:route:RGN-SIN")
	h.text("15/10/2026")
	if !strings.Contains(h.renderer.last(t).Text, "doesn't look right") {
		t.Fatalf("expected date warning, got %q", h.renderer.last(t).Text)
	}
	h.text("20/10/2026")
	if !hasButton(h.renderer.last(t), "travel:catok") {
		t.Fatalf("expected categories step after a valid date")
	}
}

func TestEmptyCategoryConfirmDoesNotAdvance(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	h.tap("travel:route:SIN-RGN")
	h.tap("travel:date:today")
	h.tap("travel:catok")
	last := h.renderer.last(t)
	if !strings.Contains(last.Text, "Pick at least one category") {
		t.Fatalf("expected category warning, got %q", last.Text)
	}
	if !hasButton(last, "travel:catok") {
		t.Fatalf("should stay on the categories step")
	}
}

func TestFavorFlowWithConfirmation(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Favor)
	h.tap("favor:from:SIN")
	if hasButton(h.renderer.last(t), "favor:to:SIN") {
		t.Fatalf("origin must not be offered as destination")
	}
	h.tap("favor:to:RGN")
	h.tap("favor:urgency:urgent")
	h.tap("favor:cat:documents")
	h.tap("favor:catok")
	h.tap("favor:wt:3kg")
	if _, err := h.engine.Handle(context.Background(), testChat, PhotoInput(testUser, "file-1", "passport copy")); err != nil {
		t.Fatalf("photo: %v", err)
	}
	confirm := h.renderer.last(t).Text
	if !strings.Contains(confirm, "Post this favor request?") {
		t.Fatalf("expected confirmation, got %q", confirm)
	}
	if !strings.Contains(confirm, "Urgency: ") || strings.Contains(confirm, "Departure") {
		t.Fatalf("favor summary should show urgency only, got %q", confirm)
	}
	if len(h.creator.drafts) != 0 {
		t.Fatalf("nothing may be committed before confirmation")
	}
	h.tap("favor:confirm:yes")

	if len(h.creator.drafts) != 1 {
		t.Fatalf("expected one commit, got %d", len(h.creator.drafts))
	}
	d := h.creator.drafts[0]
	if d.Urgency != domain.UrgencyUrgent || d.PhotoRef != "file-1" || d.Description != "passport copy" {
		t.Fatalf("unexpected draft %+v", d)
	}
}

func TestFavorCancelAtEveryStepCommitsNothing(t *testing.T) {
	steps := []string{
		"favor:from:SIN",
		"favor:to:BKK",
		"favor:urgency:flexible",
		"favor:cat:food",
		"favor:catok",
		"favor:wt:1kg",
		"favor:skip",
	}
	for n := 0; n <= len(steps); n++ {
		h := newHarness(t, 0)
		h.enter(Favor)
		for _, s := range steps[:n] {
			h.tap(s)
		}
		if !h.tap("favor:cancel") {
			t.Fatalf("cancel after %d steps not handled", n)
		}
		if h.engine.InProgress(testChat) {
			t.Fatalf("scene still active after cancel at step %d", n)
		}
		if len(h.creator.drafts) != 0 {
			t.Fatalf("cancel at step %d committed a post", n)
		}
	}
}

func TestFavorDeclineDiscards(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Favor)
	for _, s := range []string{"favor:from:BKK", "favor:to:SIN", "favor:urgency:normal", "favor:cat:other", "favor:catok", "favor:wt:10kg", "favor:skip"} {
		h.tap(s)
	}
	h.tap("favor:confirm:no")
	if len(h.creator.drafts) != 0 || h.engine.InProgress(testChat) {
		t.Fatalf("declined favor should end without commit")
	}
}

func TestReenterReportsReplacedScene(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	h.tap("travel:route:SIN-BKK")
	res := h.enter(Favor)
	if res.Replaced != Travel {
		t.Fatalf("Replaced = %q, want travel", res.Replaced)
	}
	if id, _ := h.engine.Active(testChat); id != Favor {
		t.Fatalf("active scene = %q, want favor", id)
	}
}

func TestStrayTapIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	before := len(h.renderer.prompts)
	if h.tap("favor:from:SIN") {
		t.Fatalf("tap from another scene should not be handled")
	}
	if h.tap("travel:date:today") {
		t.Fatalf("tap for a later step should not be handled")
	}
	if len(h.renderer.prompts) != before {
		t.Fatalf("ignored taps must not render")
	}
}

func TestForeignCancelTapKeepsSession(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	h.tap("travel:route:SIN-BKK")
	before := len(h.renderer.prompts)
	if h.tap("favor:cancel") {
		t.Fatalf("cancel from another scene should not be handled")
	}
	if id, ok := h.engine.Active(testChat); !ok || id != Travel {
		t.Fatalf("travel scene should still be active, got %q %v", id, ok)
	}
	if len(h.renderer.prompts) != before {
		t.Fatalf("ignored cancel must not render")
	}
	h.tap("travel:date:today")
	if !hasButton(h.renderer.last(t), "travel:catok") {
		t.Fatalf("collected route should survive, got %+v", h.renderer.last(t))
	}
}

func TestTapOnReplacedSceneMessageIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	old := h.renderer.current.MessageID
	h.tap("travel:route:SIN-BKK")
	h.tap("travel:date:today")

	h.enter(Travel)
	if h.renderer.current.MessageID == old {
		t.Fatalf("re-entered scene should render a new message")
	}
	before := len(h.renderer.prompts)
	if h.tapAt(old, "travel:route:BKK-RGN") {
		t.Fatalf("tap on the replaced scene's message should not be handled")
	}
	if h.tapAt(old, "travel:cancel") {
		t.Fatalf("cancel on the replaced scene's message should not be handled")
	}
	if len(h.renderer.prompts) != before || !h.engine.InProgress(testChat) {
		t.Fatalf("stale taps must leave the new scene untouched")
	}
	if !h.tap("travel:route:BKK-RGN") {
		t.Fatalf("tap on the current message should be handled")
	}
}

func TestTextAtTapOnlyStepReprompts(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Travel)
	if !h.text("Bangkok please") {
		t.Fatalf("text in an active scene should be handled")
	}
	if !strings.Contains(h.renderer.last(t).Text, "choose one of the options") {
		t.Fatalf("expected re-prompt, got %q", h.renderer.last(t).Text)
	}
}

func TestNoActiveSceneIsNotHandled(t *testing.T) {
	h := newHarness(t, 0)
	if h.text("hello") {
		t.Fatalf("text without a scene should not be handled")
	}
}

func TestPublishWarningOnUnpublishedCommit(t *testing.T) {
	h := newHarness(t, 0)
	h.creator.published = false
	h.enter(Travel)
	h.tap("travel:route:BKK-RGN")
	h.tap("travel:date:today")
	h.tap("travel:cat:clothing")
	h.tap("travel:catok")
	h.tap("travel:wt:5kg")
	if !strings.Contains(h.renderer.last(t).Text, "couldn't post it to the channel") {
		t.Fatalf("expected publish warning, got %q", h.renderer.last(t).Text)
	}
}

func TestCommitFailureEndsScene(t *testing.T) {
	h := newHarness(t, 0)
	h.creator.err = domain.ErrStoreFailure
	h.enter(Travel)
	h.tap("travel:route:BKK-RGN")
	h.tap("travel:date:today")
	h.tap("travel:cat:clothing")
	h.tap("travel:catok")
	_, err := h.engine.Handle(context.Background(), testChat, TapInput(testUser, "travel:wt:5kg", h.renderer.current))
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("err = %v, want ErrStoreFailure", err)
	}
	if h.engine.InProgress(testChat) {
		t.Fatalf("failed commit should discard the scene")
	}
	if !strings.Contains(h.renderer.last(t).Text, "Something went wrong") {
		t.Fatalf("expected failure text, got %q", h.renderer.last(t).Text)
	}
}

func TestSettingsToggleIsSavedImmediately(t *testing.T) {
	h := newHarness(t, 0)
	h.enter(Settings)
	h.tap("settings:toggle:new_posts")
	got := h.settings.saved[testUser]
	if got.NewPosts || !got.DailySummary {
		t.Fatalf("unexpected saved settings %+v", got)
	}
	h.tap("settings:toggle:daily_summary")
	h.tap("settings:done")
	got = h.settings.saved[testUser]
	if got.NewPosts || got.DailySummary {
		t.Fatalf("unexpected saved settings %+v", got)
	}
	if h.engine.InProgress(testChat) {
		t.Fatalf("settings scene should end on done")
	}
}

func TestIdleSceneExpires(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	h.enter(Travel)
	h.now = h.now.Add(11 * time.Minute)
	if h.engine.InProgress(testChat) {
		t.Fatalf("idle scene should be discarded")
	}
	if h.tap("travel:route:SIN-BKK") {
		t.Fatalf("tap on an expired scene should not be handled")
	}
}

func TestCancelReportsInactive(t *testing.T) {
	h := newHarness(t, 0)
	ok, err := h.engine.Cancel(context.Background(), testChat, RenderTarget{})
	if err != nil || ok {
		t.Fatalf("Cancel without scene = %v, %v", ok, err)
	}
	h.enter(Settings)
	ok, err = h.engine.Cancel(context.Background(), testChat, RenderTarget{})
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	if !strings.Contains(h.renderer.last(t).Text, "Cancelled") {
		t.Fatalf("expected cancellation notice")
	}
}

func TestRenderFailureIsPublishFailed(t *testing.T) {
	h := newHarness(t, 0)
	h.renderer.err = errors.New("telegram down")
	_, err := h.engine.Enter(context.Background(), testChat, testUser, Travel, SendTo(testChat))
	if !errors.Is(err, domain.ErrPublishFailed) {
		t.Fatalf("err = %v, want ErrPublishFailed", err)
	}
}
