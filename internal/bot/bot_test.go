package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/intro"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/lifecycle"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/scene"
)

// recorder captures what handlers send instead of calling Telegram.
type recorder struct {
	tele.Context
	sent     []string
	markups  []*tele.ReplyMarkup
	answered []string
}

func (r *recorder) Send(what interface{}, opts ...interface{}) error {
	r.record(what, opts)
	return nil
}

func (r *recorder) EditOrSend(what interface{}, opts ...interface{}) error {
	r.record(what, opts)
	return nil
}

func (r *recorder) Respond(resp ...*tele.CallbackResponse) error {
	text := ""
	if len(resp) > 0 && resp[0] != nil {
		text = resp[0].Text
	}
	r.answered = append(r.answered, text)
	return nil
}

func (r *recorder) record(what interface{}, opts []interface{}) {
	s, _ := what.(string)
	r.sent = append(r.sent, s)
	var markup *tele.ReplyMarkup
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			markup = so.ReplyMarkup
		}
	}
	r.markups = append(r.markups, markup)
}

func (r *recorder) last(t *testing.T) string {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return r.sent[len(r.sent)-1]
}

func newRecorder(t *testing.T, upd tele.Update) *recorder {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return &recorder{Context: b.NewContext(upd)}
}

func startUpdate(payload string) tele.Update {
	text := "/start"
	if payload != "" {
		text += " " + payload
	}
	return tele.Update{ID: 1, Message: &tele.Message{
		ID:      10,
		Sender:  &tele.User{ID: 7, FirstName: "Aye", Username: "aye"},
		Chat:    &tele.Chat{ID: 7, Type: tele.ChatPrivate},
		Text:    text,
		Payload: payload,
	}}
}

func tapUpdate(unique, data string) tele.Update {
	return tele.Update{ID: 2, Callback: &tele.Callback{
		ID:     "cb",
		Sender: &tele.User{ID: 7},
		Unique: unique,
		Data:   data,
		Message: &tele.Message{
			ID:   55,
			Chat: &tele.Chat{ID: 7, Type: tele.ChatPrivate},
		},
	}}
}

type fakeUsers struct {
	users   map[int64]domain.User
	touched int
	err     error
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpsertUser(_ context.Context, u domain.User) error {
	if f.users == nil {
		f.users = map[int64]domain.User{}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUsers) TouchUser(context.Context, int64, time.Time) error {
	f.touched++
	return nil
}

type fakeMembership struct {
	role tele.MemberStatus
	err  error
}

func (f fakeMembership) ChatMemberOf(_, _ tele.Recipient) (*tele.ChatMember, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tele.ChatMember{Role: f.role}, nil
}

type fakeContacts struct {
	reqs []intro.ContactRequest
	err  error
}

func (f *fakeContacts) InitiateContact(_ context.Context, req intro.ContactRequest) (intro.ContactResult, error) {
	f.reqs = append(f.reqs, req)
	return intro.ContactResult{}, f.err
}

type fakeLifecycle struct {
	owned     []domain.Post
	requested []domain.Transition
	confirmed []domain.Transition
	err       error
	sync      lifecycle.SyncResult
}

func (f *fakeLifecycle) RequestTransition(_ context.Context, t domain.Transition) (lifecycle.Confirmation, error) {
	f.requested = append(f.requested, t)
	if f.err != nil {
		return lifecycle.Confirmation{}, f.err
	}
	return lifecycle.Confirmation{Target: t.Target, Text: "Sure?"}, nil
}

func (f *fakeLifecycle) ConfirmTransition(_ context.Context, t domain.Transition) (lifecycle.Outcome, error) {
	f.confirmed = append(f.confirmed, t)
	if f.err != nil {
		return lifecycle.Outcome{}, f.err
	}
	return lifecycle.Outcome{Post: domain.Post{ID: t.PostID, Status: t.Target}, Sync: f.sync}, nil
}

func (f *fakeLifecycle) ListOwned(_ context.Context, _ int64, kind domain.Kind, _ int) ([]domain.Post, error) {
	var out []domain.Post
	for _, p := range f.owned {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeScenes struct {
	entered []scene.ID
	inputs  []scene.Input
	active  bool
}

func (f *fakeScenes) Enter(_ context.Context, _, _ int64, id scene.ID, _ scene.RenderTarget) (scene.EnterResult, error) {
	f.entered = append(f.entered, id)
	return scene.EnterResult{}, nil
}

func (f *fakeScenes) Handle(_ context.Context, _ int64, in scene.Input) (bool, error) {
	f.inputs = append(f.inputs, in)
	return f.active, nil
}

func (f *fakeScenes) Cancel(context.Context, int64, scene.RenderTarget) (bool, error) {
	return f.active, nil
}

func (f *fakeScenes) InProgress(int64) bool { return f.active }

type fixture struct {
	bot       *Bot
	users     *fakeUsers
	contacts  *fakeContacts
	lifecycle *fakeLifecycle
	scenes    *fakeScenes
}

func newFixture(role tele.MemberStatus) *fixture {
	f := &fixture{
		users:     &fakeUsers{},
		contacts:  &fakeContacts{},
		lifecycle: &fakeLifecycle{},
		scenes:    &fakeScenes{},
	}
	f.bot = New(Options{
		Scenes:     f.scenes,
		Lifecycle:  f.lifecycle,
		Contacts:   f.contacts,
		Users:      f.users,
		Membership: fakeMembership{role: role},
		Channel:    channel.Config{Username: "luukyone"},
	})
	return f
}

func TestStartRegistersChannelMember(t *testing.T) {
	f := newFixture(tele.Member)
	c := newRecorder(t, startUpdate(""))

	if err := f.bot.start(c); err != nil {
		t.Fatalf("start: %v", err)
	}
	u, ok := f.users.users[7]
	if !ok {
		t.Fatalf("user not stored")
	}
	if !u.Notifications.NewPosts || !u.Notifications.DailySummary || !u.ChannelMember {
		t.Fatalf("unexpected user %+v", u)
	}
	if !strings.Contains(c.last(t), "Welcome") {
		t.Fatalf("expected welcome, got %q", c.last(t))
	}
}

func TestStartAsksNonMemberToJoin(t *testing.T) {
	f := newFixture(tele.Left)
	c := newRecorder(t, startUpdate("contact_T-123"))

	if err := f.bot.start(c); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(f.users.users) != 0 {
		t.Fatalf("non-member must not be stored")
	}
	markup := c.markups[len(c.markups)-1]
	if markup == nil || len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected join and confirm rows, got %+v", markup)
	}
	if got := markup.InlineKeyboard[0][0].URL; got != "https://t.me/luukyone" {
		t.Fatalf("join url = %q", got)
	}
	if got := markup.InlineKeyboard[1][0].Data; got != "contact_T-123" {
		t.Fatalf("join button must carry the deep link payload, got %q", got)
	}
}

func TestStartMembershipErrorIsReported(t *testing.T) {
	f := newFixture(tele.Member)
	f.bot.membership = fakeMembership{err: errors.New("chat not found")}
	c := newRecorder(t, startUpdate(""))

	if err := f.bot.start(c); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.last(t) != textMembershipUnavailable {
		t.Fatalf("unexpected reply %q", c.last(t))
	}
}

func TestStartDeepLinkStartsContact(t *testing.T) {
	f := newFixture(tele.Administrator)
	c := newRecorder(t, startUpdate("contact_F-42"))

	if err := f.bot.start(c); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(f.contacts.reqs) != 1 {
		t.Fatalf("expected one contact request, got %d", len(f.contacts.reqs))
	}
	req := f.contacts.reqs[0]
	if req.PostID != "F-42" || req.Kind != domain.KindFavor || req.RequesterID != 7 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestContactRejectionRepliesWithoutError(t *testing.T) {
	f := newFixture(tele.Member)
	f.contacts.err = domain.ErrAlreadyContacted
	c := newRecorder(t, startUpdate("contact_T-1"))

	if err := f.bot.start(c); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(c.last(t), "already contacted") {
		t.Fatalf("unexpected reply %q", c.last(t))
	}
}

func TestContactStoreFailureIsReturned(t *testing.T) {
	f := newFixture(tele.Member)
	f.contacts.err = domain.ErrStoreFailure
	c := newRecorder(t, startUpdate("contact_T-1"))

	if err := f.bot.start(c); !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestMemberGate(t *testing.T) {
	f := newFixture(tele.Member)
	gate := f.bot.MemberGate()

	c := newRecorder(t, startUpdate(""))
	ok, err := gate.IsMember(c)
	if err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}

	f.users.users = map[int64]domain.User{7: {ID: 7}}
	ok, err = gate.IsMember(c)
	if err != nil || !ok {
		t.Fatalf("known user: ok=%v err=%v", ok, err)
	}

	f.users.err = domain.ErrStoreFailure
	if _, err := gate.IsMember(c); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestHandleMessagePhoto(t *testing.T) {
	f := newFixture(tele.Member)
	f.scenes.active = true
	upd := tele.Update{ID: 3, Message: &tele.Message{
		Sender:  &tele.User{ID: 7},
		Chat:    &tele.Chat{ID: 7, Type: tele.ChatPrivate},
		Photo:   &tele.Photo{File: tele.File{FileID: "file-1"}},
		Caption: "two boxes",
	}}

	handled, err := f.bot.HandleMessage(newRecorder(t, upd))
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	in := f.scenes.inputs[0]
	if in.Kind != scene.InputPhoto || in.PhotoRef != "file-1" || in.Text != "two boxes" {
		t.Fatalf("unexpected input %+v", in)
	}
}

func TestSceneTapUsesTappedMessage(t *testing.T) {
	f := newFixture(tele.Member)
	f.scenes.active = true
	c := newRecorder(t, tapUpdate(scene.CallbackKey, "travel:route:SG-BKK"))

	if err := f.bot.sceneTap(c); err != nil {
		t.Fatalf("tap: %v", err)
	}
	in := f.scenes.inputs[0]
	if in.Data != "travel:route:SG-BKK" || in.Source != scene.EditAt(7, 55) {
		t.Fatalf("unexpected input %+v", in)
	}
}

func TestStaleSceneTapIsAnswered(t *testing.T) {
	f := newFixture(tele.Member)
	c := newRecorder(t, tapUpdate(scene.CallbackKey, "travel:route:SG-BKK"))

	if err := f.bot.sceneTap(c); err != nil {
		t.Fatalf("tap: %v", err)
	}
	if len(c.answered) != 1 || c.answered[0] == "" {
		t.Fatalf("expected a toast, got %v", c.answered)
	}
}

func TestMenuTapEntersScene(t *testing.T) {
	f := newFixture(tele.Member)
	c := newRecorder(t, tapUpdate(cbMenu, menuFavor))

	if err := f.bot.menuTap(c); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if len(f.scenes.entered) != 1 || f.scenes.entered[0] != scene.Favor {
		t.Fatalf("entered %v", f.scenes.entered)
	}
}

func TestPostConfirmFlow(t *testing.T) {
	f := newFixture(tele.Member)
	c := newRecorder(t, tapUpdate(cbPost, postData(postRequest, domain.StatusCompleted, "T-9")))

	if err := f.bot.postTap(c); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(f.lifecycle.requested) != 1 || f.lifecycle.requested[0].ActorID != 7 {
		t.Fatalf("unexpected request %+v", f.lifecycle.requested)
	}
	yes := c.markups[0].InlineKeyboard[0][0]
	if yes.Data != postData(postConfirm, domain.StatusCompleted, "T-9") {
		t.Fatalf("confirm button data = %q", yes.Data)
	}

	f.lifecycle.sync = lifecycle.SyncFailed
	c = newRecorder(t, tapUpdate(cbPost, yes.Data))
	if err := f.bot.postTap(c); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := c.last(t); !strings.Contains(got, "marked as completed") || !strings.Contains(got, "could not be updated") {
		t.Fatalf("unexpected outcome %q", got)
	}
}

func TestPostTapRejectsForeignPost(t *testing.T) {
	f := newFixture(tele.Member)
	f.lifecycle.err = domain.ErrForbidden
	c := newRecorder(t, tapUpdate(cbPost, postData(postConfirm, domain.StatusCancelled, "F-1")))

	if err := f.bot.postTap(c); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(c.last(t), "Only the owner") {
		t.Fatalf("unexpected reply %q", c.last(t))
	}
}

func TestPostTapIgnoresMalformedPayload(t *testing.T) {
	f := newFixture(tele.Member)
	for _, data := range []string{"", "req:active:T-1", "zap:completed:T-1", "req:completed:XYZ1"} {
		c := newRecorder(t, tapUpdate(cbPost, data))
		if err := f.bot.postTap(c); err != nil {
			t.Fatalf("%q: %v", data, err)
		}
		if len(c.answered) != 1 {
			t.Fatalf("%q: expected an answer", data)
		}
	}
	if len(f.lifecycle.requested)+len(f.lifecycle.confirmed) != 0 {
		t.Fatalf("malformed payloads must not reach the lifecycle")
	}
}

func TestMyPostsView(t *testing.T) {
	list := []domain.Post{
		{ID: "T-1", Kind: domain.KindTravel, Status: domain.StatusActive,
			Route:         domain.Route{From: domain.CitySingapore, To: domain.CityBangkok},
			DepartureDate: time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)},
		{ID: "F-2", Kind: domain.KindFavor, Status: domain.StatusExpired,
			Route: domain.Route{From: domain.CityYangon, To: domain.CitySingapore}},
	}
	text, markup := myPostsView(list, time.UTC)
	if !strings.Contains(text, "T-1") || !strings.Contains(text, "15 Nov") || !strings.Contains(text, "expired") {
		t.Fatalf("unexpected text %q", text)
	}
	// One row of actions for the active post plus the menu row.
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(markup.InlineKeyboard))
	}

	text, _ = myPostsView(nil, time.UTC)
	if text != textNoPosts {
		t.Fatalf("unexpected empty text %q", text)
	}
}

func TestTouchMiddleware(t *testing.T) {
	f := newFixture(tele.Member)
	called := false
	h := f.bot.TouchMiddleware(func(tele.Context) error { called = true; return nil })
	if err := h(newRecorder(t, startUpdate(""))); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called || f.users.touched != 1 {
		t.Fatalf("called=%v touched=%d", called, f.users.touched)
	}
}
