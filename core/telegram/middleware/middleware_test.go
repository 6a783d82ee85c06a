package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return bot.NewContext(upd)
}

func textUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	}
}

func TestUpdateKind(t *testing.T) {
	photo := textUpdate(1, 7, "")
	photo.Message.Photo = &tele.Photo{File: tele.File{FileID: "ph"}}
	cases := map[string]tele.Update{
		"message":  textUpdate(1, 7, "hi"),
		"photo":    photo,
		"callback": {Callback: &tele.Callback{Data: "\fmenu|main"}},
		"other":    {},
	}
	for want, upd := range cases {
		if got := UpdateKind(upd); got != want {
			t.Fatalf("UpdateKind = %q, want %q", got, want)
		}
	}
}

func TestRateLimitDropsBurstAndHonoursExclusions(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"photo": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return now },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(newContext(t, textUpdate(1, 7, "a")))
	_ = h(newContext(t, textUpdate(2, 7, "b")))
	if calls != 1 || limited != 1 {
		t.Fatalf("calls=%d limited=%d, want 1 and 1", calls, limited)
	}

	photo := textUpdate(3, 7, "")
	photo.Message.Photo = &tele.Photo{File: tele.File{FileID: "ph"}}
	_ = h(newContext(t, photo))
	if calls != 2 {
		t.Fatalf("excluded photo should pass, calls=%d", calls)
	}

	now = now.Add(2 * time.Second)
	_ = h(newContext(t, textUpdate(4, 7, "c")))
	if calls != 3 {
		t.Fatalf("message after the interval should pass, calls=%d", calls)
	}
}

func TestMemberOnly(t *testing.T) {
	rejected := 0
	member := false
	var lookupErr error
	mw := MemberOnlyMiddleware(MemberOptions{
		IsMember: func(tele.Context) (bool, error) { return member, lookupErr },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(newContext(t, textUpdate(1, 7, "/travel")))
	member = true
	_ = h(newContext(t, textUpdate(2, 7, "/travel")))
	lookupErr = errors.New("chat not found")
	_ = h(newContext(t, textUpdate(3, 7, "/travel")))

	if calls != 1 || rejected != 2 {
		t.Fatalf("calls=%d rejected=%d, want 1 and 2", calls, rejected)
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newContext(t, textUpdate(1, 7, "x"))); err == nil {
		t.Fatalf("expected error from recovered panic")
	}
}

// okContext accepts every send and edit.
type okContext struct{ tele.Context }

func (okContext) Send(interface{}, ...interface{}) error       { return nil }
func (okContext) Edit(interface{}, ...interface{}) error       { return nil }
func (okContext) EditOrSend(interface{}, ...interface{}) error { return nil }

func TestReplyMetricsCountsSendsAndEdits(t *testing.T) {
	c := okContext{newContext(t, textUpdate(1, 7, "x"))}
	if r := RepliesOf(c); r != (Replies{}) {
		t.Fatalf("counters before middleware = %+v", r)
	}
	h := ReplyMetricsMiddleware(func(c tele.Context) error {
		_ = c.Send("one")
		_ = c.Edit("two", &tele.ReplyMarkup{})
		return c.EditOrSend("three")
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	r := RepliesOf(c)
	if r.Messages != 2 || r.Edits != 1 || !r.Keyboard {
		t.Fatalf("counters = %+v", r)
	}
}

func TestSeenUpdates(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	s := newSeenUpdates(time.Second, 2)
	if !s.first(1, now) || s.first(1, now) {
		t.Fatalf("update 1 should be new once")
	}
	if !s.first(1, now.Add(2*time.Second)) {
		t.Fatalf("update 1 should be new after the ttl")
	}
	_ = s.first(2, now.Add(2*time.Second))
	_ = s.first(3, now.Add(2*time.Second))
	if len(s.seen) > 2 {
		t.Fatalf("seen grew past the limit: %d", len(s.seen))
	}
}

func TestReceiptPayloadHidesFreeText(t *testing.T) {
	cases := map[string]string{
		"/start contact_T-1": "/start contact_T-1",
		"call me on 0912345": "[text len=18]",
	}
	for text, want := range cases {
		if got := receiptPayload(newContext(t, textUpdate(1, 7, text))); got != want {
			t.Fatalf("receiptPayload(%q) = %q, want %q", text, got, want)
		}
	}
}
