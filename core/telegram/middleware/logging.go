package middleware

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/callbacks"
	tghelpers "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/helpers"
)

// LoggerMiddleware runs both globally and per route, so receipts are
// deduplicated by update id.
var received = newSeenUpdates(10*time.Second, 1024)

type seenUpdates struct {
	mu   sync.Mutex
	ttl   time.Duration
	limit int
	seen  map[int]time.Time
}

func newSeenUpdates(ttl time.Duration, limit int) *seenUpdates {
	return &seenUpdates{ttl: ttl, limit: limit, seen: make(map[int]time.Time)}
}

// first reports whether id is new and remembers it.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.seen[id]; ok && now.Sub(at) <= s.ttl {
		return false
	}
	if len(s.seen) >= s.limit {
		for k, at := range s.seen {
			if now.Sub(at) > s.ttl {
				delete(s.seen, k)
			}
		}
		if len(s.seen) >= s.limit {
			clear(s.seen)
		}
	}
	s.seen[id] = now
	return true
}

// LoggerMiddleware stores the rid and a request context for the update and
// logs a sampled receipt line. Free text is logged by length only since it
// carries user contact details; commands are logged as typed.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		chatID, userID := tghelpers.ChatID(c), tghelpers.SenderID(c)

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && received.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	if payload := receiptPayload(c); payload != "" {
		attrs = append(attrs, slog.String("payload", payload))
	}
	if cb := c.Callback(); cb != nil {
		if key, _ := callbacks.ParseCallbackData(cb); key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
	}
	return attrs
}

func receiptPayload(c tele.Context) string {
	if cb := c.Callback(); cb != nil {
		_, payload := callbacks.ParseCallbackData(cb)
		return logger.SanitizeLimit(payload, 256)
	}
	m := c.Message()
	switch {
	case m == nil:
		return ""
	case m.Photo != nil:
		return "[photo]"
	case strings.HasPrefix(m.Text, "/"):
		return logger.SanitizeLimit(m.Text, 256)
	case m.Text != "":
		return "[text len=" + strconv.Itoa(len([]rune(m.Text))) + "]"
	}
	return ""
}
