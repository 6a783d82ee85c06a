package router

import (
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	tghelpers "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/helpers"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// ErrorCoder maps a handler error to a stable err_code for summaries.
// It returns "" when it does not recognise the error.
type ErrorCoder func(error) string

var errorCoder atomic.Pointer[ErrorCoder]

// SetErrorCoder installs the application error classifier used in handler
// summaries. Unrecognised errors fall back to the error type name.
func SetErrorCoder(fn ErrorCoder) {
	if fn == nil {
		errorCoder.Store(nil)
		return
	}
	errorCoder.Store(&fn)
}

func handleWithSummary(c tele.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, handlerName)
	err := fn()
	logHandlerSummary(c, handlerName, start, statusOverride, outcomeOverride, err, extras...)
	return err
}

func logHandlerSummary(c tele.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, handlerName)
	replies := middleware.RepliesOf(c)

	status := statusOverride
	if status == "" {
		status = logger.Status(err)
	}
	outcome := outcomeOverride
	if outcome == "" {
		outcome = logger.Status(err)
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("messages", replies.Messages),
		slog.Int("edits", replies.Edits),
		slog.Bool("kb", replies.Keyboard),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	attrs = append(attrs, extras...)
	logger.LogEvent(ctx, logger.Component("tg"), level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if fn := errorCoder.Load(); fn != nil {
		if code := (*fn)(err); code != "" {
			return code
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToLower(t.Name())
	}
	return "unknown_error"
}
