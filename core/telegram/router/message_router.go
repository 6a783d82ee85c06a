package router

import (
	"time"

	tg "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/middleware"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// Scenes is the conversation engine as seen by the message router.
type Scenes interface {
	InProgress(chatID int64) bool
	// HandleMessage feeds a text or photo message to the active scene and
	// reports whether the scene consumed it.
	HandleMessage(c tele.Context) (bool, error)
}

// TextRoutes builds the text and photo handlers. Messages go to the active
// scene of the chat first, then to alias lookup and the fallbacks. Commands
// reached through alias lookup pass the same membership gate as slash commands.
func TextRoutes(scenes Scenes, reg *tg.Registry, fallbacks ui.FallbackProvider, members middleware.MemberOptions) []tg.Route {
	gate := middleware.MemberOnlyMiddleware(members)
	handler := func(c tele.Context) error {
		start := time.Now()

		if handled, err := dispatchScene(c, scenes, "scene.text", start); handled {
			return err
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				h := cmd.Handler
				if !cmd.Public {
					h = gate(h)
				}
				return handleWithSummary(c, normalizeHandlerName(key), start, "", "", func() error {
					return h(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if fallbacks != nil {
			if fb := fallbacks.UnknownText(); fb != nil {
				return handleWithSummary(c, "unknown_text", start, "skip", "rejected", func() error {
					return fb(c)
				})
			}
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "rejected", nil)
		return nil
	}

	photoHandler := func(c tele.Context) error {
		start := time.Now()
		if handled, err := dispatchScene(c, scenes, "scene.photo", start); handled {
			return err
		}
		if fallbacks != nil {
			if fb := fallbacks.UnknownPhoto(); fb != nil {
				return handleWithSummary(c, "unexpected_photo", start, "skip", "rejected", func() error {
					return fb(c)
				})
			}
		}
		logHandlerSummary(c, "unexpected_photo", start, "skip", "rejected", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(photoHandler)),
		},
	}
}

// dispatchScene reports handled=false when no scene is active or the scene
// ignored the message, so the caller can fall through.
func dispatchScene(c tele.Context, scenes Scenes, name string, start time.Time) (bool, error) {
	if scenes == nil || c.Chat() == nil || !scenes.InProgress(c.Chat().ID) {
		return false, nil
	}
	var handled bool
	err := handleWithSummary(c, name, start, "", "", func() error {
		var err error
		handled, err = scenes.HandleMessage(c)
		return err
	})
	return handled || err != nil, err
}
