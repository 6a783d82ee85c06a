package middleware

import (
	"log/slog"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	tghelpers "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// MemberOptions configures the membership gate.
type MemberOptions struct {
	// IsMember reports whether the sender may use gated handlers.
	IsMember func(c tele.Context) (bool, error)
	// OnReject runs instead of the handler for non-members and on lookup errors.
	OnReject tele.HandlerFunc
}

// MemberOnlyMiddleware lets only members reach downstream handlers.
func MemberOnlyMiddleware(opts MemberOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if opts.IsMember == nil {
			return next
		}
		return func(c tele.Context) error {
			ok, err := opts.IsMember(c)
			if err != nil {
				logger.Warn(tghelpers.BuildContext(c), "tg", "tg.member_check",
					slog.String("status", "fail"),
					logger.Err(err),
				)
			}
			if err != nil || !ok {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
