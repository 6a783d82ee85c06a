package bot

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/commands"
	tghelpers "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/helpers"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

// Jobs runs the scheduled jobs on demand.
type Jobs interface {
	Sweep(ctx context.Context) error
	Summary(ctx context.Context, kind domain.Kind) error
}

// adminCommands are hidden and answer only the configured admin.
func (b *Bot) adminCommands() map[string]commands.Command {
	if b.adminID == 0 || b.jobs == nil {
		return nil
	}
	return map[string]commands.Command{
		"/sweep":   {Handler: b.adminOnly(b.runSweep), Description: "Run the expiry sweep now", Hidden: true},
		"/summary": {Handler: b.adminOnly(b.runSummaries), Description: "Post both summaries now", Hidden: true},
	}
}

func (b *Bot) adminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if tghelpers.SenderID(c) != b.adminID {
			logger.Warn(tghelpers.BuildContext(c), component, "admin.rejected", slog.String("status", "skip"))
			return tghelpers.SendText(c, textUnknown, menuOnly())
		}
		return next(c)
	}
}

func (b *Bot) runSweep(c tele.Context) error {
	if err := b.jobs.Sweep(tghelpers.BuildContext(c)); err != nil {
		_ = tghelpers.SendText(c, "Sweep failed: "+domain.Code(err))
		return err
	}
	return tghelpers.SendText(c, "Sweep done.")
}

func (b *Bot) runSummaries(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	for _, kind := range []domain.Kind{domain.KindTravel, domain.KindFavor} {
		if err := b.jobs.Summary(ctx, kind); err != nil {
			_ = tghelpers.SendText(c, "Summary failed: "+domain.Code(err))
			return err
		}
	}
	return tghelpers.SendText(c, "Summaries posted.")
}
