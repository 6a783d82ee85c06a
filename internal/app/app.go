package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/bootstrap"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/buildinfo"
	corecmd "github.com/KyawPh/luu-kyone-bot-sub000/core/cmd"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	tg "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/router"
	tgsender "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/sender"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/bot"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/events"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/expiry"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/intro"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/lifecycle"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/ops"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/posts"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/scene"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/schedule"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store/migrations"
)

const component = "app"

// App holds the wired services of a running bot.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	bus        events.Bus
	bot        *tele.Bot
	dispatcher *tgsender.Dispatcher
	registry   *tg.Registry
	handlers   *bot.Bot
	engine     *scene.Engine
	scheduler  *schedule.Scheduler
	ops        *ops.Server
}

// Bootstrap implements cmd.Options.Bootstrap: it connects the database,
// applies migrations, logs in to Telegram and wires the services.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Store,
		Migrations: migrations.FS,
	})
	if err != nil {
		return nil, err
	}
	tb, err := tg.NewBot(&cfg.Config)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	bus, err := events.Open(cfg.Events)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	a, err := New(cfg, res.DB, tb, bus)
	if err != nil {
		_ = bus.Close()
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// New wires the services on top of an open database and bot. bus may be nil.
func New(cfg *Config, db *sqlx.DB, tb *tele.Bot, bus events.Bus) (*App, error) {
	if bus == nil {
		bus = events.Nop{}
	}
	loc := cfg.Schedule.Location()
	st := store.New(db)
	dispatcher := tgsender.NewDispatcher(cfg.Sender.options())

	publisher := channel.New(tb, cfg.Channel, botUsername(tb), loc)
	notifier := bot.NewNotifier(tb, dispatcher, st, publisher, loc)

	postService := posts.New(posts.Options{
		Store:     st,
		Publisher: publisher,
		Events:    bus,
		OnCreated: notifier.NewPost,
	})
	engine := scene.New(scene.Options{
		Renderer:    bot.NewRenderer(tb),
		Posts:       postService,
		Settings:    st,
		Location:    loc,
		IdleTimeout: cfg.Scene.IdleTimeout,
	})
	broker := intro.New(intro.Options{
		Users:       st,
		Posts:       st,
		Connections: st,
		Messenger:   notifier,
		Events:      bus,
		Location:    loc,
	})
	manager := lifecycle.New(st, publisher, bus, nil)
	sweeper := expiry.New(st, publisher, bus, nil, loc)

	scheduler, err := schedule.New(cfg.Schedule, schedule.Deps{
		Sweeper:     sweeper,
		Posts:       st,
		Announcer:   publisher,
		Subscribers: st,
		Messenger:   notifier,
	})
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	handlers := bot.New(bot.Options{
		Scenes:     engine,
		Lifecycle:  manager,
		Contacts:   broker,
		Users:      st,
		Membership: tb,
		Channel:    cfg.Channel,
		Location:   loc,
		AdminID:    cfg.Telegram.AdminID,
		Jobs:       scheduler,
	})
	reg := tg.NewRegistry()
	reg.SetCallbackNotFound(handlers.UnknownCallback())
	reg.SetTextFallback(handlers.UnknownText())
	if err := handlers.Register(reg); err != nil {
		dispatcher.Close()
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	a := &App{
		cfg:        cfg,
		db:         db,
		bus:        bus,
		bot:        tb,
		dispatcher: dispatcher,
		registry:   reg,
		handlers:   handlers,
		engine:     engine,
		scheduler:  scheduler,
	}
	if cfg.Ops.Listen != "" {
		a.ops = ops.New(cfg.Ops, []ops.Check{{Name: "store", Run: st.Ping}}, a.stats)
	}
	router.SetErrorCoder(errorCode)
	return a, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	h := a.handlers
	gate := h.MemberGate()
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{Members: gate})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{NotFound: h.UnknownCallback()}))
	routes = append(routes, router.TextRoutes(h, a.registry, h, gate)...)

	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Bot:         a.bot,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, h.OnLimited, tg.Middleware{Name: "touch", Use: h.TouchMiddleware}),
		Routes:      routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	if a.ops != nil {
		if err := a.ops.Start(); err != nil {
			return fmt.Errorf("app: ops listener: %w", err)
		}
	}
	if a.cfg.Schedule.Disabled {
		logger.Info(ctx, component, "schedule.disabled", slog.String("status", "skip"))
		return nil
	}
	a.scheduler.Start()
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var errs []error
	if !a.cfg.Schedule.Disabled {
		errs = append(errs, a.scheduler.Stop(ctx))
	}
	if a.ops != nil {
		errs = append(errs, a.ops.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Close releases the event bus and the database.
func (a *App) Close() error {
	return errors.Join(a.bus.Close(), a.db.Close())
}

func (a *App) stats() map[string]any {
	sends := a.dispatcher.Stats()
	return map[string]any{
		"scenes":       a.engine.Sessions(),
		"send_ok":      sends.Sent,
		"send_errors":  sends.Failed,
		"send_dropped": sends.Dropped,
		"send_queued":  sends.Queued,
		"commands":     len(a.registry.Commands()),
		"version":      buildinfo.Version,
	}
}

// errorCode feeds domain codes into handler summaries; unknown errors fall
// back to the router's type-based code.
func errorCode(err error) string {
	if code := domain.Code(err); code != "internal" {
		return code
	}
	return ""
}

func botUsername(tb *tele.Bot) string {
	if tb == nil || tb.Me == nil {
		return ""
	}
	return tb.Me.Username
}
