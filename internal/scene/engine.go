// Package scene implements the per-chat conversation engine that collects
// travel plans, favor requests and settings over several turns.
//
// A chat has at most one active scene. Entering a scene discards the current
// one. Every prompt is rendered into a RenderTarget so a menu message can be
// edited in place instead of sending a new message per step.
package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/state"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

const component = "scene"

// ErrUnknownScene is returned by Enter for unregistered scene ids.
var ErrUnknownScene = errors.New("scene: unknown scene")

// DefaultMenuButton returns control to the main menu after a scene ends.
var DefaultMenuButton = Button{Text: "🏠 Main menu", Unique: "menu", Data: "main"}

// Options wires the engine collaborators.
type Options struct {
	Renderer Renderer
	Posts    PostCreator
	Settings SettingsStore
	Location *time.Location
	// IdleTimeout discards stalled conversations; zero keeps them forever.
	IdleTimeout time.Duration
	Now         func() time.Time
	MenuButton  Button
}

// Engine runs scenes.
type Engine struct {
	renderer Renderer
	sessions *state.Store[session]
	flows    map[ID]flow
	menu     Button
}

// flowContext is passed to flows for one input.
type flowContext struct {
	ctx    context.Context
	chatID int64
	userID int64
}

// EnterResult reports what Enter replaced.
type EnterResult struct {
	Replaced ID
}

// New builds an engine with the travel, favor and settings flows.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	menu := opts.MenuButton
	if menu.Unique == "" {
		menu = DefaultMenuButton
	}
	c := clock{now: now, loc: loc}
	return &Engine{
		renderer: opts.Renderer,
		sessions: state.NewStore[session](state.Options{IdleTimeout: opts.IdleTimeout, Now: now}),
		flows: map[ID]flow{
			Travel:   &travelFlow{clock: c, creator: opts.Posts},
			Favor:    &favorFlow{creator: opts.Posts},
			Settings: &settingsFlow{store: opts.Settings},
		},
		menu: menu,
	}
}

// Enter starts scene id for chatID, discarding any active scene first, and
// renders the first prompt into target.
func (e *Engine) Enter(ctx context.Context, chatID, userID int64, id ID, target RenderTarget) (EnterResult, error) {
	f, ok := e.flows[id]
	if !ok {
		return EnterResult{}, fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}
	if target.ChatID == 0 {
		target = SendTo(chatID)
	}

	var res EnterResult
	if prev, replaced := e.sessions.Start(chatID, session{scene: id, userID: userID, target: target}); replaced {
		res.Replaced = prev.scene
	}

	fc := flowContext{ctx: ctx, chatID: chatID, userID: userID}
	first, err := f.start(fc)
	if err != nil {
		e.sessions.Discard(chatID)
		logger.Error(ctx, component, "scene.enter",
			slog.String("status", "fail"),
			slog.String("scene", string(id)),
			logger.Err(err),
		)
		return res, err
	}
	logger.Info(ctx, component, "scene.enter",
		slog.String("status", "ok"),
		slog.String("scene", string(id)),
		slog.String("replaced", string(res.Replaced)),
	)

	sess := session{scene: id, userID: userID, step: first, target: target}
	if !e.sessions.Put(chatID, sess) {
		return res, nil
	}
	return res, e.show(ctx, chatID, sess, f.prompt(first), "")
}

// Handle feeds one input to the active scene of chatID. It reports false
// when there is no active scene or the input does not belong to the current
// step, in which case nothing changed.
func (e *Engine) Handle(ctx context.Context, chatID int64, in Input) (bool, error) {
	sess, ok := e.sessions.Get(chatID)
	if !ok || sess.step == nil {
		return false, nil
	}
	a := decode(in)
	if a.kind == InputTap && (a.scene != sess.scene || staleTap(sess, in)) {
		logger.Debug(ctx, component, "scene.stray",
			slog.String("scene", string(sess.scene)),
			slog.String("step", sess.step.stepName()),
			slog.String("payload", in.Data),
			slog.Int("message_id", in.Source.MessageID),
		)
		return false, nil
	}
	if a.kind == InputTap && a.name == actCancel {
		return true, e.cancel(ctx, chatID, sess, tapTarget(sess, in))
	}

	f := e.flows[sess.scene]
	fc := flowContext{ctx: ctx, chatID: chatID, userID: sess.userID}
	out, err := f.handle(fc, sess.step, a)

	target := SendTo(chatID)
	if in.Kind == InputTap {
		target = tapTarget(sess, in)
	}

	if err != nil {
		e.sessions.Discard(chatID)
		logger.Error(ctx, component, "scene.failed",
			slog.String("status", "fail"),
			slog.String("scene", string(sess.scene)),
			slog.String("step", sess.step.stepName()),
			logger.Err(err),
		)
		sess.target = target
		if rerr := e.show(ctx, chatID, sess, e.exitPrompt(Prompt{Text: failureText(err)}), ""); rerr != nil {
			logger.Warn(ctx, component, "scene.render", slog.String("status", "fail"), logger.Err(rerr))
		}
		return true, err
	}
	if out.ignored {
		return false, nil
	}

	if out.exit != nil {
		e.sessions.Discard(chatID)
		logger.Info(ctx, component, "scene.leave",
			slog.String("status", "ok"),
			slog.String("scene", string(sess.scene)),
			slog.String("step", sess.step.stepName()),
		)
		sess.target = target
		return true, e.show(ctx, chatID, sess, e.exitPrompt(*out.exit), "")
	}

	logger.Debug(ctx, component, "scene.step",
		slog.String("scene", string(sess.scene)),
		slog.String("step", out.next.stepName()),
	)
	sess.step = out.next
	sess.target = target
	if !e.sessions.Put(chatID, sess) {
		// Replaced or cancelled concurrently; the newer scene owns the chat.
		return true, nil
	}
	return true, e.show(ctx, chatID, sess, f.prompt(out.next), out.notice)
}

// Cancel discards the active scene of chatID and renders a cancellation
// notice into target (or the scene's last message when target is zero).
// It reports false when no scene was active.
func (e *Engine) Cancel(ctx context.Context, chatID int64, target RenderTarget) (bool, error) {
	sess, ok := e.sessions.Get(chatID)
	if !ok {
		return false, nil
	}
	if target.ChatID == 0 {
		target = sess.target
	}
	return true, e.cancel(ctx, chatID, sess, target)
}

func (e *Engine) cancel(ctx context.Context, chatID int64, sess session, target RenderTarget) error {
	e.sessions.Discard(chatID)
	logger.Info(ctx, component, "scene.cancel",
		slog.String("status", "cancelled"),
		slog.String("scene", string(sess.scene)),
		slog.String("step", sess.step.stepName()),
	)
	sess.target = target
	return e.show(ctx, chatID, sess, e.exitPrompt(Prompt{Text: "❌ Cancelled. Nothing was saved."}), "")
}

// Active returns the scene running in chatID.
func (e *Engine) Active(chatID int64) (ID, bool) {
	sess, ok := e.sessions.Get(chatID)
	if !ok {
		return "", false
	}
	return sess.scene, true
}

// Sessions counts stored sessions, including idle ones not collected yet.
func (e *Engine) Sessions() int {
	return e.sessions.Len()
}

// InProgress reports whether chatID has an active scene.
func (e *Engine) InProgress(chatID int64) bool {
	return e.sessions.Active(chatID)
}

func (e *Engine) exitPrompt(p Prompt) Prompt {
	p.Rows = append(p.Rows, []Button{e.menu})
	return p
}

// show renders p into the session target and remembers where it landed.
func (e *Engine) show(ctx context.Context, chatID int64, sess session, p Prompt, notice string) error {
	if notice != "" {
		p.Text = notice + "\n\n" + p.Text
	}
	if e.renderer == nil {
		return nil
	}
	next, err := e.renderer.Render(ctx, sess.target, p)
	if err != nil {
		return fmt.Errorf("render %s/%s: %w: %w", sess.scene, stepName(sess.step), domain.ErrPublishFailed, err)
	}
	if next.ChatID != 0 {
		sess.target = next
		e.sessions.Put(chatID, sess)
	}
	return nil
}

// staleTap reports a tap on a message other than the one the session last
// rendered into, such as the prompt of a replaced scene.
func staleTap(sess session, in Input) bool {
	return in.Source.MessageID != 0 && sess.target.MessageID != 0 &&
		(in.Source.ChatID != sess.target.ChatID || in.Source.MessageID != sess.target.MessageID)
}

func tapTarget(sess session, in Input) RenderTarget {
	if in.Source.ChatID != 0 {
		return in.Source
	}
	return sess.target
}

func stepName(st step) string {
	if st == nil {
		return "start"
	}
	return st.stepName()
}

func failureText(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return "⚠️ Some details were invalid, so nothing was posted. Please start again."
	}
	return "😔 Something went wrong while saving. Please try again in a moment."
}
