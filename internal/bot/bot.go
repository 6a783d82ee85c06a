// Package bot adapts Telegram updates to the conversation engine, the post
// lifecycle and the introduction broker: onboarding, the main menu, slash
// commands and inline button callbacks.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	tg "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/callbacks"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/commands"
	tghelpers "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/helpers"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/middleware"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/intro"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/lifecycle"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/scene"
)

const component = "bot"

// Callback uniques owned by this package. Scene buttons use scene.CallbackKey.
const (
	cbMenu = "menu"
	cbPost = "post"
	cbJoin = "join"
)

// Scenes is the conversation engine.
type Scenes interface {
	Enter(ctx context.Context, chatID, userID int64, id scene.ID, target scene.RenderTarget) (scene.EnterResult, error)
	Handle(ctx context.Context, chatID int64, in scene.Input) (bool, error)
	Cancel(ctx context.Context, chatID int64, target scene.RenderTarget) (bool, error)
	InProgress(chatID int64) bool
}

// Lifecycle closes posts on behalf of their owners.
type Lifecycle interface {
	RequestTransition(ctx context.Context, t domain.Transition) (lifecycle.Confirmation, error)
	ConfirmTransition(ctx context.Context, t domain.Transition) (lifecycle.Outcome, error)
	ListOwned(ctx context.Context, ownerID int64, kind domain.Kind, limit int) ([]domain.Post, error)
}

// Contacts starts introductions.
type Contacts interface {
	InitiateContact(ctx context.Context, req intro.ContactRequest) (intro.ContactResult, error)
}

// Users persists onboarded users.
type Users interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	UpsertUser(ctx context.Context, u domain.User) error
	TouchUser(ctx context.Context, id int64, at time.Time) error
}

// Membership queries the broadcast channel membership (*tele.Bot).
type Membership interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// Options wires the bot handlers.
type Options struct {
	Scenes     Scenes
	Lifecycle  Lifecycle
	Contacts   Contacts
	Users      Users
	Membership Membership
	Channel    channel.Config
	Now        func() time.Time
	Location   *time.Location
	// AdminID unlocks the hidden job commands when Jobs is set.
	AdminID int64
	Jobs    Jobs
}

// Bot holds the Telegram handlers.
type Bot struct {
	scenes     Scenes
	lifecycle  Lifecycle
	contacts   Contacts
	users      Users
	membership Membership
	channel    channel.Config
	now        func() time.Time
	loc        *time.Location
	adminID    int64
	jobs       Jobs
}

// New builds the handler set.
func New(opts Options) *Bot {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		scenes:     opts.Scenes,
		lifecycle:  opts.Lifecycle,
		contacts:   opts.Contacts,
		users:      opts.Users,
		membership: opts.Membership,
		channel:    opts.Channel,
		now:        now,
		loc:        loc,
		adminID:    opts.AdminID,
		jobs:       opts.Jobs,
	}
}

// Register adds the commands and callbacks to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := map[string]commands.Command{
		"/start":    {Handler: b.start, Description: "Join Luu Kyone and open the menu", Public: true},
		"/menu":     {Handler: b.menu, Description: "Main menu", Aliases: []string{"home"}},
		"/travel":   {Handler: b.enterCommand(scene.Travel), Description: "Share a travel plan"},
		"/favor":    {Handler: b.enterCommand(scene.Favor), Description: "Ask for a favor"},
		"/myposts":  {Handler: b.myPostsCommand, Description: "Your posts"},
		"/settings": {Handler: b.enterCommand(scene.Settings), Description: "Notification settings"},
		"/cancel":   {Handler: b.cancel, Description: "Cancel the current step"},
		"/help":     {Handler: b.help, Description: "How Luu Kyone works", Public: true},
	}
	for name, cmd := range b.adminCommands() {
		cmds[name] = cmd
	}
	var errs []error
	for name, cmd := range cmds {
		errs = append(errs, reg.RegisterCommand(name, cmd))
	}

	gate := middleware.MemberOnlyMiddleware(b.MemberGate())
	errs = append(errs,
		reg.RegisterCallback(scene.CallbackKey, gate(b.sceneTap)),
		reg.RegisterCallback(cbMenu, gate(b.menuTap)),
		reg.RegisterCallback(cbPost, gate(b.postTap)),
		reg.RegisterCallback(cbJoin, b.joinTap),
	)
	return errors.Join(errs...)
}

// MemberGate admits onboarded users only.
func (b *Bot) MemberGate() middleware.MemberOptions {
	return middleware.MemberOptions{
		IsMember: func(c tele.Context) (bool, error) {
			id := tghelpers.SenderID(c)
			if id == 0 {
				return false, nil
			}
			_, err := b.users.GetUser(tghelpers.BuildContext(c), id)
			if errors.Is(err, domain.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
		OnReject: func(c tele.Context) error {
			if c.Callback() != nil {
				return callbacks.Answer(c, "Please send /start first.")
			}
			return tghelpers.SendText(c, textStartFirst)
		},
	}
}

// TouchMiddleware records activity of known users.
func (b *Bot) TouchMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if id := tghelpers.SenderID(c); id != 0 && b.users != nil {
			ctx := tghelpers.BuildContext(c)
			if err := b.users.TouchUser(ctx, id, b.now()); err != nil {
				logger.Debug(ctx, component, "user.touch", slog.String("status", "fail"), logger.Err(err))
			}
		}
		return next(c)
	}
}

// InProgress reports whether chatID is inside a scene.
func (b *Bot) InProgress(chatID int64) bool {
	return b.scenes.InProgress(chatID)
}

// HandleMessage feeds a text or photo message to the active scene.
func (b *Bot) HandleMessage(c tele.Context) (bool, error) {
	ctx := tghelpers.BuildContext(c)
	sender := tghelpers.SenderID(c)
	in := scene.TextInput(sender, c.Text())
	if m := c.Message(); m != nil && m.Photo != nil {
		in = scene.PhotoInput(sender, m.Photo.FileID, m.Caption)
	}
	return b.scenes.Handle(ctx, tghelpers.ChatID(c), in)
}

func (b *Bot) start(c tele.Context) error {
	payload := ""
	if m := c.Message(); m != nil {
		payload = strings.TrimSpace(m.Payload)
	}
	return b.onboard(c, payload, false)
}

// onboard checks channel membership, registers the user and continues with
// the deep link payload or the main menu.
func (b *Bot) onboard(c tele.Context, payload string, edit bool) error {
	ctx := tghelpers.BuildContext(c)
	user := c.Sender()
	if user == nil {
		return nil
	}
	member, err := b.isChannelMember(user)
	if err != nil {
		logger.Warn(ctx, component, "onboard.member_check", slog.String("status", "fail"), logger.Err(err))
		return b.reply(c, edit, textMembershipUnavailable, nil)
	}
	if !member {
		logger.Info(ctx, component, "onboard.not_member", slog.String("status", "skip"))
		return b.reply(c, edit, joinText(b.channel), joinMarkup(b.channel, payload))
	}

	now := b.now()
	err = b.users.UpsertUser(ctx, domain.User{
		ID:            user.ID,
		DisplayName:   strings.TrimSpace(user.FirstName + " " + user.LastName),
		Handle:        user.Username,
		JoinedAt:      now,
		LastActiveAt:  now,
		IsPremium:     user.IsPremium,
		ChannelMember: true,
		Notifications: domain.DefaultNotificationSettings,
	})
	if err != nil {
		_ = b.reply(c, edit, textGenericFailure, nil)
		return err
	}
	logger.Info(ctx, component, "onboard.ok", slog.String("status", "ok"))

	if postID, ok := strings.CutPrefix(payload, channel.ContactPayloadPrefix); ok && postID != "" {
		return b.contact(c, postID)
	}
	return b.reply(c, edit, textWelcome+"\n\n"+textMenu, mainMenu())
}

func (b *Bot) isChannelMember(u *tele.User) (bool, error) {
	if b.membership == nil {
		return true, nil
	}
	cm, err := b.membership.ChatMemberOf(b.channel.Recipient(), u)
	if err != nil {
		return false, err
	}
	switch cm.Role {
	case tele.Creator, tele.Administrator, tele.Member, tele.Restricted:
		return true, nil
	}
	return false, nil
}

func (b *Bot) joinTap(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	member, err := b.isChannelMember(c.Sender())
	if err != nil || !member {
		return callbacks.Answer(c, "You have not joined the channel yet.")
	}
	_ = callbacks.Answer(c, "Welcome!")
	return b.onboard(c, callbacks.CallbackPayload(c), true)
}

func (b *Bot) contact(c tele.Context, postID string) error {
	ctx := tghelpers.BuildContext(c)
	kind, ok := domain.KindOf(postID)
	if !ok {
		return tghelpers.SendText(c, textBadLink)
	}
	_, err := b.contacts.InitiateContact(ctx, intro.ContactRequest{
		RequesterID: tghelpers.SenderID(c),
		PostID:      postID,
		Kind:        kind,
	})
	if err != nil {
		return b.rejectOrFail(c, false, err)
	}
	return nil
}

func (b *Bot) menu(c tele.Context) error {
	return tghelpers.SendText(c, textMenu, mainMenu())
}

func (b *Bot) help(c tele.Context) error {
	return tghelpers.SendText(c, textHelp, menuOnly())
}

func (b *Bot) enterCommand(id scene.ID) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.enter(c, id, scene.SendTo(tghelpers.ChatID(c)))
	}
}

func (b *Bot) enter(c tele.Context, id scene.ID, target scene.RenderTarget) error {
	ctx := tghelpers.BuildContext(c)
	res, err := b.scenes.Enter(ctx, tghelpers.ChatID(c), tghelpers.SenderID(c), id, target)
	if err != nil {
		return err
	}
	if res.Replaced != "" {
		notice := "Your unfinished " + string(res.Replaced) + " draft was discarded."
		if c.Callback() != nil {
			return callbacks.Answer(c, notice)
		}
		return tghelpers.SendText(c, notice)
	}
	return nil
}

func (b *Bot) cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID := tghelpers.ChatID(c)
	active, err := b.scenes.Cancel(ctx, chatID, scene.SendTo(chatID))
	if err != nil {
		return err
	}
	if !active {
		return tghelpers.SendText(c, textNothingToCancel, menuOnly())
	}
	return nil
}

func (b *Bot) sceneTap(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	var source scene.RenderTarget
	if msg := c.Callback().Message; msg != nil && msg.Chat != nil {
		source = scene.EditAt(msg.Chat.ID, msg.ID)
	}
	in := scene.TapInput(tghelpers.SenderID(c), callbacks.CallbackPayload(c), source)
	handled, err := b.scenes.Handle(ctx, tghelpers.ChatID(c), in)
	if err != nil {
		return err
	}
	if !handled {
		return callbacks.Answer(c, "This step is no longer active.")
	}
	return nil
}

func (b *Bot) menuTap(c tele.Context) error {
	var target scene.RenderTarget
	if msg := c.Callback().Message; msg != nil && msg.Chat != nil {
		target = scene.EditAt(msg.Chat.ID, msg.ID)
	}
	switch callbacks.CallbackPayload(c) {
	case menuTravel:
		return b.enter(c, scene.Travel, target)
	case menuFavor:
		return b.enter(c, scene.Favor, target)
	case menuSettings:
		return b.enter(c, scene.Settings, target)
	case menuMyPosts:
		return b.myPosts(c, true)
	case menuHelp:
		return tghelpers.EditOrSendText(c, textHelp, menuOnly())
	default:
		return tghelpers.EditOrSendText(c, textMenu, mainMenu())
	}
}

func (b *Bot) myPostsCommand(c tele.Context) error {
	return b.myPosts(c, false)
}

func (b *Bot) myPosts(c tele.Context, edit bool) error {
	ctx := tghelpers.BuildContext(c)
	owner := tghelpers.SenderID(c)
	var all []domain.Post
	for _, kind := range []domain.Kind{domain.KindTravel, domain.KindFavor} {
		list, err := b.lifecycle.ListOwned(ctx, owner, kind, lifecycle.DefaultListLimit)
		if err != nil {
			_ = b.reply(c, edit, textGenericFailure, menuOnly())
			return err
		}
		all = append(all, list...)
	}
	text, markup := myPostsView(all, b.loc)
	return b.reply(c, edit, text, markup)
}

func (b *Bot) postTap(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	action, t, ok := parsePostAction(c, tghelpers.SenderID(c))
	if !ok {
		return callbacks.Answer(c, "This button is no longer active.")
	}
	switch action {
	case postRequest:
		conf, err := b.lifecycle.RequestTransition(ctx, t)
		if err != nil {
			return b.rejectOrFail(c, true, err)
		}
		return tghelpers.EditOrSendText(c, conf.Text, confirmMarkup(t))
	case postConfirm:
		out, err := b.lifecycle.ConfirmTransition(ctx, t)
		if err != nil {
			return b.rejectOrFail(c, true, err)
		}
		return tghelpers.EditOrSendText(c, outcomeText(out), backMarkup())
	}
	return nil
}

// rejectOrFail tells the user why an operation was refused. Expected
// rejections are not handler failures; anything else is returned.
func (b *Bot) rejectOrFail(c tele.Context, edit bool, err error) error {
	text, expected := userText(err)
	var markup *tele.ReplyMarkup
	if edit {
		markup = backMarkup()
	}
	if rerr := b.reply(c, edit, text, markup); rerr != nil && expected {
		return rerr
	}
	if expected {
		return nil
	}
	return err
}

func (b *Bot) reply(c tele.Context, edit bool, text string, markup *tele.ReplyMarkup) error {
	if edit && c.Callback() != nil {
		return tghelpers.EditOrSendText(c, text, markup)
	}
	return tghelpers.SendText(c, text, markup)
}

// UnknownText answers free text outside of a scene.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, textUnknown, menuOnly())
	}
}

// UnknownPhoto answers photos outside of the favor flow.
func (b *Bot) UnknownPhoto() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, textUnexpectedPhoto, menuOnly())
	}
}

// UnknownCallback answers buttons nobody handles anymore.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return callbacks.Answer(c, "This button is no longer active.")
	}
}

// OnLimited answers rate limited updates.
func (b *Bot) OnLimited(c tele.Context) error {
	if c.Callback() != nil {
		return callbacks.Answer(c, "Slow down a little 🙂")
	}
	return nil
}
