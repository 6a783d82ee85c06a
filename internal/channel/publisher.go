// Package channel publishes posts to the broadcast channel and keeps the
// channel copies in sync with the post status.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

const component = "channel"

// ContactPayloadPrefix prefixes the /start payload of contact deep links.
const ContactPayloadPrefix = "contact_"

// Config locates the broadcast channel.
type Config struct {
	// ID is the numeric chat id (-100...). It wins over Username.
	ID       int64  `yaml:"id" envconfig:"CHANNEL_ID"`
	Username string `yaml:"username" envconfig:"CHANNEL_USERNAME"`

	// InviteLink is shown to non-members of a private channel.
	InviteLink string `yaml:"invite_link" envconfig:"CHANNEL_INVITE_LINK"`
}

// Normalize validates the channel location.
func (c *Config) Normalize() error {
	c.Username = strings.TrimPrefix(strings.TrimSpace(c.Username), "@")
	if c.ID == 0 && c.Username == "" {
		return fmt.Errorf("channel: id or username is required")
	}
	return nil
}

// JoinURL is the link offered to users who are not members yet.
func (c Config) JoinURL() string {
	if c.InviteLink != "" {
		return c.InviteLink
	}
	if c.Username != "" {
		return "https://t.me/" + c.Username
	}
	return ""
}

// Recipient returns the channel as a telebot recipient.
func (c Config) Recipient() tele.Recipient {
	if c.ID != 0 {
		return tele.ChatID(c.ID)
	}
	return username("@" + c.Username)
}

type username string

func (u username) Recipient() string { return string(u) }

// API is the subset of *tele.Bot the publisher uses.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Publisher is the telebot-backed broadcast channel.
type Publisher struct {
	api         API
	to          tele.Recipient
	botUsername string
	loc         *time.Location
}

// New constructs a Publisher. botUsername is used for contact deep links.
func New(api API, cfg Config, botUsername string, loc *time.Location) *Publisher {
	if loc == nil {
		loc = time.UTC
	}
	return &Publisher{api: api, to: cfg.Recipient(), botUsername: strings.TrimPrefix(botUsername, "@"), loc: loc}
}

// ContactLink is the deep link that starts an introduction for postID.
func (p *Publisher) ContactLink(postID string) string {
	return "https://t.me/" + p.botUsername + "?start=" + ContactPayloadPrefix + postID
}

func (p *Publisher) opts(post domain.Post) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if post.Status == domain.StatusActive && p.botUsername != "" {
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL("💬 Contact", p.ContactLink(post.ID))))
		opts.ReplyMarkup = markup
	}
	return opts
}

// Publish sends p to the channel, as a photo with caption when it has one.
func (p *Publisher) Publish(ctx context.Context, post domain.Post) (domain.ChannelRef, error) {
	var what interface{} = Text(post, p.loc)
	if post.PhotoRef != "" {
		what = &tele.Photo{File: tele.File{FileID: post.PhotoRef}, Caption: Text(post, p.loc)}
	}
	msg, err := p.api.Send(p.to, what, p.opts(post))
	if err != nil {
		return domain.ChannelRef{}, p.fail(ctx, "channel.publish", post.ID, err)
	}
	if msg == nil || msg.Chat == nil {
		return domain.ChannelRef{}, p.fail(ctx, "channel.publish", post.ID, errors.New("no message returned"))
	}
	ref := domain.ChannelRef{ChatID: msg.Chat.ID, MessageID: msg.ID}
	logger.Debug(ctx, component, "channel.publish",
		slog.String("status", "ok"),
		slog.String("post_id", post.ID),
		slog.Int("message_id", ref.MessageID),
	)
	return ref, nil
}

// Update rewrites the channel copy of post in place: the caption for photo
// posts, the text otherwise.
func (p *Publisher) Update(ctx context.Context, post domain.Post) error {
	if post.Channel.IsZero() {
		return fmt.Errorf("post %s has no channel message: %w", post.ID, domain.ErrNotFound)
	}
	msg := editable(post.Channel)
	var err error
	if post.PhotoRef != "" {
		_, err = p.api.EditCaption(msg, Text(post, p.loc), p.opts(post))
	} else {
		_, err = p.api.Edit(msg, Text(post, p.loc), p.opts(post))
	}
	if err != nil {
		return p.fail(ctx, "channel.update", post.ID, err)
	}
	return nil
}

// Announce posts a standalone status notice for post.
func (p *Publisher) Announce(ctx context.Context, post domain.Post) error {
	return p.AnnounceText(ctx, AnnouncementText(post))
}

// AnnounceText posts MarkdownV2 text to the channel.
func (p *Publisher) AnnounceText(ctx context.Context, text string) error {
	if _, err := p.api.Send(p.to, text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}); err != nil {
		return p.fail(ctx, "channel.announce", "", err)
	}
	return nil
}

// Delete removes a channel message.
func (p *Publisher) Delete(ctx context.Context, ref domain.ChannelRef) error {
	if ref.IsZero() {
		return nil
	}
	if err := p.api.Delete(editable(ref)); err != nil {
		return p.fail(ctx, "channel.delete", "", err)
	}
	return nil
}

func (p *Publisher) fail(ctx context.Context, event, postID string, err error) error {
	logger.Warn(ctx, component, event,
		slog.String("status", "fail"),
		slog.String("post_id", postID),
		logger.Err(err),
	)
	return fmt.Errorf("%s: %w: %w", event, domain.ErrPublishFailed, err)
}

func editable(ref domain.ChannelRef) tele.StoredMessage {
	return tele.StoredMessage{ChatID: ref.ChatID, MessageID: strconv.Itoa(ref.MessageID)}
}
