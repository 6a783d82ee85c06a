package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/keyboard"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/store"
)

// SendAPI sends one message.
type SendAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Queue runs sends asynchronously with retries (the sender dispatcher).
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

// Subscribers lists users by notification topic.
type Subscribers interface {
	ListSubscribers(ctx context.Context, topic store.Topic) ([]int64, error)
}

// Links builds contact deep links for posts.
type Links interface {
	ContactLink(postID string) string
}

// Notifier sends private messages outside of a handler: introductions,
// poster notices, daily summaries and new-post alerts.
type Notifier struct {
	api         SendAPI
	queue       Queue
	subscribers Subscribers
	links       Links
	loc         *time.Location
}

// NewNotifier builds a Notifier. A nil queue sends synchronously.
func NewNotifier(api SendAPI, queue Queue, subscribers Subscribers, links Links, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{api: api, queue: queue, subscribers: subscribers, links: links, loc: loc}
}

// SendIntro delivers the introduction synchronously: the caller undoes the
// connection when it fails.
func (n *Notifier) SendIntro(ctx context.Context, requesterID int64, text string) error {
	if _, err := n.api.Send(tele.ChatID(requesterID), text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("send intro to %d: %w", requesterID, err)
	}
	return nil
}

// NotifyPoster queues the notice for the poster.
func (n *Notifier) NotifyPoster(ctx context.Context, posterID int64, text string) error {
	return n.enqueue(ctx, "notify.poster", posterID, text, &tele.SendOptions{DisableWebPagePreview: true})
}

// Direct queues a MarkdownV2 message, used for daily summaries.
func (n *Notifier) Direct(ctx context.Context, userID int64, text string) error {
	return n.enqueue(ctx, "notify.direct", userID, text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, DisableWebPagePreview: true})
}

// NewPost alerts new-post subscribers other than the owner.
func (n *Notifier) NewPost(ctx context.Context, p domain.Post) {
	if n.subscribers == nil {
		return
	}
	ids, err := n.subscribers.ListSubscribers(ctx, store.TopicNewPosts)
	if err != nil {
		logger.Warn(ctx, component, "notify.new_post",
			slog.String("status", "fail"),
			slog.String("post_id", p.ID),
			logger.Err(err),
		)
		return
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, DisableWebPagePreview: true}
	if n.links != nil {
		opts.ReplyMarkup = keyboard.InlineButtonsRows([]keyboard.InlineBtn{{Text: "💬 Contact", URL: n.links.ContactLink(p.ID)}})
	}
	text := channel.Text(p, n.loc)
	sent := 0
	for _, id := range ids {
		if id == p.OwnerID {
			continue
		}
		if err := n.enqueue(ctx, "notify.new_post", id, text, opts); err != nil {
			logger.Warn(ctx, component, "notify.new_post",
				slog.String("status", "fail"),
				slog.String("post_id", p.ID),
				slog.Int64("user_id", id),
				logger.Err(err),
			)
			continue
		}
		sent++
	}
	logger.Debug(ctx, component, "notify.new_post",
		slog.String("status", "ok"),
		slog.String("post_id", p.ID),
		slog.Int("count", sent),
	)
}

func (n *Notifier) enqueue(ctx context.Context, action string, to int64, text string, opts *tele.SendOptions) error {
	run := func() error {
		_, err := n.api.Send(tele.ChatID(to), text, opts)
		return err
	}
	if n.queue == nil {
		return run()
	}
	return n.queue.Enqueue(ctx, action, "sendMessage", run)
}
