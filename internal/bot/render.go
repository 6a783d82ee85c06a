package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/logger"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/keyboard"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/scene"
)

// MessageAPI is the subset of *tele.Bot used to send and edit chat messages.
type MessageAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Renderer delivers scene prompts as plain text with an inline keyboard.
// Edit targets are edited in place; when the edit fails the prompt is sent
// as a new message so the conversation can go on.
type Renderer struct {
	api MessageAPI
}

// NewRenderer wraps the bot API.
func NewRenderer(api MessageAPI) *Renderer {
	return &Renderer{api: api}
}

// Render implements scene.Renderer.
func (r *Renderer) Render(ctx context.Context, target scene.RenderTarget, p scene.Prompt) (scene.RenderTarget, error) {
	opts := &tele.SendOptions{ReplyMarkup: Markup(p.Rows), DisableWebPagePreview: true}
	if target.Edits() {
		stored := tele.StoredMessage{ChatID: target.ChatID, MessageID: strconv.Itoa(target.MessageID)}
		_, err := r.api.Edit(stored, p.Text, opts)
		if err == nil || notModified(err) {
			return target, nil
		}
		logger.Debug(ctx, component, "render.edit",
			slog.String("status", "retry"),
			logger.Err(err),
		)
	}
	msg, err := r.api.Send(tele.ChatID(target.ChatID), p.Text, opts)
	if err != nil {
		return scene.RenderTarget{}, err
	}
	if msg == nil {
		return scene.RenderTarget{}, errors.New("render: no message returned")
	}
	return scene.EditAt(target.ChatID, msg.ID), nil
}

// Markup converts scene buttons into an inline keyboard.
func Markup(rows [][]scene.Button) *tele.ReplyMarkup {
	kb := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Unique, Data: b.Data})
		}
		kb = append(kb, r)
	}
	return keyboard.InlineButtonsRows(kb...)
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
