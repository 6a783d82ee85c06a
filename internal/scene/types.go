package scene

import (
	"context"
	"strings"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/posts"
)

// ID names a conversation flow.
type ID string

const (
	Travel   ID = "travel"
	Favor    ID = "favor"
	Settings ID = "settings"
)

// CallbackKey is the callback unique used by every scene button.
const CallbackKey = "scene"

// RenderTarget says where the next prompt goes: a new message in ChatID, or
// an edit of MessageID when it is set.
type RenderTarget struct {
	ChatID    int64
	MessageID int
}

// SendTo targets a new message in chatID.
func SendTo(chatID int64) RenderTarget {
	return RenderTarget{ChatID: chatID}
}

// EditAt targets an existing message.
func EditAt(chatID int64, messageID int) RenderTarget {
	return RenderTarget{ChatID: chatID, MessageID: messageID}
}

// Edits reports whether the target edits an existing message.
func (t RenderTarget) Edits() bool {
	return t.MessageID != 0
}

// Button is an inline button. Unique and Data become the callback payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Prompt is what a step shows to the user.
type Prompt struct {
	Text string
	Rows [][]Button
}

// Renderer delivers prompts and returns the target for the following render,
// normally the message that was just sent or edited.
type Renderer interface {
	Render(ctx context.Context, target RenderTarget, p Prompt) (RenderTarget, error)
}

// PostCreator commits drafts.
type PostCreator interface {
	Create(ctx context.Context, d domain.Draft) (posts.Result, error)
}

// SettingsStore loads and saves notification settings.
type SettingsStore interface {
	NotificationSettings(ctx context.Context, userID int64) (domain.NotificationSettings, error)
	SetNotificationSettings(ctx context.Context, userID int64, s domain.NotificationSettings) error
}

// InputKind classifies inbound updates.
type InputKind int

const (
	InputTap InputKind = iota + 1
	InputText
	InputPhoto
)

func (k InputKind) String() string {
	switch k {
	case InputTap:
		return "tap"
	case InputText:
		return "text"
	case InputPhoto:
		return "photo"
	}
	return "unknown"
}

// Input is one user turn.
type Input struct {
	Kind   InputKind
	UserID int64
	// Data is the callback payload of a tap: <scene>:<action>[:<value>].
	Data string
	// Text carries typed text or a photo caption.
	Text     string
	PhotoRef string
	// Source is the message holding the tapped button.
	Source RenderTarget
}

// TapInput builds a tap input.
func TapInput(userID int64, data string, source RenderTarget) Input {
	return Input{Kind: InputTap, UserID: userID, Data: data, Source: source}
}

// TextInput builds a text input.
func TextInput(userID int64, text string) Input {
	return Input{Kind: InputText, UserID: userID, Text: text}
}

// PhotoInput builds a photo input.
func PhotoInput(userID int64, fileID, caption string) Input {
	return Input{Kind: InputPhoto, UserID: userID, PhotoRef: fileID, Text: caption}
}

// action is an Input decoded against the active scene.
type action struct {
	kind  InputKind
	scene ID
	name  string
	value string
	text  string
	photo string
}

func decode(in Input) action {
	a := action{kind: in.Kind, text: strings.TrimSpace(in.Text), photo: in.PhotoRef}
	if in.Kind == InputTap {
		parts := strings.SplitN(in.Data, ":", 3)
		a.scene = ID(parts[0])
		if len(parts) > 1 {
			a.name = parts[1]
		}
		if len(parts) > 2 {
			a.value = parts[2]
		}
	}
	return a
}

func (a action) tap(name string) bool {
	return a.kind == InputTap && a.name == name
}

func data(id ID, name, value string) string {
	if value == "" {
		return string(id) + ":" + name
	}
	return string(id) + ":" + name + ":" + value
}

func btn(id ID, text, name, value string) Button {
	return Button{Text: text, Unique: CallbackKey, Data: data(id, name, value)}
}

func cancelRow(id ID) []Button {
	return []Button{btn(id, "❌ Cancel", actCancel, "")}
}

const (
	actCancel  = "cancel"
	actRoute   = "route"
	actFrom    = "from"
	actTo      = "to"
	actDate    = "date"
	actUrgency = "urgency"
	actCat     = "cat"
	actCatDone = "catok"
	actWeight  = "wt"
	actSkip    = "skip"
	actConfirm = "confirm"
	actToggle  = "toggle"
	actDone    = "done"
)
