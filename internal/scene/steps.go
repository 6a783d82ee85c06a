package scene

import (
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

// step is the sealed set of conversation states. Each variant carries only
// the fields collected before it, so a state without a route cannot hold
// categories.
type step interface {
	stepName() string
}

type awaitingRoute struct{}

type awaitingDate struct {
	route domain.Route
}

type awaitingFrom struct{}

type awaitingTo struct {
	from domain.City
}

type awaitingUrgency struct {
	route domain.Route
}

// awaitingCategories and awaitingWeight are shared by the travel and favor
// flows; base holds the route and schedule collected so far.
type awaitingCategories struct {
	base   domain.Draft
	picked []domain.Category
}

type awaitingWeight struct {
	base domain.Draft
}

type awaitingDetails struct {
	draft domain.Draft
}

type awaitingConfirmation struct {
	draft domain.Draft
}

type awaitingSettingsChoice struct {
	settings domain.NotificationSettings
}

func (awaitingRoute) stepName() string          { return "awaiting_route" }
func (awaitingDate) stepName() string           { return "awaiting_date" }
func (awaitingFrom) stepName() string           { return "awaiting_from" }
func (awaitingTo) stepName() string             { return "awaiting_to" }
func (awaitingUrgency) stepName() string        { return "awaiting_urgency" }
func (awaitingCategories) stepName() string     { return "awaiting_categories" }
func (awaitingWeight) stepName() string         { return "awaiting_weight" }
func (awaitingDetails) stepName() string        { return "awaiting_details" }
func (awaitingConfirmation) stepName() string   { return "awaiting_confirmation" }
func (awaitingSettingsChoice) stepName() string { return "awaiting_settings_choice" }

// session is the per-chat conversation state.
type session struct {
	scene  ID
	userID int64
	step   step
	target RenderTarget
}

// outcome is what a flow decides for one input.
type outcome struct {
	// next is the following state; nil together with exit ends the scene.
	next step
	// notice is shown above the next prompt (validation re-prompts).
	notice string
	// exit ends the scene with a final message.
	exit *Prompt
	// ignored marks input that does not belong to the current state.
	ignored bool
}

func stay(st step, notice string) outcome {
	return outcome{next: st, notice: notice}
}

func advance(st step) outcome {
	return outcome{next: st}
}

func finish(text string) outcome {
	return outcome{exit: &Prompt{Text: text}}
}

var ignore = outcome{ignored: true}

// flow drives one scene.
type flow interface {
	start(ctx flowContext) (step, error)
	prompt(st step) Prompt
	handle(ctx flowContext, st step, a action) (outcome, error)
}

// clock resolves "today" in the bot timezone.
type clock struct {
	now func() time.Time
	loc *time.Location
}

func (c clock) today() time.Time {
	return domain.StartOfDay(c.now(), c.loc)
}
