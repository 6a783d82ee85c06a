package scene

import (
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

// travelFlow: route pair → date → categories → weight → commit.
// There is no confirmation screen; the post is committed right after weight.
type travelFlow struct {
	clock   clock
	creator PostCreator
}

func (f *travelFlow) start(flowContext) (step, error) {
	return awaitingRoute{}, nil
}

func (f *travelFlow) prompt(st step) Prompt {
	switch s := st.(type) {
	case awaitingRoute:
		rows := make([][]Button, 0, 4)
		var row []Button
		for _, r := range domain.Routes() {
			row = append(row, btn(Travel, r.From.Name()+" → "+r.To.Name(), actRoute, r.Key()))
			if len(row) == 2 {
				rows = append(rows, row)
				row = nil
			}
		}
		rows = append(rows, cancelRow(Travel))
		return Prompt{Text: "✈️ New travel plan\n\nWhere are you travelling?", Rows: rows}
	case awaitingDate:
		return Prompt{
			Text: "✈️ " + s.route.String() + "\n\nWhen do you depart?\nTap a button or type a date as DD/MM/YYYY.",
			Rows: [][]Button{
				{btn(Travel, "Today", actDate, "today"), btn(Travel, "Tomorrow", actDate, "tomorrow")},
				cancelRow(Travel),
			},
		}
	case awaitingCategories:
		return categoriesPrompt(Travel, s)
	case awaitingWeight:
		return weightPrompt(Travel)
	}
	return Prompt{}
}

func (f *travelFlow) handle(ctx flowContext, st step, a action) (outcome, error) {
	switch s := st.(type) {
	case awaitingRoute:
		if !a.tap(actRoute) {
			return expectTap(st, a), nil
		}
		route, err := domain.ParseRoute(a.value)
		if err != nil {
			return ignore, nil
		}
		return advance(awaitingDate{route: route}), nil

	case awaitingDate:
		date := f.clock.today()
		switch {
		case a.tap(actDate) && a.value == "today":
		case a.tap(actDate) && a.value == "tomorrow":
			date = date.AddDate(0, 0, 1)
		case a.kind == InputText:
			parsed, err := domain.ParseCustomDate(a.text, f.clock.now(), f.clock.loc)
			if err != nil {
				return stay(st, "⚠️ That date doesn't look right. Use DD/MM/YYYY and pick today or later."), nil
			}
			date = parsed
		default:
			return expectTap(st, a), nil
		}
		base := domain.Draft{Kind: domain.KindTravel, OwnerID: ctx.userID, Route: s.route, DepartureDate: date}
		return advance(awaitingCategories{base: base}), nil

	case awaitingCategories:
		return handleCategories(st, s, a), nil

	case awaitingWeight:
		weight, out, ok := handleWeight(st, a)
		if !ok {
			return out, nil
		}
		d := s.base
		d.Weight = weight
		return commit(ctx, f.creator, d)
	}
	return ignore, nil
}

// expectTap re-prompts typed text or photos at steps that only take buttons
// and ignores taps meant for another step.
func expectTap(st step, a action) outcome {
	if a.kind == InputTap {
		return ignore
	}
	return stay(st, "👇 Please choose one of the options below.")
}

func categoriesPrompt(id ID, s awaitingCategories) Prompt {
	text := "📦 What can be carried?\nTap categories, then Done."
	if len(s.picked) > 0 {
		text += "\n\nSelected:"
		for _, c := range s.picked {
			text += "\n• " + c.Label()
		}
	}
	var rows [][]Button
	var row []Button
	for _, c := range domain.Categories {
		if containsCategory(s.picked, c) {
			continue
		}
		row = append(row, btn(id, c.Label(), actCat, string(c)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []Button{btn(id, "✅ Done", actCatDone, "")}, cancelRow(id))
	return Prompt{Text: text, Rows: rows}
}

func handleCategories(st step, s awaitingCategories, a action) outcome {
	switch {
	case a.tap(actCat):
		c := domain.Category(a.value)
		if !c.Valid() {
			return ignore
		}
		if containsCategory(s.picked, c) {
			return stay(st, "")
		}
		picked := append(append([]domain.Category(nil), s.picked...), c)
		return advance(awaitingCategories{base: s.base, picked: picked})
	case a.tap(actCatDone):
		if len(s.picked) == 0 {
			return stay(st, "⚠️ Pick at least one category first.")
		}
		base := s.base
		base.Categories = s.picked
		return advance(awaitingWeight{base: base})
	}
	return expectTap(st, a)
}

func containsCategory(list []domain.Category, c domain.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func weightPrompt(id ID) Prompt {
	row := make([]Button, 0, len(domain.WeightPresets))
	for _, w := range domain.WeightPresets {
		row = append(row, btn(id, w, actWeight, w))
	}
	return Prompt{
		Text: "⚖️ How much weight?\nTap a preset or type a number in kg (e.g. 7 or 7kg).",
		Rows: [][]Button{row, cancelRow(id)},
	}
}

func handleWeight(st step, a action) (string, outcome, bool) {
	switch {
	case a.tap(actWeight):
		for _, w := range domain.WeightPresets {
			if w == a.value {
				return w, outcome{}, true
			}
		}
		return "", ignore, false
	case a.kind == InputText:
		w, err := domain.ParseWeight(a.text)
		if err != nil {
			return "", stay(st, "⚠️ Please enter a whole number of kilograms between 1 and 100."), false
		}
		return w, outcome{}, true
	}
	return "", expectTap(st, a), false
}

// commit persists the draft through the post service. Validation failures
// are not expected here because every step validated its own field.
func commit(ctx flowContext, creator PostCreator, d domain.Draft) (outcome, error) {
	res, err := creator.Create(ctx.ctx, d)
	if err != nil {
		return outcome{}, err
	}
	label := "travel plan"
	if d.Kind == domain.KindFavor {
		label = "favor request"
	}
	if !res.Published {
		return finish("✅ Your " + label + " " + res.Post.ID + " is saved.\n\n⚠️ We couldn't post it to the channel right now, so it may be less visible. It is still listed under My posts."), nil
	}
	return finish("✅ Your " + label + " " + res.Post.ID + " is live in the channel."), nil
}
