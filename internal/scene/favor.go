package scene

import (
	"strings"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

const maxDescriptionRunes = 500

// favorFlow: from → to → urgency → categories → weight → details →
// confirmation → commit. Unlike travel it takes the route as two taps and
// asks for an explicit yes/no before committing.
type favorFlow struct {
	creator PostCreator
}

func (f *favorFlow) start(flowContext) (step, error) {
	return awaitingFrom{}, nil
}

func (f *favorFlow) prompt(st step) Prompt {
	switch s := st.(type) {
	case awaitingFrom:
		return Prompt{Text: "🙏 New favor request\n\nWhere should the item be picked up?", Rows: cityRows(actFrom, "")}
	case awaitingTo:
		return Prompt{Text: "🙏 From " + s.from.Name() + "\n\nWhere should it be delivered?", Rows: cityRows(actTo, s.from)}
	case awaitingUrgency:
		rows := make([][]Button, 0, len(domain.Urgencies)+1)
		for _, u := range domain.Urgencies {
			rows = append(rows, []Button{btn(Favor, u.Label(), actUrgency, string(u))})
		}
		rows = append(rows, cancelRow(Favor))
		return Prompt{Text: "🙏 " + s.route.String() + "\n\nHow urgent is it?", Rows: rows}
	case awaitingCategories:
		return categoriesPrompt(Favor, s)
	case awaitingWeight:
		return weightPrompt(Favor)
	case awaitingDetails:
		return Prompt{
			Text: "📝 Add details: type a short description or send a photo (a caption becomes the description).",
			Rows: [][]Button{{btn(Favor, "⏭ Skip", actSkip, "")}, cancelRow(Favor)},
		}
	case awaitingConfirmation:
		return Prompt{
			Text: favorSummary(s.draft) + "\n\nPost this favor request?",
			Rows: [][]Button{{btn(Favor, "✅ Yes, post it", actConfirm, "yes"), btn(Favor, "✖️ No", actConfirm, "no")}},
		}
	}
	return Prompt{}
}

func cityRows(act string, exclude domain.City) [][]Button {
	row := make([]Button, 0, len(domain.Cities))
	for _, c := range domain.Cities {
		if c == exclude {
			continue
		}
		row = append(row, btn(Favor, c.Name(), act, string(c)))
	}
	return [][]Button{row, cancelRow(Favor)}
}

func (f *favorFlow) handle(ctx flowContext, st step, a action) (outcome, error) {
	switch s := st.(type) {
	case awaitingFrom:
		if !a.tap(actFrom) {
			return expectTap(st, a), nil
		}
		c := domain.City(a.value)
		if !c.Valid() {
			return ignore, nil
		}
		return advance(awaitingTo{from: c}), nil

	case awaitingTo:
		if !a.tap(actTo) {
			return expectTap(st, a), nil
		}
		route := domain.Route{From: s.from, To: domain.City(a.value)}
		if !route.Valid() {
			return ignore, nil
		}
		return advance(awaitingUrgency{route: route}), nil

	case awaitingUrgency:
		if !a.tap(actUrgency) {
			return expectTap(st, a), nil
		}
		u := domain.Urgency(a.value)
		if !u.Valid() {
			return ignore, nil
		}
		base := domain.Draft{Kind: domain.KindFavor, OwnerID: ctx.userID, Route: s.route, Urgency: u}
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
		return advance(awaitingDetails{draft: d}), nil

	case awaitingDetails:
		d := s.draft
		switch {
		case a.tap(actSkip):
		case a.kind == InputText:
			if a.text == "" {
				return stay(st, ""), nil
			}
			d.Description = truncateRunes(a.text, maxDescriptionRunes)
		case a.kind == InputPhoto:
			d.PhotoRef = a.photo
			d.Description = truncateRunes(a.text, maxDescriptionRunes)
		default:
			return ignore, nil
		}
		return advance(awaitingConfirmation{draft: d}), nil

	case awaitingConfirmation:
		if !a.tap(actConfirm) {
			return expectTap(st, a), nil
		}
		switch a.value {
		case "yes":
			return commit(ctx, f.creator, s.draft)
		case "no":
			return finish("🗑 Favor request discarded."), nil
		}
		return ignore, nil
	}
	return ignore, nil
}

// favorSummary is shown before a favor request is confirmed.
func favorSummary(d domain.Draft) string {
	var b strings.Builder
	b.WriteString("📋 Summary\n")
	b.WriteString("\nRoute: " + d.Route.String())
	b.WriteString("\nUrgency: " + d.Urgency.Label())
	labels := make([]string, len(d.Categories))
	for i, c := range d.Categories {
		labels[i] = c.Label()
	}
	b.WriteString("\nCategories: " + strings.Join(labels, ", "))
	if d.Weight != "" {
		b.WriteString("\nWeight: " + d.Weight)
	}
	if d.Description != "" {
		b.WriteString("\nDetails: " + d.Description)
	}
	if d.PhotoRef != "" {
		b.WriteString("\nPhoto: attached")
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}
