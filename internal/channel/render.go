package channel

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/format"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

const dateLayout = "02 Jan 2006"

// Text renders the channel copy of p in MarkdownV2. Posts that left the
// active state are prefixed with a status banner.
func Text(p domain.Post, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	if banner := Banner(p); banner != "" {
		b.WriteString(format.Bold(banner))
		b.WriteString("\n\n")
	}
	if p.Kind == domain.KindTravel {
		b.WriteString("✈️ " + format.Bold("Travel plan"))
	} else {
		b.WriteString("🙏 " + format.Bold("Favor request"))
	}
	b.WriteString(" " + format.Code(p.ID) + "\n\n")
	line(&b, "Route", p.Route.String())
	if p.Kind == domain.KindTravel {
		line(&b, "Departure", p.DepartureDate.In(loc).Format(dateLayout))
	} else {
		line(&b, "Urgency", p.Urgency.Label())
	}
	labels := make([]string, len(p.Categories))
	for i, c := range p.Categories {
		labels[i] = c.Label()
	}
	line(&b, "Categories", strings.Join(labels, ", "))
	if p.Weight != "" {
		line(&b, "Weight", p.Weight)
	}
	if p.Description != "" {
		line(&b, "Details", p.Description)
	}
	if p.Status == domain.StatusActive {
		b.WriteString("\n" + format.V2("Tap Contact to get an introduction."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(format.Bold(label+":") + " " + format.V2(value) + "\n")
}

// Banner is the status line shown on posts that are no longer active.
func Banner(p domain.Post) string {
	switch p.Status {
	case domain.StatusCompleted:
		return "✅ COMPLETED"
	case domain.StatusCancelled:
		return "❌ CANCELLED"
	case domain.StatusExpired:
		return "⌛ EXPIRED"
	}
	return ""
}

// AnnouncementText is the standalone notice posted when the original channel
// message cannot be edited.
func AnnouncementText(p domain.Post) string {
	verb := "is no longer active"
	switch p.Status {
	case domain.StatusCompleted:
		verb = "has been completed"
	case domain.StatusCancelled:
		verb = "has been cancelled"
	case domain.StatusExpired:
		verb = "has expired"
	}
	return format.V2(fmt.Sprintf("%s %s (%s) %s.", Banner(p), p.ID, p.Route.String(), verb))
}

// RouteCount is the number of active posts on one route.
type RouteCount struct {
	Route domain.Route
	Count int
}

// CountByRoute groups active posts by route, busiest first.
func CountByRoute(posts []domain.Post) []RouteCount {
	counts := make(map[string]*RouteCount)
	for _, p := range posts {
		if p.Status != domain.StatusActive {
			continue
		}
		rc, ok := counts[p.Route.Key()]
		if !ok {
			rc = &RouteCount{Route: p.Route}
			counts[p.Route.Key()] = rc
		}
		rc.Count++
	}
	out := make([]RouteCount, 0, len(counts))
	for _, rc := range counts {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Route.Key() < out[j].Route.Key()
	})
	return out
}

// SummaryText renders the daily summary of active posts of kind. It returns
// "" when there is nothing to announce.
func SummaryText(kind domain.Kind, counts []RouteCount) string {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total == 0 {
		return ""
	}
	var b strings.Builder
	if kind == domain.KindTravel {
		b.WriteString("🌅 " + format.Bold("Today's travel plans"))
	} else {
		b.WriteString("🌙 " + format.Bold("Open favor requests"))
	}
	b.WriteString("\n\n")
	for _, c := range counts {
		b.WriteString(format.V2(fmt.Sprintf("• %s: %d", c.Route.String(), c.Count)) + "\n")
	}
	b.WriteString("\n" + format.V2(fmt.Sprintf("%d active in total.", total)))
	return b.String()
}
