package domain

import (
	"fmt"
	"strings"
	"time"
)

// City is a three-letter city code.
type City string

const (
	CitySingapore City = "SIN"
	CityBangkok   City = "BKK"
	CityYangon    City = "RGN"
)

// Cities lists the served cities in display order.
var Cities = []City{CitySingapore, CityBangkok, CityYangon}

var cityNames = map[City]string{
	CitySingapore: "Singapore",
	CityBangkok:   "Bangkok",
	CityYangon:    "Yangon",
}

// Valid reports whether c is a served city.
func (c City) Valid() bool {
	_, ok := cityNames[c]
	return ok
}

// Name returns the display name, or the code for unknown cities.
func (c City) Name() string {
	if n, ok := cityNames[c]; ok {
		return n
	}
	return string(c)
}

// Route is an ordered pair of distinct cities.
type Route struct {
	From City
	To   City
}

// Valid reports whether both ends are served cities and differ.
func (r Route) Valid() bool {
	return r.From.Valid() && r.To.Valid() && r.From != r.To
}

// Key renders the route as FROM-TO, the form used in callback payloads.
func (r Route) Key() string {
	return string(r.From) + "-" + string(r.To)
}

// String renders the route for humans.
func (r Route) String() string {
	return r.From.Name() + " → " + r.To.Name()
}

// ParseRoute parses a FROM-TO key.
func ParseRoute(key string) (Route, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(key), "-")
	r := Route{From: City(strings.ToUpper(from)), To: City(strings.ToUpper(to))}
	if !ok || !r.Valid() {
		return Route{}, fmt.Errorf("route %q: %w", key, ErrValidation)
	}
	return r, nil
}

// Routes returns every ordered pair of distinct served cities.
func Routes() []Route {
	out := make([]Route, 0, len(Cities)*(len(Cities)-1))
	for _, from := range Cities {
		for _, to := range Cities {
			if from != to {
				out = append(out, Route{From: from, To: to})
			}
		}
	}
	return out
}

// Category identifies what kind of item is carried.
type Category string

const (
	CategoryDocuments   Category = "documents"
	CategoryFood        Category = "food"
	CategoryMedicine    Category = "medicine"
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryCosmetics   Category = "cosmetics"
	CategoryOther       Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryDocuments,
	CategoryFood,
	CategoryMedicine,
	CategoryElectronics,
	CategoryClothing,
	CategoryCosmetics,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryDocuments:   "📄 Documents",
	CategoryFood:        "🍱 Food",
	CategoryMedicine:    "💊 Medicine",
	CategoryElectronics: "📱 Electronics",
	CategoryClothing:    "👕 Clothing",
	CategoryCosmetics:   "💄 Cosmetics",
	CategoryOther:       "📦 Other",
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display label.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Urgency is the favor request schedule tier.
type Urgency string

const (
	UrgencyUrgent   Urgency = "urgent"
	UrgencyNormal   Urgency = "normal"
	UrgencyFlexible Urgency = "flexible"
)

// Urgencies lists the tiers from most to least urgent.
var Urgencies = []Urgency{UrgencyUrgent, UrgencyNormal, UrgencyFlexible}

var urgencyWindows = map[Urgency]time.Duration{
	UrgencyUrgent:   3 * 24 * time.Hour,
	UrgencyNormal:   7 * 24 * time.Hour,
	UrgencyFlexible: 14 * 24 * time.Hour,
}

// Valid reports whether u is a known tier.
func (u Urgency) Valid() bool {
	_, ok := urgencyWindows[u]
	return ok
}

// Window is how long a favor request of this tier stays active.
func (u Urgency) Window() time.Duration {
	return urgencyWindows[u]
}

// Label returns the display label.
func (u Urgency) Label() string {
	switch u {
	case UrgencyUrgent:
		return "🔴 Urgent (3 days)"
	case UrgencyNormal:
		return "🟡 Normal (1 week)"
	case UrgencyFlexible:
		return "🟢 Flexible (2 weeks)"
	}
	return string(u)
}

// WeightPresets are the offered weight bands.
var WeightPresets = []string{"1kg", "3kg", "5kg", "10kg"}

// MaxWeightKG bounds custom weight input.
const MaxWeightKG = 100

// ExpiryReason is the reason tag recorded when a favor of this tier expires.
func (u Urgency) ExpiryReason() string {
	switch u {
	case UrgencyUrgent:
		return ReasonUrgentWindowElapsed
	case UrgencyFlexible:
		return ReasonFlexibleWindowElapsed
	}
	return ReasonNormalWindowElapsed
}
