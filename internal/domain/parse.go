package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var customDateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
}

// ParseCustomDate parses a day-first date typed by the user and rejects
// impossible calendar dates and days before today in loc.
func ParseCustomDate(input string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date: %w", ErrValidation)
	}
	for _, layout := range customDateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if t.Before(StartOfDay(now, loc)) {
			return time.Time{}, fmt.Errorf("date %q is in the past: %w", s, ErrValidation)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q: %w", s, ErrValidation)
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

var weightRe = regexp.MustCompile(`(?i)^(\d+)\s*(kg)?$`)

// ParseWeight normalizes custom weight input ("20", "20kg", "20 KG") to "20kg".
func ParseWeight(input string) (string, error) {
	m := weightRe.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return "", fmt.Errorf("weight %q: %w", input, ErrValidation)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > MaxWeightKG {
		return "", fmt.Errorf("weight %q out of range: %w", input, ErrValidation)
	}
	return strconv.Itoa(n) + "kg", nil
}
