package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseCustomDate(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, time.January, 10, 15, 30, 0, 0, loc)

	if _, err := ParseCustomDate("31/02/2025", now, loc); !errors.Is(err, ErrValidation) {
		t.Fatalf("31/02/2025: expected validation error, got %v", err)
	}
	if _, err := ParseCustomDate(now.AddDate(0, 0, -1).Format("02/01/2006"), now, loc); !errors.Is(err, ErrValidation) {
		t.Fatalf("yesterday: expected validation error, got %v", err)
	}
	if _, err := ParseCustomDate("next friday", now, loc); !errors.Is(err, ErrValidation) {
		t.Fatalf("free text: expected validation error, got %v", err)
	}

	want := time.Date(2025, time.March, 5, 0, 0, 0, 0, loc)
	for _, in := range []string{"05/03/2025", "5/3/2025", "05-03-2025", "05.03.2025", " 5.3.2025 "} {
		got, err := ParseCustomDate(in, now, loc)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %v, want %v", in, got, want)
		}
	}

	today, err := ParseCustomDate("10/01/2025", now, loc)
	if err != nil {
		t.Fatalf("today should be accepted: %v", err)
	}
	if !today.Equal(StartOfDay(now, loc)) {
		t.Fatalf("today parsed as %v", today)
	}
}

func TestParseCustomDateUsesLocation(t *testing.T) {
	loc := time.FixedZone("MMT", 6*3600+1800)
	// 20:00 UTC on Jan 9 is already Jan 10 in Yangon.
	now := time.Date(2025, time.January, 9, 20, 0, 0, 0, time.UTC)
	if _, err := ParseCustomDate("09/01/2025", now, loc); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected 09/01 to be in the past in %s, got %v", loc, err)
	}
}

func TestParseWeight(t *testing.T) {
	for _, in := range []string{"20", "20kg", "20 KG", " 20Kg "} {
		got, err := ParseWeight(in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
		if got != "20kg" {
			t.Fatalf("%q: got %q, want 20kg", in, got)
		}
	}
	for _, in := range []string{"twenty", "-5kg", "0", "0kg", "101kg", "5 lbs", "", "5.5kg"} {
		if _, err := ParseWeight(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", in, err)
		}
	}
}

func TestParseRoute(t *testing.T) {
	r, err := ParseRoute("sin-rgn")
	if err != nil {
		t.Fatalf("ParseRoute: %v", err)
	}
	if r.From != CitySingapore || r.To != CityYangon {
		t.Fatalf("unexpected route %+v", r)
	}
	for _, in := range []string{"SIN-SIN", "SIN", "SIN-NYC", ""} {
		if _, err := ParseRoute(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", in, err)
		}
	}
	if n := len(Routes()); n != 6 {
		t.Fatalf("expected 6 routes, got %d", n)
	}
}
