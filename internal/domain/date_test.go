package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateOrdinalMatchesProlepticGregorian(t *testing.T) {
	tests := []struct {
		date Date
		want int
	}{
		{date: NewDate(1970, time.January, 1), want: 719163},
		{date: NewDate(2026, time.January, 1), want: 739617},
		{date: NewDate(2000, time.March, 1), want: 730180},
	}

	for _, tt := range tests {
		t.Run(tt.date.String(), func(t *testing.T) {
			if got := tt.date.Ordinal(); got != tt.want {
				t.Fatalf("expected ordinal %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseDateRejectsMalformedInput(t *testing.T) {
	_, err := ParseDate("2026/01/01")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2026, time.February, 28)
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `"2026-02-28"` {
		t.Fatalf("expected \"2026-02-28\", got %s", raw)
	}

	var back Date
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !back.Equal(d) {
		t.Fatalf("expected %s, got %s", d, back)
	}
}

func TestDateOfDropsTimeComponent(t *testing.T) {
	d := DateOf(time.Date(2026, time.March, 5, 23, 59, 0, 0, time.UTC))
	if !d.Equal(NewDate(2026, time.March, 5)) {
		t.Fatalf("expected 2026-03-05, got %s", d)
	}
	if d.AddDays(1).String() != "2026-03-06" {
		t.Fatalf("expected next day 2026-03-06, got %s", d.AddDays(1))
	}
}
