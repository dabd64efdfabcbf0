package common

import (
	"testing"
	"time"
)

func TestCurrentTradeDate(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{
			name:     "Weekday stays put",
			now:      time.Date(2026, 8, 19, 12, 0, 0, 0, Eastern()),
			expected: "2026-08-19",
		},
		{
			name:     "Saturday rolls back to Friday",
			now:      time.Date(2026, 8, 22, 9, 0, 0, 0, Eastern()),
			expected: "2026-08-21",
		},
		{
			name:     "Sunday rolls back to Friday",
			now:      time.Date(2026, 8, 23, 9, 0, 0, 0, Eastern()),
			expected: "2026-08-21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentTradeDate(tt.now); got != tt.expected {
				t.Errorf("CurrentTradeDate() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPreviousTradingDay(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		expected string
	}{
		{"Midweek", "2026-08-19", "2026-08-18"},
		{"Monday skips the weekend", "2026-08-24", "2026-08-21"},
		{"Sunday lands on Friday", "2026-08-23", "2026-08-21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PreviousTradingDay(tt.date)
			if err != nil {
				t.Fatalf("PreviousTradingDay(%q) error: %v", tt.date, err)
			}
			if got != tt.expected {
				t.Errorf("PreviousTradingDay(%q) = %q, want %q", tt.date, got, tt.expected)
			}
		})
	}

	if _, err := PreviousTradingDay("not-a-date"); err == nil {
		t.Error("expected error for malformed trade date")
	}
}

func TestLookbackStart(t *testing.T) {
	got, err := LookbackStart("2026-08-21", 40)
	if err != nil {
		t.Fatalf("LookbackStart error: %v", err)
	}
	if got != "2026-07-12" {
		t.Errorf("LookbackStart = %q, want 2026-07-12", got)
	}

	if _, err := LookbackStart("21/08/2026", 40); err == nil {
		t.Error("expected error for malformed trade date")
	}
}

func TestMaxTradeDate(t *testing.T) {
	tests := []struct {
		a, b, expected string
	}{
		{"2026-08-21", "2026-08-20", "2026-08-21"},
		{"2026-08-20", "2026-08-21", "2026-08-21"},
		{"2026-08-21", "2026-08-21", "2026-08-21"},
		{"", "2026-08-21", "2026-08-21"},
		{"2026-08-21", "", "2026-08-21"},
		{"", "", ""},
	}

	for _, tt := range tests {
		if got := MaxTradeDate(tt.a, tt.b); got != tt.expected {
			t.Errorf("MaxTradeDate(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.expected)
		}
	}
}
