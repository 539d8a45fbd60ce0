package conditions

import (
	"testing"
	"time"
)

func TestWindow_Contains(t *testing.T) {
	w := DefaultWindow()

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday mid-morning", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), true},
		{"at opening", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), true},
		{"last open hour", time.Date(2024, 1, 1, 17, 59, 0, 0, time.UTC), true},
		{"at close", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), false},
		{"before opening", time.Date(2024, 1, 1, 8, 59, 0, 0, time.UTC), false},
		{"saturday in hours", time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC), false},
		{"sunday in hours", time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestWindow_NextOpen(t *testing.T) {
	w := DefaultWindow()

	tests := []struct {
		name string
		t    time.Time
		want time.Time
	}{
		{
			name: "in window unchanged",
			t:    time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC),
			want: time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC),
		},
		{
			name: "before opening same day",
			t:    time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "after close rolls to next day",
			t:    time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "friday evening rolls to monday",
			t:    time.Date(2024, 1, 5, 18, 30, 0, 0, time.UTC),
			want: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "saturday rolls to monday",
			t:    time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.NextOpen(tt.t)
			if !got.Equal(tt.want) {
				t.Errorf("NextOpen(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestWindow_LocationDefaultsToUTC(t *testing.T) {
	w := Window{StartHour: 9, EndHour: 17}
	if w.Location() != time.UTC {
		t.Error("expected UTC default location")
	}
	if !w.Contains(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Error("expected nil-location window to evaluate in UTC")
	}
}
