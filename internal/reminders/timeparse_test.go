package reminders

import (
	"errors"
	"testing"
	"time"
)

func karachi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		t.Fatalf("failed to load zone: %v", err)
	}
	return loc
}

func TestParseLocalResolvesDayFirstDate(t *testing.T) {
	normalizer := mustNormalizer(t, "Asia/Karachi")
	loc := karachi(t)
	reference := time.Date(2024, time.March, 10, 8, 0, 0, 0, loc)

	tests := []struct {
		name     string
		dateText string
		timeText string
		want     time.Time
	}{
		{
			name:     "day and month name",
			dateText: "15 Mar",
			timeText: "09:00",
			want:     time.Date(2024, time.March, 15, 9, 0, 0, 0, loc),
		},
		{
			name:     "numeric day before month",
			dateText: "15/3",
			timeText: "09:00",
			want:     time.Date(2024, time.March, 15, 9, 0, 0, 0, loc),
		},
		{
			name:     "month name first",
			dateText: "Mar 15",
			timeText: "09:00",
			want:     time.Date(2024, time.March, 15, 9, 0, 0, 0, loc),
		},
		{
			name:     "explicit year",
			dateText: "1 Dec 2025",
			timeText: "23:59",
			want:     time.Date(2025, time.December, 1, 23, 59, 0, 0, loc),
		},
		{
			name:     "dash separated numeric triple",
			dateText: "01-12-2025",
			timeText: "06:30",
			want:     time.Date(2025, time.December, 1, 6, 30, 0, 0, loc),
		},
		{
			name:     "day only defaults month and year",
			dateText: "25",
			timeText: "18:15",
			want:     time.Date(2024, time.March, 25, 18, 15, 0, 0, loc),
		},
		{
			name:     "empty date defaults to reference day",
			dateText: "",
			timeText: "22:00",
			want:     time.Date(2024, time.March, 10, 22, 0, 0, 0, loc),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizer.ParseLocal(tc.dateText, tc.timeText, reference)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("resolved %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseLocalRejectsBadInput(t *testing.T) {
	normalizer := mustNormalizer(t, "Asia/Karachi")
	reference := time.Date(2024, time.March, 10, 8, 0, 0, 0, karachi(t))

	tests := []struct {
		name     string
		dateText string
		timeText string
		wantErr  error
	}{
		{name: "garbage date", dateText: "someday", timeText: "09:00", wantErr: ErrInvalidDate},
		{name: "two month names", dateText: "Mar Apr", timeText: "09:00", wantErr: ErrInvalidDate},
		{name: "impossible calendar date", dateText: "31 Feb", timeText: "09:00", wantErr: ErrInvalidDate},
		{name: "day out of range", dateText: "32 Mar", timeText: "09:00", wantErr: ErrInvalidDate},
		{name: "too many tokens", dateText: "1 2 3 4", timeText: "09:00", wantErr: ErrInvalidDate},
		{name: "garbage time", dateText: "15 Mar", timeText: "nine", wantErr: ErrInvalidTime},
		{name: "hour out of range", dateText: "15 Mar", timeText: "25:00", wantErr: ErrInvalidTime},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizer.ParseLocal(tc.dateText, tc.timeText, reference)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestConversionRoundTrip(t *testing.T) {
	normalizer := mustNormalizer(t, "Asia/Karachi")
	reference := time.Date(2024, time.March, 10, 8, 0, 0, 0, karachi(t))

	local, err := normalizer.ParseLocal("15 Mar", "09:00", reference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	utc := normalizer.ToUTC(local)
	roundTripped := normalizer.ToUTC(normalizer.ToLocal(utc))
	if !roundTripped.Equal(utc) {
		t.Fatalf("round trip drifted: %v != %v", roundTripped, utc)
	}

	// Karachi is UTC+5 year round.
	want := time.Date(2024, time.March, 15, 4, 0, 0, 0, time.UTC)
	if !utc.Equal(want) {
		t.Fatalf("converted to %v, want %v", utc, want)
	}
}

func TestNewNormalizerRejectsUnknownZone(t *testing.T) {
	if _, err := NewNormalizer("Pacific/Nowhere"); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("got error %v, want ErrUnknownZone", err)
	}
	if _, err := NewNormalizer("  "); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("got error %v, want ErrUnknownZone", err)
	}
}
