package timemode

import (
	"testing"
	"time"

	"github.com/web3guy0/martin/internal/domain"
)

// ts builds a unix timestamp at the given UTC hour.
func ts(hour int) int64 {
	return time.Date(2024, 6, 15, hour, 30, 0, 0, time.UTC).Unix()
}

func TestModeNonWrap(t *testing.T) {
	t.Parallel()

	r := New(time.UTC, 8, 22)

	tests := []struct {
		hour int
		want domain.TimeMode
	}{
		{0, domain.ModeNight},
		{7, domain.ModeNight},
		{8, domain.ModeDay},   // inclusive start
		{12, domain.ModeDay},
		{21, domain.ModeDay},
		{22, domain.ModeNight}, // exclusive end
		{23, domain.ModeNight},
	}
	for _, tt := range tests {
		if got := r.Mode(ts(tt.hour)); got != tt.want {
			t.Errorf("hour %d: got %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestModeWrapOverMidnight(t *testing.T) {
	t.Parallel()

	// Day session 22:00 -> 06:00.
	r := New(time.UTC, 22, 6)

	tests := []struct {
		hour int
		want domain.TimeMode
	}{
		{21, domain.ModeNight},
		{22, domain.ModeDay},
		{23, domain.ModeDay},
		{0, domain.ModeDay},
		{5, domain.ModeDay},
		{6, domain.ModeNight},
		{12, domain.ModeNight},
	}
	for _, tt := range tests {
		if got := r.Mode(ts(tt.hour)); got != tt.want {
			t.Errorf("hour %d: got %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestModeUsesConfiguredZone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	r := New(loc, 8, 22)

	// 07:00 UTC in June is 09:00 in Berlin (CEST) -> DAY.
	at := time.Date(2024, 6, 15, 7, 0, 0, 0, time.UTC).Unix()
	if got := r.Mode(at); got != domain.ModeDay {
		t.Errorf("07:00 UTC / 09:00 CEST: got %s, want DAY", got)
	}

	// 21:00 UTC is 23:00 in Berlin -> NIGHT.
	at = time.Date(2024, 6, 15, 21, 0, 0, 0, time.UTC).Unix()
	if got := r.Mode(at); got != domain.ModeNight {
		t.Errorf("21:00 UTC / 23:00 CEST: got %s, want NIGHT", got)
	}
}
