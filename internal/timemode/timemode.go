// Package timemode maps wall-clock time onto the DAY/NIGHT trading regimes
// using a fixed configured zone.
package timemode

import (
	"time"

	"github.com/web3guy0/martin/internal/domain"
)

type Resolver struct {
	loc          *time.Location
	dayStartHour int
	dayEndHour   int
}

func New(loc *time.Location, dayStartHour, dayEndHour int) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc, dayStartHour: dayStartHour, dayEndHour: dayEndHour}
}

// Mode returns DAY when the local hour falls in [day_start, day_end).
// When day_start >= day_end the day session wraps over midnight:
// DAY iff hour >= day_start or hour < day_end.
func (r *Resolver) Mode(now int64) domain.TimeMode {
	hour := time.Unix(now, 0).In(r.loc).Hour()

	if r.dayStartHour >= r.dayEndHour {
		if hour >= r.dayStartHour || hour < r.dayEndHour {
			return domain.ModeDay
		}
		return domain.ModeNight
	}

	if hour >= r.dayStartHour && hour < r.dayEndHour {
		return domain.ModeDay
	}
	return domain.ModeNight
}

// LocalTime formats the timestamp in the configured zone, for notifications.
func (r *Resolver) LocalTime(ts int64) string {
	return time.Unix(ts, 0).In(r.loc).Format("15:04 MST")
}
