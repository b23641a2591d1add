package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time within a day, stored as minutes since
// midnight. It serializes as "HH:MM".
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid time of day %q: hour must be 0-23", s)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %q: minute must be 0-59", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

// TimeOfDayFrom extracts the time of day from an instant, in the instant's
// location.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
