package models

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wire format for timestamps: ISO-8601 local with
// millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000"

// Timestamp is a time.Time that serializes in the wire format.
// Zone offsets are dropped on output; inbound offsets are normalized
// to the local zone.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{Time: time.Now()}
}

// MarshalJSON renders the timestamp in the wire format.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

// UnmarshalJSON accepts the wire format plus common ISO-8601 variants.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}

	layouts := []string{
		TimeLayout,
		"2006-01-02T15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			t.Time = parsed.In(time.Local)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// String returns the wire representation.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}
