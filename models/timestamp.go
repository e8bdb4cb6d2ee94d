package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a time.Time that also decodes the zone-less ISO-8601 values
// ("2025-06-11T10:00:00", optionally with fractional seconds or a space
// instead of the T) found in data files written by earlier DeployHub
// releases. Zone-less values are read as local time. Encoding always emits
// RFC 3339.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// At wraps t.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

// Stamp returns a pointer to a Timestamp holding t, for optional fields.
func Stamp(t time.Time) *Timestamp {
	ts := At(t)
	return &ts
}

// ParseTimestamp accepts RFC 3339 and the zone-less layouts above.
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return At(t), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return At(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
