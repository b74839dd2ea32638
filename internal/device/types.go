package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the normalized on/off state of a switch.
type Status string

// Status values. Anything else is normalized to StatusOff on output.
const (
	StatusOn  Status = "on"
	StatusOff Status = "off"
)

// ParseStatus accepts "on" or "off" in any letter case.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(s)) {
	case StatusOn:
		return StatusOn, true
	case StatusOff:
		return StatusOff, true
	default:
		return "", false
	}
}

// NormalizeStatus lowercases s and falls back to StatusOff when it is not on/off.
func NormalizeStatus(s string) Status {
	if st, ok := ParseStatus(s); ok {
		return st
	}
	return StatusOff
}

// On reports whether the status is StatusOn.
func (s Status) On() bool {
	return s == StatusOn
}

// StatusKey returns the payload key that carries a device's status.
func StatusKey(deviceName string) string {
	return strings.ToLower(deviceName)
}

// StatusEvent is one accepted broker message. Immutable once created.
//
// Timestamp is the device-reported time and only travels on the outbound
// message; stored rows are stamped when the store writes them.
type StatusEvent struct {
	DeviceName string
	Status     Status
	Timestamp  time.Time
}

// Message returns the outbound form of the event.
func (e StatusEvent) Message() Message {
	return Normalize(e.DeviceName, string(e.Status), e.Timestamp, "")
}

// StatusRecord is a stored row of the device_status log.
type StatusRecord struct {
	ID         int64     `json:"id"`
	DeviceName string    `json:"device_name"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Message returns the snapshot form of the record, tagged as coming from the database.
func (r StatusRecord) Message() Message {
	return Normalize(r.DeviceName, string(r.Status), r.Timestamp, SourceDatabase)
}

// DailyUsage is the number of recorded events on one calendar day.
type DailyUsage struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// SourceDatabase marks snapshot messages replayed from the store.
const SourceDatabase = "database"

// Message is the JSON object delivered to live subscribers:
//
//	{"device_name":"L15R7_B1","l15r7_b1":"on","time":"2026-03-01T09:00:00Z"}
//
// Snapshot messages also carry "source":"database".
type Message struct {
	DeviceName string
	Status     Status
	Time       time.Time
	Source     string
}

// Normalize builds an outbound Message. The status is lowercased and
// defaults to off, and a zero timestamp becomes the current time.
func Normalize(deviceName, status string, ts time.Time, source string) Message {
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{
		DeviceName: deviceName,
		Status:     NormalizeStatus(status),
		Time:       ts.UTC(),
		Source:     source,
	}
}

// MarshalJSON writes the keys in a fixed order with the status under the
// lowercased device name.
func (m Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	type field struct{ key, value string }
	fields := []field{
		{"device_name", m.DeviceName},
		{StatusKey(m.DeviceName), string(NormalizeStatus(string(m.Status)))},
		{"time", m.Time.UTC().Format(time.RFC3339Nano)},
	}
	if m.Source != "" {
		fields = append(fields, field{"source", m.Source})
	}

	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a subscriber message. It is lenient: a missing or
// unrecognised status becomes off and a missing time stays zero.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var name string
	if v, ok := raw["device_name"]; ok {
		if err := json.Unmarshal(v, &name); err != nil {
			return fmt.Errorf("device_name: %w", err)
		}
	}

	var status, ts, source string
	if v, ok := raw[StatusKey(name)]; ok && name != "" {
		_ = json.Unmarshal(v, &status) //nolint:errcheck // non-string status normalizes to off
	}
	if v, ok := raw["time"]; ok {
		_ = json.Unmarshal(v, &ts) //nolint:errcheck // malformed time stays zero
	}
	if v, ok := raw["source"]; ok {
		_ = json.Unmarshal(v, &source) //nolint:errcheck // optional
	}

	m.DeviceName = name
	m.Status = NormalizeStatus(status)
	m.Source = source
	m.Time = time.Time{}
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		m.Time = parsed
	}
	return nil
}
