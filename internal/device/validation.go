package device

import (
	"encoding/json"
	"regexp"
	"time"
)

// namePattern is the line/room naming scheme: L<digits>R<digits>_B1.
const namePattern = `^L(\d+)R(\d+)_B1$`

var nameRegex = regexp.MustCompile(namePattern)

// ValidateName reports whether name follows the device naming pattern.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return reject(ErrBadFormat, name, "")
	}
	return nil
}

// Location splits a valid device name into its line and room numbers,
// e.g. "L15R7_B1" → ("15", "7").
func Location(name string) (line, room string, ok bool) {
	m := nameRegex.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Validate decides whether a raw broker payload is a meaningful switch event.
//
// Rules, applied in order:
//  1. the payload decodes as a JSON object (ErrDecode)
//  2. it has a string device_name (ErrMissingField)
//  3. device_name matches L<line>R<room>_B1 (ErrBadFormat)
//  4. the field keyed by the lowercased name is "on" or "off" in any case (ErrBadStatus)
//
// The returned event carries the payload's RFC 3339 "time" when present and
// parseable, otherwise the time of validation. Validate has no side effects.
func Validate(raw []byte) (StatusEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return StatusEvent{}, reject(ErrDecode, "", err.Error())
	}
	if fields == nil {
		// JSON null
		return StatusEvent{}, reject(ErrDecode, "", "null payload")
	}

	rawName, ok := fields["device_name"]
	if !ok {
		return StatusEvent{}, reject(ErrMissingField, "", "")
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return StatusEvent{}, reject(ErrMissingField, "", string(rawName))
	}

	if err := ValidateName(name); err != nil {
		return StatusEvent{}, err
	}

	rawStatus, ok := fields[StatusKey(name)]
	if !ok {
		return StatusEvent{}, reject(ErrBadStatus, name, "status field "+StatusKey(name)+" absent")
	}
	var statusText string
	if err := json.Unmarshal(rawStatus, &statusText); err != nil {
		return StatusEvent{}, reject(ErrBadStatus, name, string(rawStatus))
	}
	status, ok := ParseStatus(statusText)
	if !ok {
		return StatusEvent{}, reject(ErrBadStatus, name, statusText)
	}

	return StatusEvent{
		DeviceName: name,
		Status:     status,
		Timestamp:  payloadTime(fields),
	}, nil
}

// payloadTime returns the payload's "time" field, or now.
func payloadTime(fields map[string]json.RawMessage) time.Time {
	if v, ok := fields["time"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Now().UTC()
}
