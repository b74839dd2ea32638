package device

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantErr    error
		wantStatus Status
	}{
		{
			name:       "upper case on",
			payload:    `{"device_name":"L15R7_B1","l15r7_b1":"ON"}`,
			wantStatus: StatusOn,
		},
		{
			name:       "mixed case off",
			payload:    `{"device_name":"L1R2_B1","l1r2_b1":"oFf"}`,
			wantStatus: StatusOff,
		},
		{
			name:       "extra fields ignored",
			payload:    `{"device_name":"L3R40_B1","l3r40_b1":"on","rssi":-60}`,
			wantStatus: StatusOn,
		},
		{
			name:    "malformed json",
			payload: `{"device_name":`,
			wantErr: ErrDecode,
		},
		{
			name:    "json array",
			payload: `["L15R7_B1","on"]`,
			wantErr: ErrDecode,
		},
		{
			name:    "json null",
			payload: `null`,
			wantErr: ErrDecode,
		},
		{
			name:    "missing device_name",
			payload: `{"l15r7_b1":"on"}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "empty device_name",
			payload: `{"device_name":"","":"on"}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "numeric device_name",
			payload: `{"device_name":15,"15":"on"}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "bad name",
			payload: `{"device_name":"BADNAME","badname":"on"}`,
			wantErr: ErrBadFormat,
		},
		{
			name:    "lower case name",
			payload: `{"device_name":"l15r7_b1","l15r7_b1":"on"}`,
			wantErr: ErrBadFormat,
		},
		{
			name:    "wrong suffix",
			payload: `{"device_name":"L15R7_B2","l15r7_b2":"on"}`,
			wantErr: ErrBadFormat,
		},
		{
			name:    "trailing junk",
			payload: `{"device_name":"L15R7_B1x","l15r7_b1x":"on"}`,
			wantErr: ErrBadFormat,
		},
		{
			name:    "status under original case key",
			payload: `{"device_name":"L15R7_B1","L15R7_B1":"on"}`,
			wantErr: ErrBadStatus,
		},
		{
			name:    "unknown status",
			payload: `{"device_name":"L15R7_B1","l15r7_b1":"dim"}`,
			wantErr: ErrBadStatus,
		},
		{
			name:    "boolean status",
			payload: `{"device_name":"L15R7_B1","l15r7_b1":true}`,
			wantErr: ErrBadStatus,
		},
		{
			name:    "status with whitespace",
			payload: `{"device_name":"L15R7_B1","l15r7_b1":" on"}`,
			wantErr: ErrBadStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Validate([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate(%s) error = %v, want %v", tt.payload, err, tt.wantErr)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("error %T is not a *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%s) unexpected error = %v", tt.payload, err)
			}
			if ev.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", ev.Status, tt.wantStatus)
			}
			if ev.Timestamp.IsZero() {
				t.Error("Timestamp should default to now")
			}
		})
	}
}

func TestValidate_UsesPayloadTime(t *testing.T) {
	ev, err := Validate([]byte(`{"device_name":"L2R3_B1","l2r3_b1":"on","time":"2026-03-01T09:30:00+01:00"}`))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	want := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}

	before := time.Now().Add(-time.Second)
	ev, err = Validate([]byte(`{"device_name":"L2R3_B1","l2r3_b1":"on","time":"yesterday"}`))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if ev.Timestamp.Before(before) {
		t.Errorf("unparseable time should fall back to now, got %v", ev.Timestamp)
	}
}

func TestValidationError_Message(t *testing.T) {
	_, err := Validate([]byte(`{"device_name":"BADNAME","badname":"on"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `"BADNAME"`) {
		t.Errorf("error %q should name the device", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"on":  StatusOn,
		"ON":  StatusOn,
		"Off": StatusOff,
		"":    StatusOff,
		"1":   StatusOff,
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMessage_MarshalJSON(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("live event", func(t *testing.T) {
		ev := StatusEvent{DeviceName: "L15R7_B1", Status: StatusOn, Timestamp: ts}
		got, err := json.Marshal(ev.Message())
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		want := `{"device_name":"L15R7_B1","l15r7_b1":"on","time":"2026-03-01T09:00:00Z"}`
		if string(got) != want {
			t.Errorf("Marshal() = %s, want %s", got, want)
		}
	})

	t.Run("snapshot record", func(t *testing.T) {
		rec := StatusRecord{ID: 4, DeviceName: "L1R1_B1", Status: "OFF", Timestamp: ts}
		got, err := json.Marshal(rec.Message())
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		want := `{"device_name":"L1R1_B1","l1r1_b1":"off","time":"2026-03-01T09:00:00Z","source":"database"}`
		if string(got) != want {
			t.Errorf("Marshal() = %s, want %s", got, want)
		}
	})

	t.Run("unknown status and zero time", func(t *testing.T) {
		msg := Normalize("L1R1_B1", "flicker", time.Time{}, "")
		if msg.Status != StatusOff {
			t.Errorf("Status = %q, want off", msg.Status)
		}
		if time.Since(msg.Time) > time.Minute {
			t.Errorf("Time = %v, want about now", msg.Time)
		}
	})
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"device_name":"L15R7_B1","l15r7_b1":"ON","time":"2026-03-01T09:00:00Z","source":"database"}`), &msg)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.DeviceName != "L15R7_B1" || msg.Status != StatusOn || msg.Source != SourceDatabase {
		t.Errorf("Unmarshal() = %+v", msg)
	}
	if msg.Time.IsZero() {
		t.Error("Time should be parsed")
	}

	var bare Message
	if err := json.Unmarshal([]byte(`{"type":"pong"}`), &bare); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if bare.DeviceName != "" || bare.Status != StatusOff {
		t.Errorf("Unmarshal(pong) = %+v", bare)
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name       string
		line, room string
		ok         bool
	}{
		{"L15R7_B1", "15", "7", true},
		{"L1R1_B1", "1", "1", true},
		{"L15R7_B2", "", "", false},
		{"l15r7_b1", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		line, room, ok := Location(tt.name)
		if line != tt.line || room != tt.room || ok != tt.ok {
			t.Errorf("Location(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.name, line, room, ok, tt.line, tt.room, tt.ok)
		}
	}
}
