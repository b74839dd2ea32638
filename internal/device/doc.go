// Package device defines the switch event model and the rules that decide
// whether a raw broker payload is a meaningful switch event.
//
// # Architecture
//
//	 broker payload            outbound message
//	┌──────────────┐  Validate  ┌─────────────┐  Normalize  ┌──────────────┐
//	│ {device_name,│──────────▶│ StatusEvent │───────────▶│ Message JSON │
//	│  l15r7_b1:ON}│            └─────────────┘             └──────────────┘
//	└──────────────┘
//
// # Key Types
//
//   - StatusEvent: one accepted broker message (name, on/off, timestamp)
//   - StatusRecord: latest stored row for a device
//   - DailyUsage: event count for one calendar day
//   - Message: the JSON shape sent to live subscribers
//
// # Device names
//
// Names follow the line/room pattern L<line>R<room>_B1, for example
// L15R7_B1. The status of a device travels under a key equal to its
// lowercased name: {"device_name":"L15R7_B1","l15r7_b1":"on"}.
//
// # Usage
//
//	ev, err := device.Validate(payload)
//	if err != nil {
//	    // errors.Is(err, device.ErrBadFormat) etc.
//	    return
//	}
//	msg := ev.Message()
package device
