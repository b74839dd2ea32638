package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/switchhub/internal/device"
)

// Measurement is the InfluxDB measurement switch events are written to.
const Measurement = "switch_events"

// WriteSwitchEvent queues one accepted switch event. The call never blocks
// and is a no-op once the client is closed.
func (c *Client) WriteSwitchEvent(ev device.StatusEvent) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(SwitchPoint(ev))
}

// SwitchPoint builds the point for ev. Line and room tags are only set for
// names that follow the L<line>R<room>_B1 scheme.
func SwitchPoint(ev device.StatusEvent) *write.Point {
	tags := map[string]string{"device_name": ev.DeviceName}
	if line, room, ok := device.Location(ev.DeviceName); ok {
		tags["line"] = line
		tags["room"] = room
	}

	var on int64
	if ev.Status.On() {
		on = 1
	}

	return write.NewPoint(
		Measurement,
		tags,
		map[string]interface{}{
			"on":     on,
			"status": string(ev.Status),
		},
		ev.Timestamp,
	)
}
