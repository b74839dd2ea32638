package liveclient

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/switchhub/internal/device"
)

// Entry is the latest known state of one device.
type Entry struct {
	DeviceName string        `json:"device_name"`
	Status     device.Status `json:"status"`
	Time       time.Time     `json:"time"`
	Source     string        `json:"source,omitempty"`
}

// Board folds hub messages into the latest status per device. Its Apply
// method is a Handler.
type Board struct {
	mu      sync.RWMutex
	devices map[string]Entry
	updated time.Time
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{devices: make(map[string]Entry)}
}

// Apply records msg as the device's current state. Messages without a
// device name are ignored.
func (b *Board) Apply(msg device.Message) error {
	if msg.DeviceName == "" {
		return nil
	}

	b.mu.Lock()
	b.devices[msg.DeviceName] = Entry{
		DeviceName: msg.DeviceName,
		Status:     msg.Status,
		Time:       msg.Time,
		Source:     msg.Source,
	}
	b.updated = time.Now()
	b.mu.Unlock()
	return nil
}

// Status returns the current status of one device.
func (b *Board) Status(deviceName string) (device.Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.devices[deviceName]
	return e.Status, ok
}

// Entries returns every device ordered by name.
func (b *Board) Entries() []Entry {
	b.mu.RLock()
	entries := make([]Entry, 0, len(b.devices))
	for _, e := range b.devices {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DeviceName < entries[j].DeviceName
	})
	return entries
}

// Len returns the number of known devices.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.devices)
}

// CountOn returns how many devices are currently on.
func (b *Board) CountOn() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, e := range b.devices {
		if e.Status.On() {
			n++
		}
	}
	return n
}

// LastUpdate returns when the board last changed, or the zero time.
func (b *Board) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}
