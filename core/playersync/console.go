package playersync

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// ConsoleRenderer renders device cards as a plain text table, one line per
// device. It backs the `watch` subcommand.
type ConsoleRenderer struct {
	mu    sync.Mutex
	w     io.Writer
	cards map[string]DeviceSnapshot
	order []string
}

// NewConsoleRenderer creates a ConsoleRenderer writing to w.
func NewConsoleRenderer(w io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{
		w:     w,
		cards: make(map[string]DeviceSnapshot),
	}
}

// RebuildList replaces the whole table.
func (r *ConsoleRenderer) RebuildList(snapshots []DeviceSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cards = make(map[string]DeviceSnapshot, len(snapshots))
	r.order = r.order[:0]
	for _, s := range snapshots {
		r.cards[s.DeviceID] = s
		r.order = append(r.order, s.DeviceID)
	}
	r.print()
}

// ApplyFields updates changed fields of one card and reprints the table.
func (r *ConsoleRenderer) ApplyFields(deviceID string, fields map[Field]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.cards[deviceID]
	if !ok {
		return
	}
	// Apply in a stable order; map iteration order is not.
	keys := make([]string, 0, len(fields))
	for f := range fields {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)
	for _, k := range keys {
		card.setFieldValue(Field(k), fields[Field(k)])
	}
	r.cards[deviceID] = card
	r.print()
}

// Notify prints a user-visible message for one device.
func (r *ConsoleRenderer) Notify(deviceID string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "! %s: %s\n", deviceID, message)
}

func (r *ConsoleRenderer) print() {
	fmt.Fprintf(r.w, "%-20s %-24s %-8s %-8s %-7s %-8s %s\n",
		"DEVICE", "NAME", "ONLINE", "PLAYING", "VOLUME", "BATTERY", "NOW PLAYING")
	for _, id := range r.order {
		card := r.cards[id]
		battery := "N/A"
		if card.BatteryLevel != nil {
			battery = fmt.Sprintf("%d%%", *card.BatteryLevel)
		}
		nowPlaying := "N/A"
		if card.TrackTitle != nil {
			nowPlaying = *card.TrackTitle
			if card.ChapterTitle != nil {
				nowPlaying = *card.ChapterTitle + " / " + nowPlaying
			}
		}
		fmt.Fprintf(r.w, "%-20s %-24s %-8t %-8t %-7d %-8s %s\n",
			card.DeviceID, card.Name, card.Online, card.Playing, card.Volume, battery, nowPlaying)
	}
	fmt.Fprintln(r.w)
}
