package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"sla-clock/internal/sla"
)

type fileEvent struct {
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
	Sequence  int    `json:"sequence"`
}

// ReadEventFile reads a JSON list of {"label", "timestamp", "sequence"}
// objects. Timestamps are RFC 3339; a malformed one fails the whole file
// with an error wrapping ErrParse.
func ReadEventFile(path string) ([]sla.StatusEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return DecodeEvents(data)
}

// DecodeEvents decodes the event file format from memory.
func DecodeEvents(data []byte) ([]sla.StatusEvent, error) {
	var raw []fileEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event file: %w", err)
	}

	events := make([]sla.StatusEvent, 0, len(raw))
	for i, r := range raw {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("event %d (%q): %w: %v", i, r.Label, ErrParse, err)
		}
		events = append(events, sla.StatusEvent{Label: r.Label, Timestamp: ts, Sequence: r.Sequence})
	}
	return events, nil
}
