package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"sla-clock/internal/sla"
)

// EventStore provides thread-safe, per-issue storage for status events,
// partitioned by source and persisted as one JSONL file per source.
type EventStore struct {
	mu   sync.RWMutex
	logs map[Source][]IssueEvent
}

// NewEventStore creates a new empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		logs: make(map[Source][]IssueEvent),
	}
}

// Append merges events into a source's log, dropping exact duplicates and
// keeping the log ordered by issue, timestamp and sequence.
func (s *EventStore) Append(source Source, events []IssueEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logData := s.logs[source]

	existing := make(map[string]bool, len(logData))
	for _, e := range logData {
		existing[e.identity()] = true
	}

	newCount := 0
	for _, e := range events {
		if !existing[e.identity()] {
			existing[e.identity()] = true
			logData = append(logData, e)
			newCount++
		}
	}

	if newCount == 0 {
		return
	}

	sortEvents(logData)
	s.logs[source] = logData
}

// Put replaces everything stored for one issue with a freshly fetched history.
func (s *EventStore) Put(issue Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := issue.Ref.Source
	kept := s.logs[source][:0:0]
	for _, e := range s.logs[source] {
		if e.IssueKey != issue.Ref.Key {
			kept = append(kept, e)
		}
	}
	kept = append(kept, toIssueEvents(issue)...)
	sortEvents(kept)
	s.logs[source] = kept
}

// Issue returns the stored history of one issue.
func (s *EventStore) Issue(ref Ref) (Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []IssueEvent
	for _, e := range s.logs[ref.Source] {
		if e.IssueKey == ref.Key {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return Issue{}, false
	}

	// Caches written before header rows existed carry the priority on every event.
	priority := matched[0].Priority
	for _, e := range matched {
		if e.Header {
			priority = e.Priority
			break
		}
	}
	return Issue{
		Ref:      ref,
		Priority: sla.Priority(priority),
		Events:   toStatusEvents(matched),
	}, true
}

// Count returns the number of rows in the store for a source, header rows included.
func (s *EventStore) Count(source Source) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[source])
}

// Load reads events from a JSONL cache file for the given source.
func (s *EventStore) Load(cacheDir string, source Source) error {
	path := cachePath(cacheDir, source)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No cache yet, not an error
		}
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer file.Close()

	var events []IssueEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e IssueEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			log.Warn().Err(err).Str("source", string(source)).Msg("Skipping invalid JSON line in cache")
			continue
		}
		events = append(events, e)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading cache: %w", err)
	}

	log.Debug().Str("source", string(source)).Int("count", len(events)).Msg("Loaded events from cache")
	s.Append(source, events)
	return nil
}

// Save persists events for the given source to a JSONL cache file.
func (s *EventStore) Save(cacheDir string, source Source) error {
	s.mu.RLock()
	logData := append([]IssueEvent(nil), s.logs[source]...)
	s.mu.RUnlock()

	if len(logData) == 0 {
		return nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	path := cachePath(cacheDir, source)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)

	for _, e := range logData {
		if err := encoder.Encode(e); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	log.Debug().Str("source", string(source)).Int("count", len(logData)).Msg("Events saved to cache")
	return nil
}

func cachePath(cacheDir string, source Source) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%s.jsonl", source))
}

func sortEvents(events []IssueEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].IssueKey != events[j].IssueKey {
			return events[i].IssueKey < events[j].IssueKey
		}
		if events[i].Header != events[j].Header {
			return events[i].Header
		}
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].Sequence < events[j].Sequence
	})
}

// identity computes a unique string identifier for an event to aid deduplication.
func (e IssueEvent) identity() string {
	if e.Header {
		return e.IssueKey + "|header|" + e.Priority
	}
	return fmt.Sprintf("%s|%d|%d|%s", e.IssueKey, e.Timestamp, e.Sequence, e.Label)
}
