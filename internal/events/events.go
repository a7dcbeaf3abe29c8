// Package events is the per-job audit trail: one append-only JSON-lines file
// per job, mirrored to the application log, with an in-process fanout for
// live streaming. Event metadata is redacted before it is persisted, logged
// or published.
package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pipeline/internal/infra"
	"pipeline/internal/redact"
)

// Level classifies an event line.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one audit line.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Level     Level          `json:"level"`
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// subscriberBuffer bounds how far a slow consumer may lag before drops.
const subscriberBuffer = 64

// Log appends and serves per-job event files.
type Log struct {
	root   string
	logger infra.Logger

	mu      sync.Mutex
	subs    map[string]map[int]chan Event
	nextSub int
}

// NewLog initializes the events root, creating it when absent.
func NewLog(root string, logger infra.Logger) (*Log, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("events: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("events: ensure root: %w", err)
	}
	return &Log{root: root, logger: logger, subs: make(map[string]map[int]chan Event)}, nil
}

// Append writes one event line and publishes it to subscribers. The append
// and the publish happen under one lock so subscribers observe file order.
func (l *Log) Append(jobID string, level Level, event, message string, metadata map[string]any) error {
	path, err := l.eventPath(jobID)
	if err != nil {
		return err
	}

	e := Event{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Event:     event,
		Message:   message,
		Metadata:  redact.Map(metadata),
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("events: open %s: %w", jobID, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("events: append %s: %w", jobID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("events: close %s: %w", jobID, err)
	}

	l.mirror(jobID, e)

	for id, ch := range l.subs[jobID] {
		select {
		case ch <- e:
		default:
			l.logger.Warn().Str("job_id", jobID).Int("subscriber", id).Msg("events: slow subscriber, dropping event")
		}
	}
	return nil
}

// mirror repeats the event on the application log.
func (l *Log) mirror(jobID string, e Event) {
	var entry *zerolog.Event
	switch e.Level {
	case LevelError:
		entry = l.logger.Error()
	case LevelWarning:
		entry = l.logger.Warn()
	default:
		entry = l.logger.Info()
	}
	entry = entry.Str("job_id", jobID).Str("event", e.Event)
	if len(e.Metadata) > 0 {
		entry = entry.Fields(e.Metadata)
	}
	entry.Msg("job: " + e.Message)
}

// Read returns all stored events for one job in append order. An absent file
// yields an empty slice; unreadable lines are skipped with a warning.
func (l *Log) Read(jobID string) ([]Event, error) {
	return l.readFile(jobID)
}

func (l *Log) readFile(jobID string) ([]Event, error) {
	path, err := l.eventPath(jobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("events: open %s: %w", jobID, err)
	}
	defer f.Close()

	out := []Event{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			l.logger.Warn().Err(err).Str("job_id", jobID).Msg("events: skipping unreadable line")
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("events: scan %s: %w", jobID, err)
	}
	return out, nil
}

// Subscribe registers a live consumer for one job's events. The returned
// cancel func must be called to release the subscription.
func (l *Log) Subscribe(jobID string) (<-chan Event, func()) {
	l.mu.Lock()
	ch, cancel := l.subscribeLocked(jobID)
	l.mu.Unlock()
	return ch, cancel
}

// Replay returns the stored events plus a live channel that starts exactly
// where the snapshot ends. Both happen under the append lock, so the boundary
// neither drops nor repeats an event.
func (l *Log) Replay(jobID string) ([]Event, <-chan Event, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, err := l.readFile(jobID)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := l.subscribeLocked(jobID)
	return stored, ch, cancel, nil
}

func (l *Log) subscribeLocked(jobID string) (chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	id := l.nextSub
	l.nextSub++
	if l.subs[jobID] == nil {
		l.subs[jobID] = make(map[int]chan Event)
	}
	l.subs[jobID][id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if subs, ok := l.subs[jobID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
				if len(subs) == 0 {
					delete(l.subs, jobID)
				}
			}
		}
	}
	return ch, cancel
}

func (l *Log) eventPath(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", errors.New("events: job id is required")
	}
	if strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("events: invalid job id %q", jobID)
	}
	return filepath.Join(l.root, jobID+".log"), nil
}
