package service

import (
	"context"
	"errors"
	"sync"

	"notesync-be/internal/entity"
	"notesync-be/pkg/events"

	"github.com/cenkalti/backoff/v5"
)

var errStoreDown = errors.New("store down")

func noBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// stubEmbedder returns a fixed vector and counts its calls.
type stubEmbedder struct {
	mu      sync.Mutex
	vector  []float32
	err     error
	texts   []string
	queries int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	if isQuery {
		e.queries++
	}
	if e.err != nil {
		return nil, e.err
	}
	return append([]float32(nil), e.vector...), nil
}

// recordingBroadcast keeps every published event in order.
type recordingBroadcast struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBroadcast) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcast) Consume(ctx context.Context) error {
	return nil
}

func (b *recordingBroadcast) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Name
	}
	return out
}

func (b *recordingBroadcast) Last() events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

// recordingTransport is a relay transport that remembers what it was asked to send.
type recordingTransport struct {
	mu        sync.Mutex
	err       error
	sent      []events.Event
	remaining int
	done      chan struct{}
}

func newRecordingTransport(expect int) *recordingTransport {
	t := &recordingTransport{done: make(chan struct{})}
	t.remaining = expect
	if expect == 0 {
		close(t.done)
	}
	return t
}

func (t *recordingTransport) Name() string { return "test" }

func (t *recordingTransport) Publish(ctx context.Context, event events.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, event)
	t.remaining--
	if t.remaining == 0 {
		close(t.done)
	}
	return t.err
}

func (t *recordingTransport) Close() error { return nil }

func testNote(tenant, id string, modified int64) *entity.Record {
	return &entity.Record{
		UniqueID:     id,
		TenantID:     tenant,
		RecordType:   entity.RecordTypeNote,
		Created:      modified,
		LastModified: modified,
		Title:        "note " + id,
		Content:      "body of " + id,
	}
}

func recordIDs(records []*entity.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.UniqueID)
	}
	return out
}

type logEntry struct {
	level   string
	module  string
	message string
	details map[string]interface{}
}

// recordingLogger keeps every entry so tests can assert on what was reported.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, module, message string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, module: module, message: message, details: details})
}

func (l *recordingLogger) Debug(module, message string, details map[string]interface{}) {
	l.add("debug", module, message, details)
}

func (l *recordingLogger) Info(module, message string, details map[string]interface{}) {
	l.add("info", module, message, details)
}

func (l *recordingLogger) Warn(module, message string, details map[string]interface{}) {
	l.add("warn", module, message, details)
}

func (l *recordingLogger) Error(module, message string, details map[string]interface{}) {
	l.add("error", module, message, details)
}

func (l *recordingLogger) Sync() error { return nil }

// find returns the first entry at level whose message matches.
func (l *recordingLogger) find(level, message string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.message == message {
			return e, true
		}
	}
	return logEntry{}, false
}
