// Package events publishes pipeline lifecycle notifications.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types emitted by the generation pipeline and cover service.
const (
	TypeGenerationQueued    = "generation.queued"
	TypeGenerationStarted   = "generation.started"
	TypeGenerationProgress  = "generation.progress"
	TypeGenerationCompleted = "generation.completed"
	TypeGenerationPartial   = "generation.partial"
	TypeGenerationFailed    = "generation.failed"
	TypeCoverUpdated        = "cover.updated"
)

// Event is one pipeline notification.
type Event struct {
	Type       string         `json:"type"`
	DocumentID string         `json:"document_id"`
	JobID      string         `json:"job_id,omitempty"`
	At         time.Time      `json:"at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Sink receives pipeline events. Publish failures must not disturb the
// pipeline; implementations log and drop.
type Sink interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// LogSink writes events to the structured log. Used when no broker is
// configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Publish(ctx context.Context, event Event) {
	s.Logger.Info("event",
		"type", event.Type,
		"document_id", event.DocumentID,
		"job_id", event.JobID)
}

func (s *LogSink) Close() error { return nil }

// Memory records events for unit tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (s *Memory) Publish(ctx context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *Memory) Close() error { return nil }

// Events returns a copy of everything published so far.
func (s *Memory) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// ByType returns the published events with the given type.
func (s *Memory) ByType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*Memory)(nil)
)
