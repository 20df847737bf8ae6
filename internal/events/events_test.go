package events

import (
	"context"
	"testing"
	"time"
)

func TestMemorySinkRecordsByType(t *testing.T) {
	ctx := context.Background()
	sink := NewMemory()

	sink.Publish(ctx, Event{Type: TypeGenerationQueued, DocumentID: "doc-1", At: time.Now()})
	sink.Publish(ctx, Event{Type: TypeGenerationProgress, DocumentID: "doc-1", At: time.Now()})
	sink.Publish(ctx, Event{Type: TypeGenerationProgress, DocumentID: "doc-1", At: time.Now()})

	if got := len(sink.Events()); got != 3 {
		t.Errorf("events = %d", got)
	}
	if got := len(sink.ByType(TypeGenerationProgress)); got != 2 {
		t.Errorf("progress events = %d", got)
	}
	if got := len(sink.ByType(TypeCoverUpdated)); got != 0 {
		t.Errorf("cover events = %d", got)
	}
}
