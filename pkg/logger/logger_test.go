package logger

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/dreschagin/securecam/internal/application/port"
)

type captureLogPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
}

func (p *captureLogPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *captureLogPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, entry := range entries {
		_ = p.Publish(ctx, entry)
	}
	return nil
}

func (p *captureLogPublisher) Flush(context.Context) error { return nil }

func TestLogger_ForwardsToPublisher(t *testing.T) {
	l := New("warn")
	l.logger = log.New(io.Discard, "", 0)
	publisher := &captureLogPublisher{}
	l.SetLogPublisher(publisher)

	l.Info("skipped by level")
	l.Warn("upload slow", "load_key", "LD-1", "attempt", 2)

	if len(publisher.entries) != 1 {
		t.Fatalf("expected 1 published entry, got %d", len(publisher.entries))
	}
	entry := publisher.entries[0]
	if entry.Level != port.LogLevelWarn || entry.Message != "upload slow" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Fields["load_key"] != "LD-1" || entry.Fields["attempt"] != 2 {
		t.Fatalf("unexpected fields %+v", entry.Fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DEBUG, "info": INFO, "warn": WARN, "error": ERROR, "": INFO}
	for raw, want := range tests {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
