package taskstats_test

import (
	"context"
	"testing"
	"time"

	"foreman/internal/pool"
	"foreman/internal/taskstats"
	"foreman/internal/testsupport"
)

func openStore(t *testing.T) *taskstats.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := taskstats.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(t *testing.T, store *taskstats.Store, action, category, outcome string, duration time.Duration) {
	t.Helper()
	err := store.RecordExecution(context.Background(), pool.ExecutionRecord{
		SubmissionID: "sub-" + action,
		Action:       action,
		Category:     category,
		Priority:     "normal",
		WorkerID:     "worker-0",
		Outcome:      outcome,
		Duration:     duration,
		StartedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("record %s: %v", action, err)
	}
}

func TestSummariesAggregatePerAction(t *testing.T) {
	store := openStore(t)

	record(t, store, "encode", "bulk_conversion", "success", 2*time.Second)
	record(t, store, "encode", "bulk_conversion", "error", 1*time.Second)
	record(t, store, "encode", "bulk_conversion", "timeout", 3*time.Second)
	record(t, store, "ping", "status_check", "success", 5*time.Millisecond)

	summaries, err := store.Summaries(context.Background())
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	encode := summaries[0]
	if encode.Action != "encode" || encode.Executions != 3 || encode.Failures != 1 || encode.Timeouts != 1 {
		t.Fatalf("unexpected encode summary: %+v", encode)
	}
	if encode.AverageDuration() != 2*time.Second {
		t.Fatalf("encode average = %s, want 2s", encode.AverageDuration())
	}
	if summaries[1].Action != "ping" {
		t.Fatalf("summaries not ordered by action: %+v", summaries)
	}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	store := openStore(t)

	record(t, store, "first", "generic", "success", time.Second)
	record(t, store, "second", "generic", "success", time.Second)
	record(t, store, "third", "generic", "success", time.Second)

	recent, err := store.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d records, want 2", len(recent))
	}
	if recent[0].Action != "third" || recent[1].Action != "second" {
		t.Fatalf("unexpected order: %s, %s", recent[0].Action, recent[1].Action)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := taskstats.Open(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	record(t, first, "remux", "native_tool", "success", time.Second)
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := taskstats.Open(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	summaries, err := second.Summaries(context.Background())
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Action != "remux" {
		t.Fatalf("history not persisted across opens: %+v", summaries)
	}
}
