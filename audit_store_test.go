package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"Aide/pkg/dialer"
	"Aide/pkg/engine"
	"Aide/pkg/executor"
	"Aide/pkg/types"
)

// setupAuditStore creates a temporary AuditStore for testing
func setupAuditStore(t *testing.T) (*AuditStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "audit_store_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := NewAuditStore(filepath.Join(tmpDir, "audit.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create AuditStore: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func finishedAttempt(kind executor.Kind, outcome executor.Outcome, started time.Time, tried ...string) *executor.Attempt {
	a := executor.NewAttempt(kind)
	a.Outcome = outcome
	a.StartedAt = started
	a.FinishedAt = started.Add(1500 * time.Millisecond)
	for _, name := range tried {
		a.Tried = append(a.Tried, executor.StrategyResult{Strategy: name})
	}
	if outcome == executor.OutcomeSucceeded && len(tried) > 0 {
		a.Winner = tried[len(tried)-1]
	}
	return a
}

func TestAuditStoreCreation(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
		t.Fatalf("Database file should exist at %s", store.Path())
	}
}

func TestRecordAndQueryAttempt(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	started := time.Now().Add(-time.Minute)
	a := finishedAttempt(executor.KindSendReply, executor.OutcomeSucceeded, started, "input-node", "send-node")
	if err := store.RecordAttempt(a, engine.AttemptMeta{RuleID: "r1"}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	res, err := store.QueryAttempts(types.AttemptQuery{})
	if err != nil {
		t.Fatalf("QueryAttempts: %v", err)
	}
	if res.Total != 1 || len(res.Attempts) != 1 || res.HasMore {
		t.Fatalf("unexpected result: %+v", res)
	}

	got := res.Attempts[0]
	if got.ID != a.ID {
		t.Errorf("ID = %q, want %q", got.ID, a.ID)
	}
	if got.Kind != "sendReply" || got.Outcome != "succeeded" || got.Winner != "send-node" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.RuleID != "r1" || got.Source != "" {
		t.Errorf("meta not stored: %+v", got)
	}
	if len(got.Tried) != 2 || got.Tried[0] != "input-node" {
		t.Errorf("Tried = %v", got.Tried)
	}
	if got.StartedAt != started.UnixMilli() || got.DurationMs != 1500 {
		t.Errorf("timing = %d/%d", got.StartedAt, got.DurationMs)
	}
}

func TestQueryFilters(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	store.RecordAttempt(finishedAttempt(executor.KindSendReply, executor.OutcomeSucceeded, base, "a"), engine.AttemptMeta{})
	store.RecordAttempt(finishedAttempt(executor.KindSendReply, executor.OutcomeExhausted, base.Add(10*time.Minute), "a", "b"), engine.AttemptMeta{})
	store.RecordAttempt(finishedAttempt(executor.KindAnswerCall, executor.OutcomeSucceeded, base.Add(20*time.Minute), "notification-action"), engine.AttemptMeta{Source: "notification"})

	tests := []struct {
		name  string
		query types.AttemptQuery
		want  int
	}{
		{"all", types.AttemptQuery{}, 3},
		{"by kind", types.AttemptQuery{Kinds: []string{"answerCall"}}, 1},
		{"by outcome", types.AttemptQuery{Outcomes: []string{"allStrategiesExhausted"}}, 1},
		{"kind and outcome", types.AttemptQuery{Kinds: []string{"sendReply"}, Outcomes: []string{"succeeded"}}, 1},
		{"since", types.AttemptQuery{StartTime: base.Add(5 * time.Minute).UnixMilli()}, 2},
		{"until", types.AttemptQuery{EndTime: base.Add(5 * time.Minute).UnixMilli()}, 1},
		{"no match", types.AttemptQuery{Kinds: []string{"dial"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.QueryAttempts(tt.query)
			if err != nil {
				t.Fatalf("QueryAttempts: %v", err)
			}
			if res.Total != tt.want || len(res.Attempts) != tt.want {
				t.Errorf("got total=%d len=%d, want %d", res.Total, len(res.Attempts), tt.want)
			}
		})
	}
}

func TestQueryPagination(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		a := finishedAttempt(executor.KindSendReply, executor.OutcomeSucceeded, base.Add(time.Duration(i)*time.Minute), "a")
		if err := store.RecordAttempt(a, engine.AttemptMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.QueryAttempts(types.AttemptQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Attempts) != 2 || page.Total != 5 || !page.HasMore {
		t.Fatalf("first page: %+v", page)
	}
	if page.Attempts[0].StartedAt < page.Attempts[1].StartedAt {
		t.Error("newest attempt should come first")
	}

	last, err := store.QueryAttempts(types.AttemptQuery{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(last.Attempts) != 1 || last.HasMore {
		t.Errorf("last page: %+v", last)
	}
}

func TestRecordDial(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	res := &dialer.Result{
		Contact: "张三",
		Video:   true,
		Steps: []dialer.StepResult{
			{Step: dialer.StepOpen, Outcome: executor.OutcomeSucceeded, Winner: "launch"},
			{Step: dialer.StepSearch, Outcome: executor.OutcomeExhausted},
		},
	}
	if err := store.RecordDial(res, time.Now(), 3*time.Second); err != nil {
		t.Fatalf("RecordDial: %v", err)
	}

	got, err := store.QueryAttempts(types.AttemptQuery{Kinds: []string{"dial"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Total != 1 {
		t.Fatalf("Total = %d", got.Total)
	}
	rec := got.Attempts[0]
	if rec.Outcome != "allStrategiesExhausted" || rec.Source != "manual" || rec.ID == "" {
		t.Errorf("unexpected dial record: %+v", rec)
	}
	if len(rec.Tried) != 2 || rec.Tried[0] != "open-app:launch" || rec.Tried[1] != "search" {
		t.Errorf("Tried = %v", rec.Tried)
	}
	// the contact name is never persisted
	for _, s := range rec.Tried {
		if s == "张三" {
			t.Error("contact leaked into audit log")
		}
	}
}

func TestPurge(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	old := time.Now().AddDate(0, 0, -40)
	store.RecordAttempt(finishedAttempt(executor.KindSendReply, executor.OutcomeSucceeded, old, "a"), engine.AttemptMeta{})
	store.RecordAttempt(finishedAttempt(executor.KindSendReply, executor.OutcomeSucceeded, time.Now(), "a"), engine.AttemptMeta{})

	n, err := store.Purge(time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	res, _ := store.QueryAttempts(types.AttemptQuery{})
	if res.Total != 1 {
		t.Errorf("Total after purge = %d", res.Total)
	}
}

func TestRecordAfterClose(t *testing.T) {
	store, cleanup := setupAuditStore(t)
	defer cleanup()

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	a := finishedAttempt(executor.KindAnswerCall, executor.OutcomeSucceeded, time.Now(), "a")
	if err := store.RecordAttempt(a, engine.AttemptMeta{}); err == nil {
		t.Error("RecordAttempt after Close should fail")
	}
	// second Close is a no-op
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
