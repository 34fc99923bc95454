package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"taskhub.io/internal/model"
	"taskhub.io/internal/store/memory"
)

func TestRecordFillsDefaultsAndDrains(t *testing.T) {
	sink := memory.New()
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r := NewRecorder(sink, WithClock(func() time.Time { return fixed }), WithWorkers(2))

	ctx := WithSourceAddr(context.Background(), "203.0.113.7")
	r.Record(ctx, model.AuditEntry{TenantID: "t1", ActorID: "u1", Action: ActionCreateProject, EntityType: "project", EntityID: "p1"})
	r.Record(ctx, model.AuditEntry{TenantID: "t1", ActorID: "u1", Action: ActionDeleteProject, EntityType: "project", EntityID: "p1", SourceAddr: "10.0.0.1"})

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	entries := sink.AuditEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ID == "" || !e.OccurredAt.Equal(fixed) {
			t.Fatalf("defaults not filled: %+v", e)
		}
		switch e.Action {
		case ActionCreateProject:
			if e.SourceAddr != "203.0.113.7" {
				t.Fatalf("source address not taken from context: %+v", e)
			}
		case ActionDeleteProject:
			if e.SourceAddr != "10.0.0.1" {
				t.Fatalf("explicit source address overwritten: %+v", e)
			}
		}
	}
}

func TestSinkFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := memory.New()
	sink.FailAudit(errors.New("relation audit_logs does not exist"))

	r := NewRecorder(sink, WithLogger(zap.New(core)))
	r.Record(context.Background(), model.AuditEntry{ActorID: "u1", Action: ActionLogout, EntityType: "user", EntityID: "u1"})
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	failed := logs.FilterMessage("audit write failed").All()
	if len(failed) != 1 {
		t.Fatalf("expected one failure log, got %d", len(failed))
	}
	if failed[0].ContextMap()["action"] != ActionLogout {
		t.Fatalf("unexpected log context %v", failed[0].ContextMap())
	}
}

type gatedSink struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSink) AppendAudit(context.Context, model.AuditEntry) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := &gatedSink{entered: make(chan struct{}, 4), release: make(chan struct{})}
	r := NewRecorder(sink, WithBuffer(1), WithWorkers(1), WithLogger(zap.New(core)))

	r.Record(context.Background(), model.AuditEntry{Action: "first"})
	<-sink.entered // worker is now blocked inside the sink

	done := make(chan struct{})
	go func() {
		r.Record(context.Background(), model.AuditEntry{Action: "second"}) // fills the buffer
		r.Record(context.Background(), model.AuditEntry{Action: "third"})  // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(sink.release)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	dropped := logs.FilterMessage("audit entry dropped").All()
	if len(dropped) != 1 || dropped[0].ContextMap()["action"] != "third" {
		t.Fatalf("expected third entry dropped, got %+v", dropped)
	}
}

func TestRecordAfterCloseDoesNotPanic(t *testing.T) {
	r := NewRecorder(memory.New())
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r.Record(context.Background(), model.AuditEntry{Action: "late"})
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
