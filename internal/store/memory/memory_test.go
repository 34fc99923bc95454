package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

func seedTenant(t *testing.T, s *Store, id, sub string) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTenant(ctx, model.Tenant{ID: id, Name: sub, Subdomain: sub, Status: model.TenantActive, Plan: model.PlanFree, MaxUsers: 5, MaxProjects: 3})
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertTenant(ctx, model.Tenant{ID: "t1", Subdomain: "acme"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.TenantByID(ctx, "t1"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected rolled back tenant to be absent, got %v", err)
		}
		return nil
	})
}

func TestUniqueConstraints(t *testing.T) {
	s := New()
	seedTenant(t, s, "t1", "acme")
	seedTenant(t, s, "t2", "globex")

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTenant(ctx, model.Tenant{ID: "t3", Subdomain: "ACME"})
	})
	if !errors.Is(err, model.ErrDuplicateSubdomain) {
		t.Fatalf("expected duplicate subdomain, got %v", err)
	}

	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertUser(ctx, model.User{ID: "u1", TenantID: "t1", Email: "a@x.io"}); err != nil {
			return err
		}
		// Same email in another tenant is allowed.
		return tx.InsertUser(ctx, model.User{ID: "u2", TenantID: "t2", Email: "a@x.io"})
	})
	if err != nil {
		t.Fatalf("insert users: %v", err)
	}
	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertUser(ctx, model.User{ID: "u3", TenantID: "t1", Email: "A@X.IO"})
	})
	if !errors.Is(err, model.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestListTasksOrdering(t *testing.T) {
	s := New()
	seedTenant(t, s, "t1", "acme")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	soon, later := now.Add(24*time.Hour), now.Add(72*time.Hour)

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertProject(ctx, model.Project{ID: "p1", TenantID: "t1", Name: "Launch"}); err != nil {
			return err
		}
		tasks := []model.Task{
			{ID: "low", Priority: model.PriorityLow, DueDate: &soon},
			{ID: "high-undated", Priority: model.PriorityHigh},
			{ID: "high-later", Priority: model.PriorityHigh, DueDate: &later},
			{ID: "high-soon", Priority: model.PriorityHigh, DueDate: &soon},
			{ID: "medium", Priority: model.PriorityMedium},
		}
		for _, tk := range tasks {
			tk.ProjectID, tk.TenantID, tk.Status, tk.CreatedAt = "p1", "t1", model.TaskTodo, now
			if err := tx.InsertTask(ctx, tk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	var got []string
	_ = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		items, total, err := tx.ListTasks(ctx, "p1", model.TaskFilter{}, model.Page{Page: 1, Limit: 10})
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		if total != 5 {
			t.Fatalf("expected 5 tasks, got %d", total)
		}
		for _, tk := range items {
			got = append(got, tk.ID)
		}
		return nil
	})
	want := []string{"high-soon", "high-later", "high-undated", "medium", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestDeleteUserDetachesOwnership(t *testing.T) {
	s := New()
	seedTenant(t, s, "t1", "acme")
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertUser(ctx, model.User{ID: "u1", TenantID: "t1", Email: "a@x.io", Active: true}); err != nil {
			return err
		}
		if err := tx.InsertProject(ctx, model.Project{ID: "p1", TenantID: "t1", CreatedBy: "u1"}); err != nil {
			return err
		}
		if err := tx.InsertTask(ctx, model.Task{ID: "k1", ProjectID: "p1", TenantID: "t1", CreatedBy: "u1", AssignedTo: "u1"}); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, "u1")
	})
	if err != nil {
		t.Fatalf("delete user: %v", err)
	}
	_ = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		p, _ := tx.ProjectByID(ctx, "p1")
		k, _ := tx.TaskByID(ctx, "k1")
		if p.CreatedBy != "" || k.CreatedBy != "" || k.AssignedTo != "" {
			t.Fatalf("ownership not detached: project=%+v task=%+v", p, k)
		}
		return nil
	})
}

func TestAuditFailureInjection(t *testing.T) {
	s := New()
	s.FailAudit(errors.New("disk full"))
	if err := s.AppendAudit(context.Background(), model.AuditEntry{ID: "a1"}); err == nil {
		t.Fatal("expected injected failure")
	}
	s.FailAudit(nil)
	if err := s.AppendAudit(context.Background(), model.AuditEntry{ID: "a2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := s.AuditEntries(); len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("unexpected audit rows %+v", got)
	}
}
