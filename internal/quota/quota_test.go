package quota

import (
	"context"
	"errors"
	"testing"

	"taskhub.io/internal/model"
)

type fakeLedger struct {
	tenant   model.Tenant
	users    int
	projects int
	locked   []string
	err      error
}

func (f *fakeLedger) LockTenant(_ context.Context, id string) (model.Tenant, error) {
	f.locked = append(f.locked, id)
	if f.err != nil {
		return model.Tenant{}, f.err
	}
	return f.tenant, nil
}

func (f *fakeLedger) CountActiveUsers(context.Context, string) (int, error) { return f.users, nil }
func (f *fakeLedger) CountProjects(context.Context, string) (int, error)    { return f.projects, nil }

func TestReserveUserSlot(t *testing.T) {
	l := &fakeLedger{tenant: model.Tenant{ID: "t1", MaxUsers: 5, MaxProjects: 3}, users: 4}
	var e Enforcer

	d, err := e.ReserveUserSlot(context.Background(), l, "t1")
	if err != nil {
		t.Fatalf("ReserveUserSlot: %v", err)
	}
	if !d.Allowed || d.Err() != nil {
		t.Fatalf("expected slot at 4/5, got %+v", d)
	}
	if len(l.locked) != 1 || l.locked[0] != "t1" {
		t.Fatalf("tenant row not locked: %v", l.locked)
	}

	l.users = 5
	d, err = e.ReserveUserSlot(context.Background(), l, "t1")
	if err != nil {
		t.Fatalf("ReserveUserSlot: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial at 5/5")
	}
	if !errors.Is(d.Err(), model.ErrQuotaExceeded) || d.Used != 5 || d.Limit != 5 {
		t.Fatalf("unexpected denial %+v: %v", d, d.Err())
	}
}

func TestReserveProjectSlot(t *testing.T) {
	l := &fakeLedger{tenant: model.Tenant{ID: "t1", MaxUsers: 5, MaxProjects: 3}, projects: 3}
	d, err := Enforcer{}.ReserveProjectSlot(context.Background(), l, "t1")
	if err != nil {
		t.Fatalf("ReserveProjectSlot: %v", err)
	}
	if d.Allowed || d.Resource != ResourceProject {
		t.Fatalf("expected project denial, got %+v", d)
	}
}

func TestReserveSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	l := &fakeLedger{err: boom}
	if _, err := (Enforcer{}).ReserveUserSlot(context.Background(), l, "t1"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
