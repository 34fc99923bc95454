package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/model"
)

var (
	platform = auth.Principal{UserID: "root", Role: model.RoleSuperAdmin}
	admin    = auth.Principal{UserID: "adm", Role: model.RoleTenantAdmin, TenantID: "acme"}
	member   = auth.Principal{UserID: "bob", Role: model.RoleUser, TenantID: "acme"}
	outsider = auth.Principal{UserID: "eve", Role: model.RoleTenantAdmin, TenantID: "globex"}
)

func TestDecideTable(t *testing.T) {
	ownProject := Resource{Type: Project, ID: "p1", TenantID: "acme", CreatorID: "bob"}
	othersTask := Resource{Type: Task, ID: "k1", TenantID: "acme", CreatorID: "adm"}

	cases := []struct {
		name    string
		req     Request
		allowed bool
		want    error
	}{
		{"super admin lists tenants", Request{platform, Read, Resource{Type: Tenant}, nil}, true, nil},
		{"super admin suspends tenant", Request{platform, Update, Resource{Type: Tenant, ID: "acme", TenantID: "acme"}, []string{"status"}}, true, nil},
		{"super admin cannot read a project", Request{platform, Read, ownProject, nil}, false, model.ErrNotFound},
		{"super admin cannot create users", Request{platform, Create, Resource{Type: User, TenantID: "acme"}, nil}, false, model.ErrForbidden},

		{"cross tenant read is hidden", Request{outsider, Read, ownProject, nil}, false, model.ErrNotFound},
		{"cross tenant delete is hidden", Request{outsider, Delete, othersTask, nil}, false, model.ErrNotFound},
		{"cross tenant tenant read is hidden", Request{outsider, Read, Resource{Type: Tenant, ID: "acme", TenantID: "acme"}, nil}, false, model.ErrNotFound},
		{"platform user is hidden from admins", Request{admin, Read, Resource{Type: User, ID: "root"}, nil}, false, model.ErrNotFound},
		{"cross tenant user create", Request{outsider, Create, Resource{Type: User, TenantID: "acme"}, nil}, false, model.ErrForbidden},

		{"member reads own tenant", Request{member, Read, Resource{Type: Tenant, ID: "acme", TenantID: "acme"}, nil}, true, nil},
		{"member cannot rename tenant", Request{member, Update, Resource{Type: Tenant, ID: "acme", TenantID: "acme"}, []string{"name"}}, false, model.ErrForbidden},
		{"admin renames tenant", Request{admin, Update, Resource{Type: Tenant, ID: "acme", TenantID: "acme"}, []string{"name"}}, true, nil},
		{"admin cannot change plan", Request{admin, Update, Resource{Type: Tenant, ID: "acme", TenantID: "acme"}, []string{"name", "subscription_plan"}}, false, model.ErrForbidden},
		{"admin cannot list tenants", Request{admin, Read, Resource{Type: Tenant}, nil}, false, model.ErrForbidden},

		{"admin updates any task", Request{admin, Update, Resource{Type: Task, ID: "k2", TenantID: "acme", CreatorID: "bob"}, []string{"title"}}, true, nil},
		{"admin deletes a user", Request{admin, Delete, Resource{Type: User, ID: "bob", TenantID: "acme"}, nil}, true, nil},
		{"admin cannot delete self", Request{admin, Delete, Resource{Type: User, ID: "adm", TenantID: "acme"}, nil}, false, model.ErrForbidden},
		{"admin cannot demote self", Request{admin, Update, Resource{Type: User, ID: "adm", TenantID: "acme"}, []string{"role"}}, false, model.ErrForbidden},
		{"admin renames self", Request{admin, Update, Resource{Type: User, ID: "adm", TenantID: "acme"}, []string{"full_name"}}, true, nil},

		{"member creates project", Request{member, Create, Resource{Type: Project, TenantID: "acme", CreatorID: "bob"}, nil}, true, nil},
		{"member lists tasks", Request{member, Read, Resource{Type: Task, TenantID: "acme"}, nil}, true, nil},
		{"member updates own project", Request{member, Update, ownProject, []string{"name"}}, true, nil},
		{"member deletes own project", Request{member, Delete, ownProject, nil}, true, nil},
		{"member cannot update others task", Request{member, Update, othersTask, []string{"status"}}, false, model.ErrForbidden},
		{"member cannot delete orphaned task", Request{member, Delete, Resource{Type: Task, ID: "k3", TenantID: "acme"}, nil}, false, model.ErrForbidden},

		{"member reads self", Request{member, Read, Resource{Type: User, ID: "bob", TenantID: "acme"}, nil}, true, nil},
		{"member renames self", Request{member, Update, Resource{Type: User, ID: "bob", TenantID: "acme"}, []string{"full_name"}}, true, nil},
		{"member cannot promote self", Request{member, Update, Resource{Type: User, ID: "bob", TenantID: "acme"}, []string{"full_name", "role"}}, false, model.ErrForbidden},
		{"member cannot read colleague", Request{member, Read, Resource{Type: User, ID: "adm", TenantID: "acme"}, nil}, false, model.ErrForbidden},
		{"member cannot list users", Request{member, Read, Resource{Type: User, TenantID: "acme"}, nil}, false, model.ErrForbidden},
		{"member cannot create users", Request{member, Create, Resource{Type: User, TenantID: "acme"}, nil}, false, model.ErrForbidden},
		{"member cannot delete self", Request{member, Delete, Resource{Type: User, ID: "bob", TenantID: "acme"}, nil}, false, model.ErrForbidden},

		{"tenant principal without tenant", Request{auth.Principal{UserID: "x", Role: model.RoleUser}, Read, ownProject, nil}, false, model.ErrForbidden},
		{"unknown role", Request{auth.Principal{UserID: "x", Role: "owner", TenantID: "acme"}, Read, ownProject, nil}, false, model.ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.req)
			require.Equal(t, tc.allowed, d.Allowed, "rule=%s reason=%s", d.Rule, d.Reason)
			if tc.allowed {
				require.NoError(t, d.Err())
				return
			}
			require.True(t, errors.Is(d.Err(), tc.want), "got %v", d.Err())
			require.NotEmpty(t, d.Reason)
		})
	}
}

func TestCrossTenantNeverForbidden(t *testing.T) {
	for _, typ := range []ResourceType{User, Project, Task} {
		for _, op := range []Op{Read, Update, Delete} {
			d := Decide(Request{Principal: member, Op: op, Resource: Resource{Type: typ, ID: "x", TenantID: "globex", CreatorID: member.UserID}})
			require.False(t, d.Allowed)
			require.ErrorIs(t, d.Err(), model.ErrNotFound)
			require.NotErrorIs(t, d.Err(), model.ErrForbidden)
		}
	}
}
