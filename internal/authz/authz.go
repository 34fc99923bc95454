// Package authz decides whether a principal may perform an operation on a
// resource. Decisions are pure: the caller loads the resource descriptor and
// acts on the returned Decision.
package authz

import (
	"fmt"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/model"
)

// Op is the kind of operation being attempted.
type Op string

const (
	Read   Op = "read"
	Create Op = "create"
	Update Op = "update"
	Delete Op = "delete"
)

// ResourceType names the kind of guarded record.
type ResourceType string

const (
	Tenant  ResourceType = "tenant"
	User    ResourceType = "user"
	Project ResourceType = "project"
	Task    ResourceType = "task"
)

// Resource describes the target of an operation. ID is empty for collections
// and for records that do not exist yet. TenantID is empty for the collection
// of all tenants and for platform users.
type Resource struct {
	Type      ResourceType
	ID        string
	TenantID  string
	CreatorID string
}

// Request is one authorization question.
type Request struct {
	Principal auth.Principal
	Op        Op
	Resource  Resource
	// Fields lists the attributes an update touches.
	Fields []string
}

// Denial kinds.
const (
	hidden    = "not_found"
	forbidden = "forbidden"
)

// Decision is the outcome of Decide.
type Decision struct {
	Allowed bool
	// Rule names the table row that matched.
	Rule   string
	Reason string
	denial string
}

// Err converts a denial into the caller-facing error. It returns nil when the
// decision allows the operation.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	// A concealed denial must read exactly like a missing record.
	if d.denial == hidden {
		return model.ErrNotFound
	}
	return fmt.Errorf("%w: %s", model.ErrForbidden, d.Reason)
}

func allow(rule, reason string) Decision {
	return Decision{Allowed: true, Rule: rule, Reason: reason}
}

func deny(rule, reason string) Decision {
	return Decision{Rule: rule, Reason: reason, denial: forbidden}
}

// conceal denies without confirming that an addressed record exists. Requests
// without a record id are refused as forbidden since there is nothing to hide.
func conceal(rule, reason string, res Resource) Decision {
	d := Decision{Rule: rule, Reason: reason, denial: forbidden}
	if res.ID != "" {
		d.denial = hidden
	}
	return d
}

// Decide evaluates the decision table. The first matching rule wins.
func Decide(req Request) Decision {
	p := req.Principal
	res := req.Resource

	if !p.Role.Valid() || p.UserID == "" {
		return deny("principal", "unauthenticated principal")
	}

	// 1. Platform administration is tenant-directory only.
	if p.Role == model.RoleSuperAdmin {
		if res.Type == Tenant {
			return allow("super_admin", "platform administrator manages tenants")
		}
		return conceal("super_admin", "platform administrator has no access to tenant data", res)
	}

	// Non-platform principals always carry a tenant.
	if p.TenantID == "" {
		return deny("principal", "principal has no tenant")
	}

	// 2. Cross-tenant isolation. Platform identities carry no tenant and are
	// hidden the same way.
	if res.TenantID != p.TenantID && !(res.Type == Tenant && res.ID == "") {
		return conceal("isolation", "resource belongs to another tenant", res)
	}

	if res.Type == Tenant {
		return decideOwnTenant(req)
	}

	switch p.Role {
	case model.RoleTenantAdmin:
		return decideTenantAdmin(req)
	case model.RoleUser:
		return decideMember(req)
	}
	return deny("default", "no rule grants access")
}

func decideOwnTenant(req Request) Decision {
	p, res := req.Principal, req.Resource
	if res.TenantID == "" {
		return deny("tenant", "only platform administrators list tenants")
	}
	switch req.Op {
	case Read:
		return allow("tenant", "members read their own tenant")
	case Update:
		if p.Role == model.RoleTenantAdmin && onlyFields(req.Fields, "name") {
			return allow("tenant", "tenant admins may rename their tenant")
		}
		return deny("tenant", "only the tenant name may be changed by a tenant admin")
	}
	return deny("default", "no rule grants access")
}

// 3. Tenant administrators manage everything inside their tenant except their
// own account's existence, role and activation.
func decideTenantAdmin(req Request) Decision {
	p, res := req.Principal, req.Resource
	switch res.Type {
	case User:
		if res.ID == p.UserID {
			switch req.Op {
			case Delete:
				return deny("tenant_admin", "administrators cannot delete themselves")
			case Update:
				if touches(req.Fields, "role", "active") {
					return deny("tenant_admin", "administrators cannot change their own role or activation")
				}
			}
		}
		return allow("tenant_admin", "tenant admin manages users")
	case Project, Task:
		return allow("tenant_admin", "tenant admin manages "+string(res.Type)+"s")
	}
	return deny("default", "no rule grants access")
}

func decideMember(req Request) Decision {
	p, res := req.Principal, req.Resource
	switch res.Type {
	case Project, Task:
		switch req.Op {
		// 4. Members read and create work items.
		case Read, Create:
			return allow("member", "members read and create "+string(res.Type)+"s")
		// 5. Ownership.
		case Update, Delete:
			if res.CreatorID != "" && res.CreatorID == p.UserID {
				return allow("owner", "creator may modify")
			}
			return deny("owner", "only the creator or a tenant admin may modify")
		}
	// 6. Members see and rename only themselves.
	case User:
		if res.ID == "" || res.ID != p.UserID {
			return deny("self", "members may only access their own user record")
		}
		switch req.Op {
		case Read:
			return allow("self", "members read their own record")
		case Update:
			if len(req.Fields) > 0 && onlyFields(req.Fields, "full_name") {
				return allow("self", "members may change their own name")
			}
			return deny("self", "members may only change their full name")
		}
		return deny("self", "members cannot create or delete users")
	}
	// 7.
	return deny("default", "no rule grants access")
}

func onlyFields(fields []string, allowed ...string) bool {
	for _, f := range fields {
		ok := false
		for _, a := range allowed {
			if f == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func touches(fields []string, names ...string) bool {
	for _, f := range fields {
		for _, n := range names {
			if f == n {
				return true
			}
		}
	}
	return false
}
