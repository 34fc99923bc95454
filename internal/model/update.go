package model

import "time"

// TenantUpdate is a partial update. Nil fields are left unchanged.
type TenantUpdate struct {
	Name        *string       `json:"name,omitempty"`
	Status      *TenantStatus `json:"status,omitempty"`
	Plan        *Plan         `json:"subscription_plan,omitempty"`
	MaxUsers    *int          `json:"max_users,omitempty"`
	MaxProjects *int          `json:"max_projects,omitempty"`
}

// Fields lists the column names touched by the update.
func (u TenantUpdate) Fields() []string {
	var out []string
	if u.Name != nil {
		out = append(out, "name")
	}
	if u.Status != nil {
		out = append(out, "status")
	}
	if u.Plan != nil {
		out = append(out, "subscription_plan")
	}
	if u.MaxUsers != nil {
		out = append(out, "max_users")
	}
	if u.MaxProjects != nil {
		out = append(out, "max_projects")
	}
	return out
}

type UserUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

func (u UserUpdate) Fields() []string {
	var out []string
	if u.FullName != nil {
		out = append(out, "full_name")
	}
	if u.Role != nil {
		out = append(out, "role")
	}
	if u.Active != nil {
		out = append(out, "active")
	}
	return out
}

type ProjectUpdate struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty"`
}

func (u ProjectUpdate) Fields() []string {
	var out []string
	if u.Name != nil {
		out = append(out, "name")
	}
	if u.Description != nil {
		out = append(out, "description")
	}
	if u.Status != nil {
		out = append(out, "status")
	}
	return out
}

// TaskUpdate is a partial task update. An AssignedTo pointing at the empty
// string unassigns the task; ClearDueDate removes the due date.
type TaskUpdate struct {
	Title        *string     `json:"title,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Status       *TaskStatus `json:"status,omitempty"`
	Priority     *Priority   `json:"priority,omitempty"`
	AssignedTo   *string     `json:"assigned_to,omitempty"`
	DueDate      *time.Time  `json:"due_date,omitempty"`
	ClearDueDate bool        `json:"clear_due_date,omitempty"`
}

func (u TaskUpdate) Fields() []string {
	var out []string
	if u.Title != nil {
		out = append(out, "title")
	}
	if u.Description != nil {
		out = append(out, "description")
	}
	if u.Status != nil {
		out = append(out, "status")
	}
	if u.Priority != nil {
		out = append(out, "priority")
	}
	if u.AssignedTo != nil {
		out = append(out, "assigned_to")
	}
	if u.DueDate != nil || u.ClearDueDate {
		out = append(out, "due_date")
	}
	return out
}
