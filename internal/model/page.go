package model

import "strings"

const (
	DefaultTenantPageSize  = 10
	DefaultUserPageSize    = 50
	DefaultProjectPageSize = 20
	DefaultTaskPageSize    = 50
	MaxPageSize            = 100
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page to sane bounds, substituting def for a missing limit.
func (p Page) Normalize(def int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset returns the zero-based row offset of the page.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// PageResult is one page of a filtered listing.
type PageResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

// NewPageResult builds a PageResult for items found under page p out of total rows.
func NewPageResult[T any](items []T, total int, p Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return PageResult[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit, TotalPages: pages}
}

type TenantFilter struct {
	Status TenantStatus
	Plan   Plan
}

type UserFilter struct {
	Search string
	Role   Role
}

type ProjectFilter struct {
	Status ProjectStatus
	Search string
}

type TaskFilter struct {
	Status     TaskStatus
	Priority   Priority
	AssignedTo string
	Search     string
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
