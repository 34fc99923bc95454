package model

import "errors"

// Reason codes reported to callers. They are stable and safe to match on.
const (
	CodeValidation         = "validation_error"
	CodeWeakPassword       = "weak_password"
	CodeDuplicateConflict  = "duplicate_conflict"
	CodeQuotaExceeded      = "quota_exceeded"
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeInvalidCredentials = "invalid_credentials"
	CodeTenantNotFound     = "tenant_not_found"
	CodeTenantSuspended    = "tenant_suspended"
	CodeInvalidAssignee    = "invalid_assignee"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeInternal           = "internal_error"
)

// Error is an expected, caller-actionable failure carrying a reason code.
type Error struct {
	code   string
	msg    string
	parent *Error
}

func (e *Error) Error() string { return e.msg }

// Code returns the stable reason code.
func (e *Error) Code() string { return e.code }

func (e *Error) Unwrap() error {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

var (
	ErrValidation = &Error{code: CodeValidation, msg: "validation failed"}
	// ErrWeakPassword is also a validation failure.
	ErrWeakPassword = &Error{code: CodeWeakPassword, msg: "password must be at least 8 characters", parent: ErrValidation}

	ErrConflict           = &Error{code: CodeDuplicateConflict, msg: "duplicate conflict"}
	ErrDuplicateSubdomain = &Error{code: CodeDuplicateConflict, msg: "subdomain already registered", parent: ErrConflict}
	ErrDuplicateEmail     = &Error{code: CodeDuplicateConflict, msg: "email already registered in tenant", parent: ErrConflict}

	ErrQuotaExceeded      = &Error{code: CodeQuotaExceeded, msg: "quota exceeded"}
	ErrNotFound           = &Error{code: CodeNotFound, msg: "not found"}
	ErrForbidden          = &Error{code: CodeForbidden, msg: "forbidden"}
	ErrInvalidCredentials = &Error{code: CodeInvalidCredentials, msg: "invalid credentials"}
	ErrTenantNotFound     = &Error{code: CodeTenantNotFound, msg: "tenant not found"}
	ErrTenantSuspended    = &Error{code: CodeTenantSuspended, msg: "tenant is suspended"}
	ErrInvalidAssignee    = &Error{code: CodeInvalidAssignee, msg: "assignee must belong to the same tenant"}

	ErrInvalidToken = &Error{code: CodeInvalidToken, msg: "invalid token"}
	ErrTokenExpired = &Error{code: CodeTokenExpired, msg: "token expired", parent: ErrInvalidToken}
)

// Code returns the reason code for err. Unexpected errors report CodeInternal
// and a nil error reports the empty string.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeInternal
}

// IsExpected reports whether err is part of the caller-facing taxonomy.
func IsExpected(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
