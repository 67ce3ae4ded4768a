package domain

import "errors"

var (
	// ErrPermissionDenied is returned when no policy rule permits a write.
	// Reads never surface it; non-permitted rows are filtered instead.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound covers rows that are absent or hidden from the caller.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the referenced quiz is absent or hidden.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrDuplicateProfile indicates a second profile insert for one principal.
	ErrDuplicateProfile = errors.New("profile already exists for principal")
	// ErrProvisioningFailed aborts principal creation when its profile
	// could not be inserted in the same transaction.
	ErrProvisioningFailed = errors.New("principal provisioning failed")
	// ErrInvalidRole indicates a role outside the admin/user enumeration.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidPoints indicates a non-positive question point value.
	ErrInvalidPoints = errors.New("points must be positive")
	// ErrImmutableField indicates an update touching a field set once at insert.
	ErrImmutableField = errors.New("field is immutable")
)
