package authz

import (
	"github.com/google/uuid"
)

// Principal identifies the actor behind a request. The zero value is the
// anonymous principal used for unauthenticated reads.
type Principal struct {
	ID uuid.UUID
}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{}

// Authenticated wraps an identity-provider subject id.
func Authenticated(id uuid.UUID) Principal {
	return Principal{ID: id}
}

// IsAnonymous reports whether the principal carries no identity.
func (p Principal) IsAnonymous() bool {
	return p.ID == uuid.Nil
}

func (p Principal) String() string {
	if p.IsAnonymous() {
		return "anonymous"
	}
	return p.ID.String()
}
