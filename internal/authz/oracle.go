package authz

import (
	"context"

	"github.com/google/uuid"

	"quiz-admin-service/internal/domain"
)

// RoleOracle answers "does this principal hold this role" by reading the
// role-grants table directly, outside the policy-checked query path.
//
// The oracle is the one sanctioned policy bypass in the system: evaluating
// "is this an admin" through the normal gated path would itself require an
// admin-only check, which never terminates. Implementations must therefore
// read role_grants without consulting the policy set, must be free of side
// effects and stable within a transaction, and must resolve every relation
// against the quizadmin schema explicitly. An unqualified name in this path
// would let a caller shadow the grants table earlier in the search path and
// spoof membership.
type RoleOracle interface {
	HoldsRole(ctx context.Context, principal uuid.UUID, role domain.Role) (bool, error)
}
