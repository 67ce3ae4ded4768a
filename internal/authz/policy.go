// Package authz holds the row-level access-control core: the principal
// identity, the role-oracle contract, and the per-table policy set that
// decides whether an operation on a row is permitted.
//
// Rules for one (table, operation) pair combine as a permissive union: the
// operation is allowed if any rule allows it. Each rule is a pure predicate
// over (principal, row view) plus an Env that resolves role membership and
// quiz visibility inside the enclosing storage transaction, so decisions
// always reflect transaction-visible state and are never cached across
// requests.
package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"quiz-admin-service/internal/domain"
)

// Table names a policy-protected resource table.
type Table string

const (
	TableProfiles    Table = "profiles"
	TableRoleGrants  Table = "role_grants"
	TableQuizzes     Table = "quizzes"
	TableQuestions   Table = "questions"
	TableLeaderboard Table = "leaderboard_entries"
)

// Operation is the kind of access being decided.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Row is the minimal view of a record that rules may inspect. Only the
// fields relevant to the row's table are populated.
type Row struct {
	// Owner is the principal the row belongs to (profiles).
	Owner uuid.UUID
	// Active is the quiz visibility flag (quizzes).
	Active bool
	// QuizID is the parent quiz (questions, leaderboard entries).
	QuizID int64
}

// Env resolves the stateful parts of a decision. Implementations must read
// through the same transaction the gated operation runs in.
type Env interface {
	RoleOracle
	// QuizActive reports whether the quiz exists and is active.
	QuizActive(ctx context.Context, quizID int64) (bool, error)
}

// Rule is one named predicate in a policy set.
type Rule struct {
	Name  string
	Allow func(ctx context.Context, env Env, p Principal, row Row) (bool, error)
}

// Decision is the outcome of evaluating a policy set.
type Decision struct {
	Allowed bool
	// Rule is the name of the first rule that allowed the operation.
	Rule string
}

// PolicySet maps table and operation to the rules that may permit it.
// A (table, operation) pair with no rules denies everything.
type PolicySet map[Table]map[Operation][]Rule

// Decide evaluates the rules for (table, op) against the principal and row.
// Rules are independent and side-effect-free, so evaluation order never
// changes the outcome; the fold short-circuits on the first allow. A rule
// error fails the whole decision closed.
func (ps PolicySet) Decide(ctx context.Context, env Env, p Principal, table Table, op Operation, row Row) (Decision, error) {
	rules := ps[table][op]
	for _, rule := range rules {
		ok, err := rule.Allow(ctx, env, p, row)
		if err != nil {
			return Decision{}, fmt.Errorf("policy %s/%s rule %q: %w", table, op, rule.Name, err)
		}
		if ok {
			return Decision{Allowed: true, Rule: rule.Name}, nil
		}
	}
	return Decision{}, nil
}

// Self permits a principal acting on its own row.
func Self() Rule {
	return Rule{
		Name: "self",
		Allow: func(_ context.Context, _ Env, p Principal, row Row) (bool, error) {
			if p.IsAnonymous() {
				return false, nil
			}
			return row.Owner == p.ID, nil
		},
	}
}

// HasRole permits principals holding the given role.
func HasRole(role domain.Role) Rule {
	return Rule{
		Name: "role:" + string(role),
		Allow: func(ctx context.Context, env Env, p Principal, _ Row) (bool, error) {
			if p.IsAnonymous() {
				return false, nil
			}
			return env.HoldsRole(ctx, p.ID, role)
		},
	}
}

// RowActive permits reads of rows whose own active flag is set.
func RowActive() Rule {
	return Rule{
		Name: "row-active",
		Allow: func(_ context.Context, _ Env, _ Principal, row Row) (bool, error) {
			return row.Active, nil
		},
	}
}

// ParentQuizActive permits reads of rows whose parent quiz is active.
func ParentQuizActive() Rule {
	return Rule{
		Name: "parent-quiz-active",
		Allow: func(ctx context.Context, env Env, _ Principal, row Row) (bool, error) {
			return env.QuizActive(ctx, row.QuizID)
		},
	}
}

// Everyone permits unconditionally, anonymous included.
func Everyone() Rule {
	return Rule{
		Name: "everyone",
		Allow: func(context.Context, Env, Principal, Row) (bool, error) {
			return true, nil
		},
	}
}

// Default is the production policy set.
//
// Read visibility for quizzes and questions keys off the quiz's active flag,
// not ownership: this is a broadcast system, and any reader may see an active
// quiz while only admins see drafts. Leaderboard entries have no read gate at
// all since results are shown publicly during events.
func Default() PolicySet {
	admin := HasRole(domain.RoleAdmin)
	return PolicySet{
		TableProfiles: {
			OpRead:   {Self()},
			OpCreate: {Self()}, // provisioning bypasses this; kept as a self-service fallback
			OpUpdate: {Self()},
		},
		TableRoleGrants: {
			OpRead:   {admin},
			OpCreate: {admin},
			OpUpdate: {admin},
			OpDelete: {admin},
		},
		TableQuizzes: {
			OpRead:   {RowActive(), admin},
			OpCreate: {admin},
			OpUpdate: {admin},
			OpDelete: {admin},
		},
		TableQuestions: {
			OpRead:   {ParentQuizActive(), admin},
			OpCreate: {admin},
			OpUpdate: {admin},
			OpDelete: {admin},
		},
		TableLeaderboard: {
			OpRead:   {Everyone()},
			OpCreate: {admin},
			OpUpdate: {admin},
			OpDelete: {admin},
		},
	}
}
