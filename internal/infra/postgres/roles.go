package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-admin-service/internal/domain"
)

// SQL issued outside the policy-checked query path. Every relation and enum
// here must be qualified with the quizadmin schema: these statements run with
// elevated privileges, and an unqualified name could resolve to an attacker
// object planted earlier in the search path. roles_test.go enforces this.
const (
	holdsRoleSQL = `SELECT EXISTS (
		SELECT 1 FROM quizadmin.role_grants
		WHERE principal_id = $1 AND role = $2::quizadmin.app_role
	)`
	grantRoleSQL = `INSERT INTO quizadmin.role_grants (principal_id, role)
		VALUES ($1, $2::quizadmin.app_role)
		ON CONFLICT (principal_id, role) DO NOTHING`
	revokeRoleSQL = `DELETE FROM quizadmin.role_grants
		WHERE principal_id = $1 AND role = $2::quizadmin.app_role`
	listGrantsSQL = `SELECT id, principal_id, role, created_at
		FROM quizadmin.role_grants
		ORDER BY created_at, id`

	// Transaction-visible variants used by the policy env (bun placeholders).
	holdsRoleTxSQL = `SELECT EXISTS (
		SELECT 1 FROM quizadmin.role_grants
		WHERE principal_id = ? AND role = ?::quizadmin.app_role
	)`
	quizActiveTxSQL = `SELECT EXISTS (
		SELECT 1 FROM quizadmin.quizzes
		WHERE id = ? AND active
	)`
)

// elevatedSQL enumerates every statement the privileged paths may issue,
// for the namespace-pinning test.
var elevatedSQL = []string{
	holdsRoleSQL,
	grantRoleSQL,
	revokeRoleSQL,
	listGrantsSQL,
	holdsRoleTxSQL,
	quizActiveTxSQL,
}

// RoleStore is the privileged path to the role_grants table. It connects
// with the authz service-account DSN and deliberately bypasses the policy
// set: it is the oracle the policy set itself calls, plus the grant/revoke
// surface for operator tooling. Keeping it on its own pool keeps the bypass
// auditable and narrow.
type RoleStore struct {
	pool *pgxpool.Pool
}

// NewRoleStore connects the service-account pool. The connection pins its
// search_path to the core schema as a second line of defense behind the
// qualified statements above.
func NewRoleStore(ctx context.Context, dsn string) (*RoleStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse authz dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `SET search_path = quizadmin, pg_temp`)
		return err
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect authz pool: %w", err)
	}
	return &RoleStore{pool: pool}, nil
}

// HoldsRole implements authz.RoleOracle against committed state. For checks
// inside a storage transaction the tx-bound env in store.go is used instead.
func (s *RoleStore) HoldsRole(ctx context.Context, principal uuid.UUID, role domain.Role) (bool, error) {
	var held bool
	if err := s.pool.QueryRow(ctx, holdsRoleSQL, principal, string(role)).Scan(&held); err != nil {
		return false, fmt.Errorf("holds role: %w", err)
	}
	return held, nil
}

// Grant adds a role to a principal. Granting an already-held role is a no-op.
func (s *RoleStore) Grant(ctx context.Context, principal uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if _, err := s.pool.Exec(ctx, grantRoleSQL, principal, string(role)); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// Revoke removes a role from a principal. Revoking an unheld role is a no-op.
func (s *RoleStore) Revoke(ctx context.Context, principal uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if _, err := s.pool.Exec(ctx, revokeRoleSQL, principal, string(role)); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

// List returns all grants, oldest first.
func (s *RoleStore) List(ctx context.Context) ([]domain.RoleGrant, error) {
	rows, err := s.pool.Query(ctx, listGrantsSQL)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.RoleGrant
	for rows.Next() {
		var g domain.RoleGrant
		var role string
		if err := rows.Scan(&g.ID, &g.PrincipalID, &role, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.Role = domain.Role(role)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Close releases the service-account pool.
func (s *RoleStore) Close() {
	s.pool.Close()
}
