package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-admin-service/internal/domain"
)

const pgUniqueViolation = "23505"

// IdentityStore handles principal provisioning. It is the Go rendering of a
// "run on principal created" trigger: the profile insert is fused into the
// same transaction as the principal row, so a principal can never exist
// without a profile. Like the role oracle it writes to a policy-protected
// table without consulting the policy set, and its statements go through
// bun models whose table names are schema-qualified.
type IdentityStore struct {
	db *bun.DB
}

func NewIdentityStore(db *bun.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// CreatePrincipal records a new identity-provider subject and provisions its
// profile. Display name falls back to the contact email when the event
// carries none. Any profile failure aborts the whole creation; this is fatal
// and not retried here.
func (s *IdentityStore) CreatePrincipal(ctx context.Context, np domain.NewPrincipal) (*domain.Principal, error) {
	if np.ID == uuid.Nil {
		np.ID = uuid.New()
	}
	if np.Email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrProvisioningFailed)
	}

	principal := &domain.Principal{
		ID:          np.ID,
		Email:       np.Email,
		DisplayName: np.DisplayName,
	}
	displayName := np.DisplayName
	if displayName == "" {
		displayName = np.Email
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(principal).Returning("*").Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %w", domain.ErrProvisioningFailed, domain.ErrDuplicateProfile)
			}
			return fmt.Errorf("%w: insert principal: %w", domain.ErrProvisioningFailed, err)
		}
		profile := &domain.Profile{
			PrincipalID: principal.ID,
			DisplayName: displayName,
			Email:       principal.Email,
		}
		if _, err := tx.NewInsert().Model(profile).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %w", domain.ErrProvisioningFailed, domain.ErrDuplicateProfile)
			}
			return fmt.Errorf("%w: insert profile: %w", domain.ErrProvisioningFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// DeletePrincipal removes the subject; profile, role grants, and created
// quizzes go with it through the schema cascades.
func (s *IdentityStore) DeletePrincipal(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.Principal)(nil)).
		Where("pr.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}
	return false
}
