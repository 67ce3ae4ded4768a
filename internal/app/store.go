package app

import (
	"context"

	"github.com/google/uuid"

	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
)

// Store is the policy-gated persistence surface. Every method takes the
// acting principal and evaluates the policy set inside the same transaction
// that touches the data; a denied write surfaces domain.ErrPermissionDenied,
// while denied reads come back as empty results or not-found so callers
// cannot distinguish hidden rows from absent ones.
type Store interface {
	GetProfile(ctx context.Context, as authz.Principal, principalID uuid.UUID) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, as authz.Principal, principalID uuid.UUID, displayName, email string) (*domain.Profile, error)

	ListRoleGrants(ctx context.Context, as authz.Principal) ([]domain.RoleGrant, error)
	GrantRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error
	RevokeRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error

	CreateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) error
	GetQuiz(ctx context.Context, as authz.Principal, id int64) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context, as authz.Principal) ([]domain.Quiz, error)
	UpdateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) (*domain.Quiz, error)
	DeleteQuiz(ctx context.Context, as authz.Principal, id int64) error

	AddQuestion(ctx context.Context, as authz.Principal, question *domain.Question) error
	ListQuestions(ctx context.Context, as authz.Principal, quizID int64) ([]domain.Question, error)
	UpdateQuestion(ctx context.Context, as authz.Principal, question *domain.Question) (*domain.Question, error)
	DeleteQuestion(ctx context.Context, as authz.Principal, id int64) error

	AddEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) error
	ListEntries(ctx context.Context, as authz.Principal, quizID int64) ([]domain.LeaderboardEntry, error)
	UpdateEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) (*domain.LeaderboardEntry, error)
	DeleteEntry(ctx context.Context, as authz.Principal, id int64) error
}

// IdentityStore reacts to identity-provider subject lifecycle events.
// CreatePrincipal must provision the profile in the same transaction.
type IdentityStore interface {
	CreatePrincipal(ctx context.Context, np domain.NewPrincipal) (*domain.Principal, error)
	DeletePrincipal(ctx context.Context, id uuid.UUID) error
}

// ScoreboardRepository serves the public leaderboard snapshot for event
// screens, typically through a cache, and drops the snapshot when the
// underlying rows change.
type ScoreboardRepository interface {
	Scoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error)
	Invalidate(ctx context.Context, quizID int64) error
}
