package app

import (
	"context"

	"github.com/google/uuid"

	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
)

// AdminService contains the quiz administration use cases. Authorization
// lives in the store; this layer adds principal propagation and keeps the
// public scoreboard snapshot in sync with writes.
type AdminService struct {
	store      Store
	scoreboard ScoreboardRepository
}

func NewAdminService(store Store, scoreboard ScoreboardRepository) *AdminService {
	return &AdminService{store: store, scoreboard: scoreboard}
}

// --- profile ---

func (s *AdminService) GetProfile(ctx context.Context, as authz.Principal) (*domain.Profile, error) {
	return s.store.GetProfile(ctx, as, as.ID)
}

func (s *AdminService) UpdateProfile(ctx context.Context, as authz.Principal, displayName, email string) (*domain.Profile, error) {
	return s.store.UpdateProfile(ctx, as, as.ID, displayName, email)
}

// --- role grants ---

func (s *AdminService) ListRoleGrants(ctx context.Context, as authz.Principal) ([]domain.RoleGrant, error) {
	return s.store.ListRoleGrants(ctx, as)
}

func (s *AdminService) GrantRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error {
	return s.store.GrantRole(ctx, as, principalID, role)
}

func (s *AdminService) RevokeRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error {
	return s.store.RevokeRole(ctx, as, principalID, role)
}

// --- quizzes ---

func (s *AdminService) CreateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) error {
	return s.store.CreateQuiz(ctx, as, quiz)
}

func (s *AdminService) GetQuiz(ctx context.Context, as authz.Principal, id int64) (*domain.Quiz, error) {
	return s.store.GetQuiz(ctx, as, id)
}

func (s *AdminService) ListQuizzes(ctx context.Context, as authz.Principal) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx, as)
}

func (s *AdminService) UpdateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) (*domain.Quiz, error) {
	updated, err := s.store.UpdateQuiz(ctx, as, quiz)
	if err != nil {
		return nil, err
	}
	s.invalidateScoreboard(ctx, updated.ID)
	return updated, nil
}

func (s *AdminService) DeleteQuiz(ctx context.Context, as authz.Principal, id int64) error {
	if err := s.store.DeleteQuiz(ctx, as, id); err != nil {
		return err
	}
	s.invalidateScoreboard(ctx, id)
	return nil
}

// --- questions ---

func (s *AdminService) AddQuestion(ctx context.Context, as authz.Principal, question *domain.Question) error {
	return s.store.AddQuestion(ctx, as, question)
}

func (s *AdminService) ListQuestions(ctx context.Context, as authz.Principal, quizID int64) ([]domain.Question, error) {
	return s.store.ListQuestions(ctx, as, quizID)
}

func (s *AdminService) UpdateQuestion(ctx context.Context, as authz.Principal, question *domain.Question) (*domain.Question, error) {
	return s.store.UpdateQuestion(ctx, as, question)
}

func (s *AdminService) DeleteQuestion(ctx context.Context, as authz.Principal, id int64) error {
	return s.store.DeleteQuestion(ctx, as, id)
}

// --- leaderboard ---

func (s *AdminService) AddEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) error {
	if err := s.store.AddEntry(ctx, as, entry); err != nil {
		return err
	}
	s.invalidateScoreboard(ctx, entry.QuizID)
	return nil
}

func (s *AdminService) ListEntries(ctx context.Context, as authz.Principal, quizID int64) ([]domain.LeaderboardEntry, error) {
	return s.store.ListEntries(ctx, as, quizID)
}

func (s *AdminService) UpdateEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) (*domain.LeaderboardEntry, error) {
	updated, err := s.store.UpdateEntry(ctx, as, entry)
	if err != nil {
		return nil, err
	}
	s.invalidateScoreboard(ctx, updated.QuizID)
	return updated, nil
}

func (s *AdminService) DeleteEntry(ctx context.Context, as authz.Principal, quizID, id int64) error {
	if err := s.store.DeleteEntry(ctx, as, id); err != nil {
		return err
	}
	s.invalidateScoreboard(ctx, quizID)
	return nil
}

// Scoreboard serves the cached public snapshot for event screens.
func (s *AdminService) Scoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error) {
	return s.scoreboard.Scoreboard(ctx, quizID)
}

func (s *AdminService) invalidateScoreboard(ctx context.Context, quizID int64) {
	if s.scoreboard == nil {
		return
	}
	// Best effort: a stale snapshot ages out with its TTL anyway.
	_ = s.scoreboard.Invalidate(ctx, quizID)
}
