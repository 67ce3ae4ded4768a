// Package memory provides map-backed implementations of the storage
// contracts for tests and redis/postgres-free development. The policy set is
// evaluated exactly as in the postgres store, so authorization behavior is
// identical across backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
)

// Store is an in-memory, policy-gated implementation of app.Store and
// app.IdentityStore. Cascade deletes mirror the postgres schema.
type Store struct {
	policy authz.PolicySet
	audit  *authz.AuditLogger

	mu         sync.RWMutex
	principals map[uuid.UUID]domain.Principal
	profiles   map[uuid.UUID]domain.Profile // keyed by principal id
	grants     map[uuid.UUID][]domain.RoleGrant
	quizzes    map[int64]domain.Quiz
	questions  map[int64]domain.Question
	entries    map[int64]domain.LeaderboardEntry
	seq        int64
}

func NewStore(policy authz.PolicySet, audit *authz.AuditLogger) *Store {
	if audit == nil {
		audit = authz.NewAuditLogger(nil)
	}
	return &Store{
		policy:     policy,
		audit:      audit,
		principals: make(map[uuid.UUID]domain.Principal),
		profiles:   make(map[uuid.UUID]domain.Profile),
		grants:     make(map[uuid.UUID][]domain.RoleGrant),
		quizzes:    make(map[int64]domain.Quiz),
		questions:  make(map[int64]domain.Question),
		entries:    make(map[int64]domain.LeaderboardEntry),
	}
}

// env evaluates predicates against the maps under the store lock, the
// in-memory stand-in for transaction visibility.
type env struct {
	s *Store
}

func (e env) HoldsRole(_ context.Context, principal uuid.UUID, role domain.Role) (bool, error) {
	for _, g := range e.s.grants[principal] {
		if g.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (e env) QuizActive(_ context.Context, quizID int64) (bool, error) {
	quiz, ok := e.s.quizzes[quizID]
	return ok && quiz.Active, nil
}

// decide must be called with s.mu held.
func (s *Store) decide(ctx context.Context, as authz.Principal, table authz.Table, op authz.Operation, row authz.Row) (authz.Decision, error) {
	d, err := s.policy.Decide(ctx, env{s: s}, as, table, op, row)
	s.audit.Record(ctx, as, table, op, d, err)
	return d, err
}

func (s *Store) authorize(ctx context.Context, as authz.Principal, table authz.Table, op authz.Operation, row authz.Row) error {
	d, err := s.decide(ctx, as, table, op, row)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// --- identity provisioning ---

func (s *Store) CreatePrincipal(_ context.Context, np domain.NewPrincipal) (*domain.Principal, error) {
	if np.ID == uuid.Nil {
		np.ID = uuid.New()
	}
	if np.Email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrProvisioningFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[np.ID]; exists {
		return nil, fmt.Errorf("%w: %w", domain.ErrProvisioningFailed, domain.ErrDuplicateProfile)
	}
	now := time.Now()
	principal := domain.Principal{ID: np.ID, Email: np.Email, DisplayName: np.DisplayName, CreatedAt: now}
	displayName := np.DisplayName
	if displayName == "" {
		displayName = np.Email
	}
	s.principals[np.ID] = principal
	s.profiles[np.ID] = domain.Profile{
		ID:          s.nextID(),
		PrincipalID: np.ID,
		DisplayName: displayName,
		Email:       np.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return &principal, nil
}

func (s *Store) DeletePrincipal(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.principals, id)
	delete(s.profiles, id)
	delete(s.grants, id)
	for quizID, quiz := range s.quizzes {
		if quiz.CreatedBy == id {
			s.deleteQuizLocked(quizID)
		}
	}
	return nil
}

// deleteQuizLocked removes a quiz and its children, mirroring the cascades.
func (s *Store) deleteQuizLocked(quizID int64) {
	delete(s.quizzes, quizID)
	for id, q := range s.questions {
		if q.QuizID == quizID {
			delete(s.questions, id)
		}
	}
	for id, e := range s.entries {
		if e.QuizID == quizID {
			delete(s.entries, id)
		}
	}
}

// --- profiles ---

func (s *Store) GetProfile(ctx context.Context, as authz.Principal, principalID uuid.UUID) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.authorize(ctx, as, authz.TableProfiles, authz.OpRead, authz.Row{Owner: principalID}); err != nil {
		return nil, domain.ErrNotFound
	}
	profile, ok := s.profiles[principalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &profile, nil
}

func (s *Store) UpdateProfile(ctx context.Context, as authz.Principal, principalID uuid.UUID, displayName, email string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(ctx, as, authz.TableProfiles, authz.OpUpdate, authz.Row{Owner: principalID}); err != nil {
		return nil, err
	}
	profile, ok := s.profiles[principalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	profile.DisplayName = displayName
	profile.Email = email
	profile.UpdatedAt = time.Now()
	s.profiles[principalID] = profile
	return &profile, nil
}

// --- role grants ---

func (s *Store) ListRoleGrants(ctx context.Context, as authz.Principal) ([]domain.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.decide(ctx, as, authz.TableRoleGrants, authz.OpRead, authz.Row{})
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return []domain.RoleGrant{}, nil
	}
	grants := []domain.RoleGrant{}
	for _, gs := range s.grants {
		grants = append(grants, gs...)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}

func (s *Store) GrantRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(ctx, as, authz.TableRoleGrants, authz.OpCreate, authz.Row{}); err != nil {
		return err
	}
	if _, ok := s.principals[principalID]; !ok {
		return domain.ErrNotFound
	}
	for _, g := range s.grants[principalID] {
		if g.Role == role {
			return nil // duplicate grant is a no-op
		}
	}
	s.grants[principalID] = append(s.grants[principalID], domain.RoleGrant{
		ID:          s.nextID(),
		PrincipalID: principalID,
		Role:        role,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (s *Store) RevokeRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(ctx, as, authz.TableRoleGrants, authz.OpDelete, authz.Row{}); err != nil {
		return err
	}
	kept := s.grants[principalID][:0]
	for _, g := range s.grants[principalID] {
		if g.Role != role {
			kept = append(kept, g)
		}
	}
	s.grants[principalID] = kept
	return nil
}

// GrantDirect seeds a role without a policy check, standing in for the
// privileged operator path in tests.
func (s *Store) GrantDirect(principalID uuid.UUID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants[principalID] {
		if g.Role == role {
			return
		}
	}
	s.grants[principalID] = append(s.grants[principalID], domain.RoleGrant{
		ID:          s.nextID(),
		PrincipalID: principalID,
		Role:        role,
		CreatedAt:   time.Now(),
	})
}

// --- quizzes ---

func (s *Store) CreateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(ctx, as, authz.TableQuizzes, authz.OpCreate, authz.Row{}); err != nil {
		return err
	}
	now := time.Now()
	quiz.ID = s.nextID()
	quiz.CreatedBy = as.ID
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	s.quizzes[quiz.ID] = *quiz
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, as authz.Principal, id int64) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	d, err := s.decide(ctx, as, authz.TableQuizzes, authz.OpRead, authz.Row{Active: quiz.Active})
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, domain.ErrQuizNotFound
	}
	return &quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context, as authz.Principal) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seeAll, err := s.decide(ctx, as, authz.TableQuizzes, authz.OpRead, authz.Row{Active: false})
	if err != nil {
		return nil, err
	}
	quizzes := []domain.Quiz{}
	for _, quiz := range s.quizzes {
		if seeAll.Allowed || quiz.Active {
			quizzes = append(quizzes, quiz)
		}
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID > quizzes[j].ID })
	return quizzes, nil
}

func (s *Store) UpdateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) (*domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.quizzes[quiz.ID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	if err := s.authorize(ctx, as, authz.TableQuizzes, authz.OpUpdate, authz.Row{Active: existing.Active}); err != nil {
		return nil, err
	}
	existing.Title = quiz.Title
	existing.Description = quiz.Description
	existing.Active = quiz.Active
	existing.UpdatedAt = time.Now()
	s.quizzes[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, as authz.Principal, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.quizzes[id]
	if !ok {
		return domain.ErrQuizNotFound
	}
	if err := s.authorize(ctx, as, authz.TableQuizzes, authz.OpDelete, authz.Row{Active: existing.Active}); err != nil {
		return err
	}
	s.deleteQuizLocked(id)
	return nil
}

// --- questions ---

func (s *Store) AddQuestion(ctx context.Context, as authz.Principal, question *domain.Question) error {
	// Mirrors the points > 0 check constraint in the schema.
	if question.Points < 0 {
		return domain.ErrInvalidPoints
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(ctx, as, authz.TableQuestions, authz.OpCreate, authz.Row{QuizID: question.QuizID}); err != nil {
		return err
	}
	if _, ok := s.quizzes[question.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	if question.Points == 0 {
		question.Points = 1
	}
	now := time.Now()
	question.ID = s.nextID()
	question.CreatedAt = now
	question.UpdatedAt = now
	s.questions[question.ID] = *question
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, as authz.Principal, quizID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.decide(ctx, as, authz.TableQuestions, authz.OpRead, authz.Row{QuizID: quizID})
	if err != nil {
		return nil, err
	}
	questions := []domain.Question{}
	if !d.Allowed {
		return questions, nil
	}
	for _, q := range s.questions {
		if q.QuizID == quizID {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].OrderIndex != questions[j].OrderIndex {
			return questions[i].OrderIndex < questions[j].OrderIndex
		}
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, as authz.Principal, question *domain.Question) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questions[question.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := s.authorize(ctx, as, authz.TableQuestions, authz.OpUpdate, authz.Row{QuizID: existing.QuizID}); err != nil {
		return nil, err
	}
	existing.Text = question.Text
	existing.CorrectAnswer = question.CorrectAnswer
	existing.OptionA = question.OptionA
	existing.OptionB = question.OptionB
	existing.OptionC = question.OptionC
	existing.OptionD = question.OptionD
	existing.OrderIndex = question.OrderIndex
	if question.Points > 0 {
		existing.Points = question.Points
	}
	existing.UpdatedAt = time.Now()
	s.questions[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, as authz.Principal, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.authorize(ctx, as, authz.TableQuestions, authz.OpDelete, authz.Row{QuizID: existing.QuizID}); err != nil {
		return err
	}
	delete(s.questions, id)
	return nil
}

// --- leaderboard entries ---

func (s *Store) AddEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(ctx, as, authz.TableLeaderboard, authz.OpCreate, authz.Row{QuizID: entry.QuizID}); err != nil {
		return err
	}
	if _, ok := s.quizzes[entry.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	now := time.Now()
	entry.ID = s.nextID()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.entries[entry.ID] = *entry
	return nil
}

func (s *Store) ListEntries(ctx context.Context, as authz.Principal, quizID int64) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.decide(ctx, as, authz.TableLeaderboard, authz.OpRead, authz.Row{QuizID: quizID})
	if err != nil {
		return nil, err
	}
	entries := []domain.LeaderboardEntry{}
	if !d.Allowed {
		return entries, nil
	}
	for _, e := range s.entries {
		if e.QuizID == quizID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].ParticipantName != entries[j].ParticipantName {
			return entries[i].ParticipantName < entries[j].ParticipantName
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// LoadScoreboard builds the public snapshot for a quiz.
func (s *Store) LoadScoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error) {
	entries, err := s.ListEntries(ctx, authz.Anonymous, quizID)
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return domain.Scoreboard{QuizID: quizID, Entries: entries, UpdatedAt: time.Now()}, nil
}

func (s *Store) UpdateEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) (*domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[entry.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := s.authorize(ctx, as, authz.TableLeaderboard, authz.OpUpdate, authz.Row{QuizID: existing.QuizID}); err != nil {
		return nil, err
	}
	existing.ParticipantName = entry.ParticipantName
	existing.Score = entry.Score
	existing.Position = entry.Position
	existing.Notes = entry.Notes
	existing.UpdatedAt = time.Now()
	s.entries[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteEntry(ctx context.Context, as authz.Principal, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.authorize(ctx, as, authz.TableLeaderboard, authz.OpDelete, authz.Row{QuizID: existing.QuizID}); err != nil {
		return err
	}
	delete(s.entries, id)
	return nil
}
