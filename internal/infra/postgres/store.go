package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
)

const pgForeignKeyViolation = "23503"

// txEnv resolves policy predicates through the enclosing bun transaction (or
// connection), so a role revoked earlier in a transaction is gone for later
// checks in the same transaction.
type txEnv struct {
	db bun.IDB
}

func (e txEnv) HoldsRole(ctx context.Context, principal uuid.UUID, role domain.Role) (bool, error) {
	var held bool
	if err := e.db.NewRaw(holdsRoleTxSQL, principal, string(role)).Scan(ctx, &held); err != nil {
		return false, fmt.Errorf("holds role: %w", err)
	}
	return held, nil
}

func (e txEnv) QuizActive(ctx context.Context, quizID int64) (bool, error) {
	var active bool
	if err := e.db.NewRaw(quizActiveTxSQL, quizID).Scan(ctx, &active); err != nil {
		return false, fmt.Errorf("quiz active: %w", err)
	}
	return active, nil
}

// Store is the policy-gated persistence layer. Every operation evaluates the
// policy set against transaction-visible state before touching a row; there
// is no unguarded path through this type.
type Store struct {
	db     *bun.DB
	policy authz.PolicySet
	audit  *authz.AuditLogger
}

func NewStore(db *bun.DB, policy authz.PolicySet, audit *authz.AuditLogger) *Store {
	if audit == nil {
		audit = authz.NewAuditLogger(nil)
	}
	return &Store{db: db, policy: policy, audit: audit}
}

// decide evaluates and audits one policy decision against idb.
func (s *Store) decide(ctx context.Context, idb bun.IDB, as authz.Principal, table authz.Table, op authz.Operation, row authz.Row) (authz.Decision, error) {
	d, err := s.policy.Decide(ctx, txEnv{db: idb}, as, table, op, row)
	s.audit.Record(ctx, as, table, op, d, err)
	return d, err
}

// authorize turns a negative decision into ErrPermissionDenied.
func (s *Store) authorize(ctx context.Context, idb bun.IDB, as authz.Principal, table authz.Table, op authz.Operation, row authz.Row) error {
	d, err := s.decide(ctx, idb, as, table, op, row)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return domain.ErrPermissionDenied
	}
	return nil
}

// --- profiles ---

func (s *Store) GetProfile(ctx context.Context, as authz.Principal, principalID uuid.UUID) (*domain.Profile, error) {
	if err := s.authorize(ctx, s.db, as, authz.TableProfiles, authz.OpRead, authz.Row{Owner: principalID}); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	profile := new(domain.Profile)
	err := s.db.NewSelect().Model(profile).Where("pf.principal_id = ?", principalID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *Store) UpdateProfile(ctx context.Context, as authz.Principal, principalID uuid.UUID, displayName, email string) (*domain.Profile, error) {
	profile := new(domain.Profile)
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.authorize(ctx, tx, as, authz.TableProfiles, authz.OpUpdate, authz.Row{Owner: principalID}); err != nil {
			return err
		}
		err := tx.NewSelect().Model(profile).Where("pf.principal_id = ?", principalID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}
		profile.DisplayName = displayName
		profile.Email = email
		_, err = tx.NewUpdate().Model(profile).
			Column("display_name", "email").
			WherePK().
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// --- role grants ---

func (s *Store) ListRoleGrants(ctx context.Context, as authz.Principal) ([]domain.RoleGrant, error) {
	d, err := s.decide(ctx, s.db, as, authz.TableRoleGrants, authz.OpRead, authz.Row{})
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		// Hidden, not forbidden: the caller sees no grants.
		return []domain.RoleGrant{}, nil
	}
	var grants []domain.RoleGrant
	if err := s.db.NewSelect().Model(&grants).Order("rg.created_at").Order("rg.id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	if grants == nil {
		grants = []domain.RoleGrant{}
	}
	return grants, nil
}

func (s *Store) GrantRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.authorize(ctx, tx, as, authz.TableRoleGrants, authz.OpCreate, authz.Row{}); err != nil {
			return err
		}
		grant := &domain.RoleGrant{PrincipalID: principalID, Role: role}
		_, err := tx.NewInsert().Model(grant).
			On("CONFLICT (principal_id, role) DO NOTHING").
			Exec(ctx)
		if isForeignKeyViolation(err) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("grant role: %w", err)
		}
		return nil
	})
}

func (s *Store) RevokeRole(ctx context.Context, as authz.Principal, principalID uuid.UUID, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.authorize(ctx, tx, as, authz.TableRoleGrants, authz.OpDelete, authz.Row{}); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*domain.RoleGrant)(nil)).
			Where("rg.principal_id = ?", principalID).
			Where("rg.role = ?::quizadmin.app_role", string(role)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("revoke role: %w", err)
		}
		return nil
	})
}

// --- quizzes ---

func (s *Store) CreateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.authorize(ctx, tx, as, authz.TableQuizzes, authz.OpCreate, authz.Row{}); err != nil {
			return err
		}
		quiz.CreatedBy = as.ID
		if _, err := tx.NewInsert().Model(quiz).Returning("*").Exec(ctx); err != nil {
			return fmt.Errorf("create quiz: %w", err)
		}
		return nil
	})
}

func (s *Store) GetQuiz(ctx context.Context, as authz.Principal, id int64) (*domain.Quiz, error) {
	quiz := new(domain.Quiz)
	err := s.db.NewSelect().Model(quiz).Where("q.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if err := s.authorize(ctx, s.db, as, authz.TableQuizzes, authz.OpRead, authz.Row{Active: quiz.Active}); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			// Same answer as a missing quiz so drafts do not leak existence.
			return nil, domain.ErrQuizNotFound
		}
		return nil, err
	}
	return quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context, as authz.Principal) ([]domain.Quiz, error) {
	// A caller allowed to read an inactive row sees everything; everybody
	// else gets the active subset.
	d, err := s.decide(ctx, s.db, as, authz.TableQuizzes, authz.OpRead, authz.Row{Active: false})
	if err != nil {
		return nil, err
	}
	var quizzes []domain.Quiz
	q := s.db.NewSelect().Model(&quizzes).Order("q.created_at DESC").Order("q.id DESC")
	if !d.Allowed {
		q = q.Where("q.active")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	return quizzes, nil
}

func (s *Store) UpdateQuiz(ctx context.Context, as authz.Principal, quiz *domain.Quiz) (*domain.Quiz, error) {
	existing := new(domain.Quiz)
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(existing).Where("q.id = ?", quiz.ID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch quiz: %w", err)
		}
		if err := s.authorize(ctx, tx, as, authz.TableQuizzes, authz.OpUpdate, authz.Row{Active: existing.Active}); err != nil {
			return err
		}
		// created_by is set once at insert and never written again.
		existing.Title = quiz.Title
		existing.Description = quiz.Description
		existing.Active = quiz.Active
		_, err = tx.NewUpdate().Model(existing).
			Column("title", "description", "active").
			WherePK().
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, as authz.Principal, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing := new(domain.Quiz)
		err := tx.NewSelect().Model(existing).Where("q.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch quiz: %w", err)
		}
		if err := s.authorize(ctx, tx, as, authz.TableQuizzes, authz.OpDelete, authz.Row{Active: existing.Active}); err != nil {
			return err
		}
		// Questions and leaderboard entries go with the quiz via ON DELETE
		// CASCADE, inside this transaction.
		if _, err := tx.NewDelete().Model(existing).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("delete quiz: %w", err)
		}
		return nil
	})
}

// --- questions ---

func (s *Store) AddQuestion(ctx context.Context, as authz.Principal, question *domain.Question) error {
	// Checked here as well as by the schema so a bad value is a client
	// error, not a check-constraint violation.
	if question.Points < 0 {
		return domain.ErrInvalidPoints
	}
	if question.Points == 0 {
		question.Points = 1
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.authorize(ctx, tx, as, authz.TableQuestions, authz.OpCreate, authz.Row{QuizID: question.QuizID}); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(question).Returning("*").Exec(ctx)
		if isForeignKeyViolation(err) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("add question: %w", err)
		}
		return nil
	})
}

func (s *Store) ListQuestions(ctx context.Context, as authz.Principal, quizID int64) ([]domain.Question, error) {
	d, err := s.decide(ctx, s.db, as, authz.TableQuestions, authz.OpRead, authz.Row{QuizID: quizID})
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		// Draft quiz and no admin role: same result as no questions at all.
		return []domain.Question{}, nil
	}
	var questions []domain.Question
	err = s.db.NewSelect().Model(&questions).
		Where("qs.quiz_id = ?", quizID).
		Order("qs.order_index").Order("qs.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	return questions, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, as authz.Principal, question *domain.Question) (*domain.Question, error) {
	existing := new(domain.Question)
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(existing).Where("qs.id = ?", question.ID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch question: %w", err)
		}
		if err := s.authorize(ctx, tx, as, authz.TableQuestions, authz.OpUpdate, authz.Row{QuizID: existing.QuizID}); err != nil {
			return err
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
		_, err = tx.NewUpdate().Model(existing).
			Column("question", "correct_answer", "option_a", "option_b", "option_c", "option_d", "order_index", "points").
			WherePK().
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, as authz.Principal, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing := new(domain.Question)
		err := tx.NewSelect().Model(existing).Where("qs.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch question: %w", err)
		}
		if err := s.authorize(ctx, tx, as, authz.TableQuestions, authz.OpDelete, authz.Row{QuizID: existing.QuizID}); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model(existing).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		return nil
	})
}

// --- leaderboard entries ---

func (s *Store) AddEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := s.authorize(ctx, tx, as, authz.TableLeaderboard, authz.OpCreate, authz.Row{QuizID: entry.QuizID}); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(entry).Returning("*").Exec(ctx)
		if isForeignKeyViolation(err) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("add entry: %w", err)
		}
		return nil
	})
}

func (s *Store) ListEntries(ctx context.Context, as authz.Principal, quizID int64) ([]domain.LeaderboardEntry, error) {
	// Results are public by design, active quiz or not; the decision is
	// still evaluated so the audit trail stays complete.
	d, err := s.decide(ctx, s.db, as, authz.TableLeaderboard, authz.OpRead, authz.Row{QuizID: quizID})
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return []domain.LeaderboardEntry{}, nil
	}
	var entries []domain.LeaderboardEntry
	err = s.db.NewSelect().Model(&entries).
		Where("lb.quiz_id = ?", quizID).
		Order("lb.score DESC").Order("lb.participant_name").Order("lb.id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

func (s *Store) UpdateEntry(ctx context.Context, as authz.Principal, entry *domain.LeaderboardEntry) (*domain.LeaderboardEntry, error) {
	existing := new(domain.LeaderboardEntry)
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(existing).Where("lb.id = ?", entry.ID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch entry: %w", err)
		}
		if err := s.authorize(ctx, tx, as, authz.TableLeaderboard, authz.OpUpdate, authz.Row{QuizID: existing.QuizID}); err != nil {
			return err
		}
		existing.ParticipantName = entry.ParticipantName
		existing.Score = entry.Score
		existing.Position = entry.Position
		existing.Notes = entry.Notes
		_, err = tx.NewUpdate().Model(existing).
			Column("participant_name", "score", "position", "notes").
			WherePK().
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) DeleteEntry(ctx context.Context, as authz.Principal, id int64) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing := new(domain.LeaderboardEntry)
		err := tx.NewSelect().Model(existing).Where("lb.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("fetch entry: %w", err)
		}
		if err := s.authorize(ctx, tx, as, authz.TableLeaderboard, authz.OpDelete, authz.Row{QuizID: existing.QuizID}); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model(existing).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		return nil
	})
}

// LoadScoreboard builds the public snapshot for a quiz. It reads as the
// anonymous principal; leaderboard reads are ungated anyway.
func (s *Store) LoadScoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error) {
	entries, err := s.ListEntries(ctx, authz.Anonymous, quizID)
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return domain.Scoreboard{QuizID: quizID, Entries: entries, UpdatedAt: time.Now()}, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgForeignKeyViolation
	}
	return false
}
