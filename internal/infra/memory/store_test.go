package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
)

func newTestStore() *Store {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewStore(authz.Default(), authz.NewAuditLogger(log))
}

func seedAdmin(t *testing.T, s *Store) authz.Principal {
	t.Helper()
	pr, err := s.CreatePrincipal(context.Background(), domain.NewPrincipal{Email: "admin@example.com", DisplayName: "Admin"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	s.GrantDirect(pr.ID, domain.RoleAdmin)
	return authz.Authenticated(pr.ID)
}

func TestCreateQuizRequiresAdmin(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	pr, err := s.CreatePrincipal(ctx, domain.NewPrincipal{Email: "user@example.com"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}

	quiz := &domain.Quiz{Title: "Denied"}
	if err := s.CreateQuiz(ctx, authz.Authenticated(pr.ID), quiz); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := s.CreateQuiz(ctx, authz.Anonymous, quiz); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for anonymous, got %v", err)
	}

	s.GrantDirect(pr.ID, domain.RoleAdmin)
	if err := s.CreateQuiz(ctx, authz.Authenticated(pr.ID), quiz); err != nil {
		t.Fatalf("create quiz as admin: %v", err)
	}
	if quiz.CreatedBy != pr.ID {
		t.Fatalf("expected created_by stamped from caller, got %s", quiz.CreatedBy)
	}
}

func TestInactiveQuizHiddenFromAnonymous(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	hidden := &domain.Quiz{Title: "Hidden"}
	visible := &domain.Quiz{Title: "Visible", Active: true}
	if err := s.CreateQuiz(ctx, admin, hidden); err != nil {
		t.Fatalf("create hidden: %v", err)
	}
	if err := s.CreateQuiz(ctx, admin, visible); err != nil {
		t.Fatalf("create visible: %v", err)
	}

	if _, err := s.GetQuiz(ctx, authz.Anonymous, hidden.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetQuiz(ctx, authz.Anonymous, visible.ID); err != nil {
		t.Fatalf("get visible quiz: %v", err)
	}

	public, err := s.ListQuizzes(ctx, authz.Anonymous)
	if err != nil {
		t.Fatalf("list as anonymous: %v", err)
	}
	if len(public) != 1 || public[0].ID != visible.ID {
		t.Fatalf("expected only the active quiz, got %+v", public)
	}

	all, err := s.ListQuizzes(ctx, admin)
	if err != nil {
		t.Fatalf("list as admin: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected admin to see both quizzes, got %d", len(all))
	}
}

func TestUpdateQuizKeepsCreator(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	quiz := &domain.Quiz{Title: "Original"}
	if err := s.CreateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("create: %v", err)
	}

	update := &domain.Quiz{ID: quiz.ID, Title: "Renamed", Active: true, CreatedBy: uuid.New()}
	got, err := s.UpdateQuiz(ctx, admin, update)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Renamed" || !got.Active {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.CreatedBy != admin.ID {
		t.Fatalf("created_by must never change, got %s", got.CreatedBy)
	}
}

func TestQuestionsFollowQuizVisibility(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	quiz := &domain.Quiz{Title: "Round 1"}
	if err := s.CreateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	q := &domain.Question{QuizID: quiz.ID, Text: "Capital of France?", CorrectAnswer: "A", OptionA: "Paris", OptionB: "Lyon"}
	if err := s.AddQuestion(ctx, admin, q); err != nil {
		t.Fatalf("add question: %v", err)
	}
	if q.Points != 1 {
		t.Fatalf("expected default points 1, got %d", q.Points)
	}
	bad := &domain.Question{QuizID: quiz.ID, Text: "?", CorrectAnswer: "A", Points: -3}
	if err := s.AddQuestion(ctx, admin, bad); !errors.Is(err, domain.ErrInvalidPoints) {
		t.Fatalf("expected invalid points, got %v", err)
	}

	anon, err := s.ListQuestions(ctx, authz.Anonymous, quiz.ID)
	if err != nil {
		t.Fatalf("list as anonymous: %v", err)
	}
	if len(anon) != 0 {
		t.Fatalf("expected no questions while quiz inactive, got %d", len(anon))
	}

	quiz.Active = true
	if _, err := s.UpdateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("activate: %v", err)
	}
	anon, err = s.ListQuestions(ctx, authz.Anonymous, quiz.ID)
	if err != nil {
		t.Fatalf("list as anonymous: %v", err)
	}
	if len(anon) != 1 {
		t.Fatalf("expected question visible once quiz active, got %d", len(anon))
	}
}

func TestDeleteQuizCascades(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	quiz := &domain.Quiz{Title: "Doomed", Active: true}
	if err := s.CreateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	q := &domain.Question{QuizID: quiz.ID, Text: "?", CorrectAnswer: "A"}
	if err := s.AddQuestion(ctx, admin, q); err != nil {
		t.Fatalf("add question: %v", err)
	}
	e := &domain.LeaderboardEntry{QuizID: quiz.ID, ParticipantName: "Team", Score: 3}
	if err := s.AddEntry(ctx, admin, e); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	if err := s.DeleteQuiz(ctx, admin, quiz.ID); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	if _, err := s.UpdateQuestion(ctx, admin, q); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected question cascade-deleted, got %v", err)
	}
	if err := s.DeleteEntry(ctx, admin, e.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected entry cascade-deleted, got %v", err)
	}
}

func TestDeletePrincipalCascadesOwnedQuizzes(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	quiz := &domain.Quiz{Title: "Owned", Active: true}
	if err := s.CreateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	if err := s.DeletePrincipal(ctx, admin.ID); err != nil {
		t.Fatalf("delete principal: %v", err)
	}
	if _, err := s.GetQuiz(ctx, authz.Anonymous, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected owned quiz gone, got %v", err)
	}
	if err := s.DeletePrincipal(ctx, admin.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestProvisioningDefaultsAndDuplicates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	pr, err := s.CreatePrincipal(ctx, domain.NewPrincipal{Email: "noname@example.com"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	profile, err := s.GetProfile(ctx, authz.Authenticated(pr.ID), pr.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.DisplayName != "noname@example.com" {
		t.Fatalf("expected email fallback, got %q", profile.DisplayName)
	}

	if _, err := s.CreatePrincipal(ctx, domain.NewPrincipal{ID: pr.ID, Email: "other@example.com"}); !errors.Is(err, domain.ErrProvisioningFailed) {
		t.Fatalf("expected provisioning failure for duplicate id, got %v", err)
	}
	if _, err := s.CreatePrincipal(ctx, domain.NewPrincipal{}); !errors.Is(err, domain.ErrProvisioningFailed) {
		t.Fatalf("expected provisioning failure for missing email, got %v", err)
	}
}

func TestProfileHiddenFromOthers(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	owner, err := s.CreatePrincipal(ctx, domain.NewPrincipal{Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	other, err := s.CreatePrincipal(ctx, domain.NewPrincipal{Email: "other@example.com"})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}

	// Another principal gets not-found, not forbidden.
	if _, err := s.GetProfile(ctx, authz.Authenticated(other.ID), owner.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign profile, got %v", err)
	}
	if _, err := s.UpdateProfile(ctx, authz.Authenticated(other.ID), owner.ID, "Hacked", "x@example.com"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied on foreign update, got %v", err)
	}

	// The owner can read and update.
	if _, err := s.GetProfile(ctx, authz.Authenticated(owner.ID), owner.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	updated, err := s.UpdateProfile(ctx, authz.Authenticated(owner.ID), owner.ID, "New Name", "owner@example.com")
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.DisplayName != "New Name" {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestRoleGrantVisibility(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	pr, err := s.CreatePrincipal(ctx, domain.NewPrincipal{Email: "member@example.com"})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}

	if err := s.GrantRole(ctx, authz.Authenticated(pr.ID), pr.ID, domain.RoleAdmin); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected self-escalation denied, got %v", err)
	}
	if err := s.GrantRole(ctx, admin, pr.ID, domain.RoleUser); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Granting a held role again is silently absorbed.
	if err := s.GrantRole(ctx, admin, pr.ID, domain.RoleUser); err != nil {
		t.Fatalf("duplicate grant: %v", err)
	}
	if err := s.GrantRole(ctx, admin, uuid.New(), domain.RoleUser); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown principal, got %v", err)
	}
	if err := s.GrantRole(ctx, admin, pr.ID, domain.Role("owner")); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}

	// Non-admins get an empty list, not an error.
	grants, err := s.ListRoleGrants(ctx, authz.Authenticated(pr.ID))
	if err != nil {
		t.Fatalf("list as member: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected grants hidden from non-admin, got %d", len(grants))
	}
	grants, err = s.ListRoleGrants(ctx, admin)
	if err != nil {
		t.Fatalf("list as admin: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected two grants, got %d", len(grants))
	}

	if err := s.RevokeRole(ctx, admin, pr.ID, domain.RoleUser); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	grants, _ = s.ListRoleGrants(ctx, admin)
	if len(grants) != 1 {
		t.Fatalf("expected revocation applied, got %d grants", len(grants))
	}
}

func TestScoreboardOrdering(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	admin := seedAdmin(t, s)

	quiz := &domain.Quiz{Title: "Finals", Active: true}
	if err := s.CreateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	for _, e := range []domain.LeaderboardEntry{
		{QuizID: quiz.ID, ParticipantName: "Team Red", Score: 12},
		{QuizID: quiz.ID, ParticipantName: "Team Blue", Score: 40},
		{QuizID: quiz.ID, ParticipantName: "Team Green", Score: 12},
	} {
		entry := e
		if err := s.AddEntry(ctx, admin, &entry); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	sb, err := s.LoadScoreboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	names := []string{}
	for _, e := range sb.Entries {
		names = append(names, e.ParticipantName)
	}
	want := []string{"Team Blue", "Team Green", "Team Red"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}

	// Results carry no active-quiz gate: deactivating the quiz leaves the
	// public snapshot fully readable.
	quiz.Active = false
	if _, err := s.UpdateQuiz(ctx, admin, quiz); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	sb, err = s.LoadScoreboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(sb.Entries) != 3 {
		t.Fatalf("expected snapshot unchanged for inactive quiz, got %d entries", len(sb.Entries))
	}
}
