package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-admin-service/internal/authz"
	"quiz-admin-service/internal/domain"
	infrapg "quiz-admin-service/internal/infra/postgres"
	pgmigrations "quiz-admin-service/internal/infra/postgres/migrations"
	infraredis "quiz-admin-service/internal/infra/redis"
)

func TestQuizLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(t, ctx, dsn)
	defer db.Close()

	roles, err := infrapg.NewRoleStore(ctx, dsn)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	defer roles.Close()

	identity := infrapg.NewIdentityStore(db)
	store := infrapg.NewStore(db, authz.Default(), quietAudit())

	alice := provision(t, ctx, identity, "alice@example.com", "Alice")
	asAlice := authz.Authenticated(alice.ID)

	// No admin role yet: quiz creation is denied.
	draft := &domain.Quiz{Title: "Trivia Night"}
	if err := store.CreateQuiz(ctx, asAlice, draft); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied before grant, got %v", err)
	}

	if err := roles.Grant(ctx, alice.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	// Granting a held role again is a no-op.
	if err := roles.Grant(ctx, alice.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("re-grant admin: %v", err)
	}

	quiz := &domain.Quiz{Title: "Trivia Night", Description: "Friday", Active: true}
	if err := store.CreateQuiz(ctx, asAlice, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if quiz.CreatedBy != alice.ID {
		t.Fatalf("expected created_by %s, got %s", alice.ID, quiz.CreatedBy)
	}

	// An active quiz is publicly readable.
	got, err := store.GetQuiz(ctx, authz.Anonymous, quiz.ID)
	if err != nil {
		t.Fatalf("anonymous get active quiz: %v", err)
	}
	if got.Title != "Trivia Night" {
		t.Fatalf("unexpected quiz: %+v", got)
	}

	// Deactivating hides it from anonymous readers but not from the admin.
	quiz.Active = false
	if _, err := store.UpdateQuiz(ctx, asAlice, quiz); err != nil {
		t.Fatalf("deactivate quiz: %v", err)
	}
	if _, err := store.GetQuiz(ctx, authz.Anonymous, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found for anonymous on inactive quiz, got %v", err)
	}
	listed, err := store.ListQuizzes(ctx, authz.Anonymous)
	if err != nil {
		t.Fatalf("anonymous list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty anonymous list, got %d quizzes", len(listed))
	}
	if _, err := store.GetQuiz(ctx, asAlice, quiz.ID); err != nil {
		t.Fatalf("admin get inactive quiz: %v", err)
	}

	// Revocation is visible immediately.
	if err := roles.Revoke(ctx, alice.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("revoke admin: %v", err)
	}
	quiz.Active = true
	if _, err := store.UpdateQuiz(ctx, asAlice, quiz); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied after revoke, got %v", err)
	}
}

func TestQuestionVisibilityFollowsQuiz(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(t, ctx, dsn)
	defer db.Close()

	roles, err := infrapg.NewRoleStore(ctx, dsn)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	defer roles.Close()

	identity := infrapg.NewIdentityStore(db)
	store := infrapg.NewStore(db, authz.Default(), quietAudit())

	admin := provision(t, ctx, identity, "host@example.com", "Host")
	if err := roles.Grant(ctx, admin.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("grant: %v", err)
	}
	asAdmin := authz.Authenticated(admin.ID)

	quiz := &domain.Quiz{Title: "Hidden Round"}
	if err := store.CreateQuiz(ctx, asAdmin, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	question := &domain.Question{
		QuizID:        quiz.ID,
		Text:          "What is 2 + 2?",
		CorrectAnswer: "B",
		OptionA:       "3",
		OptionB:       "4",
		Points:        1,
	}
	if err := store.AddQuestion(ctx, asAdmin, question); err != nil {
		t.Fatalf("add question: %v", err)
	}

	// Quiz is inactive: anonymous readers see no questions.
	qs, err := store.ListQuestions(ctx, authz.Anonymous, quiz.ID)
	if err != nil {
		t.Fatalf("anonymous list questions: %v", err)
	}
	if len(qs) != 0 {
		t.Fatalf("expected no questions for anonymous, got %d", len(qs))
	}

	quiz.Active = true
	if _, err := store.UpdateQuiz(ctx, asAdmin, quiz); err != nil {
		t.Fatalf("activate quiz: %v", err)
	}
	qs, err = store.ListQuestions(ctx, authz.Anonymous, quiz.ID)
	if err != nil {
		t.Fatalf("anonymous list questions: %v", err)
	}
	if len(qs) != 1 || qs[0].Text != "What is 2 + 2?" {
		t.Fatalf("expected the question once active, got %+v", qs)
	}

	// Cascade: deleting the quiz removes its questions.
	if err := store.DeleteQuiz(ctx, asAdmin, quiz.ID); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	var count int
	if err := db.NewRaw("SELECT count(*) FROM quizadmin.questions WHERE quiz_id = ?", quiz.ID).Scan(ctx, &count); err != nil {
		t.Fatalf("count questions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected questions cascade-deleted, found %d", count)
	}
}

func TestProvisioningAndCascade(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openDB(t, ctx, dsn)
	defer db.Close()

	roles, err := infrapg.NewRoleStore(ctx, dsn)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	defer roles.Close()

	identity := infrapg.NewIdentityStore(db)
	store := infrapg.NewStore(db, authz.Default(), quietAudit())

	// Display name falls back to the email when omitted.
	pr, err := identity.CreatePrincipal(ctx, domain.NewPrincipal{Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	profile, err := store.GetProfile(ctx, authz.Authenticated(pr.ID), pr.ID)
	if err != nil {
		t.Fatalf("get own profile: %v", err)
	}
	if profile.DisplayName != "bob@example.com" {
		t.Fatalf("expected email fallback display name, got %q", profile.DisplayName)
	}

	// A replayed creation event for the same subject aborts the transaction.
	if _, err := identity.CreatePrincipal(ctx, domain.NewPrincipal{ID: pr.ID, Email: "bob@example.com"}); !errors.Is(err, domain.ErrProvisioningFailed) {
		t.Fatalf("expected provisioning failure on duplicate subject, got %v", err)
	}

	if err := roles.Grant(ctx, pr.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("grant: %v", err)
	}
	quiz := &domain.Quiz{Title: "Bob's Quiz"}
	if err := store.CreateQuiz(ctx, authz.Authenticated(pr.ID), quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	// Deleting the principal cascades profile, grants, and owned quizzes.
	if err := identity.DeletePrincipal(ctx, pr.ID); err != nil {
		t.Fatalf("delete principal: %v", err)
	}
	held, err := roles.HoldsRole(ctx, pr.ID, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("holds role: %v", err)
	}
	if held {
		t.Fatal("expected grant removed with principal")
	}
	var quizCount int
	if err := db.NewRaw("SELECT count(*) FROM quizadmin.quizzes WHERE created_by = ?", pr.ID).Scan(ctx, &quizCount); err != nil {
		t.Fatalf("count quizzes: %v", err)
	}
	if quizCount != 0 {
		t.Fatalf("expected owned quizzes cascade-deleted, found %d", quizCount)
	}

	if err := identity.DeletePrincipal(ctx, pr.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestScoreboardServedThroughRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openDB(t, ctx, dsn)
	defer db.Close()

	roles, err := infrapg.NewRoleStore(ctx, dsn)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	defer roles.Close()

	identity := infrapg.NewIdentityStore(db)
	store := infrapg.NewStore(db, authz.Default(), quietAudit())

	admin := provision(t, ctx, identity, "scores@example.com", "Scores")
	if err := roles.Grant(ctx, admin.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("grant: %v", err)
	}
	asAdmin := authz.Authenticated(admin.ID)

	quiz := &domain.Quiz{Title: "Finals", Active: true}
	if err := store.CreateQuiz(ctx, asAdmin, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	for name, score := range map[string]int{"Team Red": 12, "Team Blue": 40} {
		entry := &domain.LeaderboardEntry{QuizID: quiz.ID, ParticipantName: name, Score: score}
		if err := store.AddEntry(ctx, asAdmin, entry); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	repo := infraredis.NewScoreboardRepository(redisClient, store, 5*time.Minute)

	board, err := repo.Scoreboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].ParticipantName != "Team Blue" {
		t.Fatalf("expected Team Blue leading, got %+v", board.Entries)
	}

	// Second read comes from the cached snapshot.
	cached, err := repo.Scoreboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("cached scoreboard: %v", err)
	}
	if len(cached.Entries) != 2 {
		t.Fatalf("unexpected cached entries: %+v", cached.Entries)
	}
}

func provision(t *testing.T, ctx context.Context, identity *infrapg.IdentityStore, email, name string) *domain.Principal {
	t.Helper()
	pr, err := identity.CreatePrincipal(ctx, domain.NewPrincipal{Email: email, DisplayName: name})
	if err != nil {
		t.Fatalf("provision %s: %v", email, err)
	}
	return pr
}

func quietAudit() *authz.AuditLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return authz.NewAuditLogger(log)
}

func openDB(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
