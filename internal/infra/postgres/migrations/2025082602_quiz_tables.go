package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_quiz_tables.sql
var quizTablesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, quizTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				DROP TABLE IF EXISTS quizadmin.leaderboard_entries;
				DROP TABLE IF EXISTS quizadmin.questions;
				DROP TABLE IF EXISTS quizadmin.quizzes;
				DROP FUNCTION IF EXISTS quizadmin.set_updated_at();
			`)
			return err
		},
	)
}
