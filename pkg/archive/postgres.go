package archive

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded goose migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("archive: migrations: %v", err))
	}
	return sub
}

// PostgresStore persists exam transcripts.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Migrate applies pending migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations())
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		s.logger.Info("archive migration applied", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const upsertExamSQL = `
INSERT INTO exams (session_id, started_at, ended_at, final_stage, model, turn_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id) DO UPDATE SET
    ended_at    = EXCLUDED.ended_at,
    final_stage = EXCLUDED.final_stage,
    model       = EXCLUDED.model,
    turn_count  = EXCLUDED.turn_count`

// SaveExam writes rec and its turns in one transaction. Saving the same
// session again replaces its turns.
func (s *PostgresStore) SaveExam(ctx context.Context, rec ExamRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	ended := rec.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertExamSQL,
			rec.SessionID, rec.StartedAt, ended, rec.FinalStage, rec.Model, len(rec.Turns),
		); err != nil {
			return fmt.Errorf("upsert exam: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM exam_turns WHERE session_id = $1`, rec.SessionID); err != nil {
			return fmt.Errorf("clear turns: %w", err)
		}
		if len(rec.Turns) == 0 {
			return nil
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"exam_turns"},
			[]string{"session_id", "position", "role", "text"},
			pgx.CopyFromRows(turnRows(rec)),
		); err != nil {
			return fmt.Errorf("copy turns: %w", err)
		}
		return nil
	})
}

func turnRows(rec ExamRecord) [][]any {
	rows := make([][]any, 0, len(rec.Turns))
	for i, t := range rec.Turns {
		rows = append(rows, []any{rec.SessionID, i, string(t.Role), t.Text})
	}
	return rows
}
