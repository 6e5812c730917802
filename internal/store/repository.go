package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/park285/quiz-duel/internal/duel"
)

// Repository archives settled results to Postgres. It is write-only; the live
// record stays in Redis.
type Repository struct {
	db *sql.DB
}

var _ Archive = (*Repository)(nil)

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil { return nil }
	return r.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS duel_results (
  challenge_id     TEXT PRIMARY KEY,
  creator_id       TEXT NOT NULL,
  participants     TEXT[] NOT NULL,
  rows             JSONB NOT NULL,
  winner_id        TEXT NOT NULL DEFAULT '',
  duration_seconds INT NOT NULL,
  question_count   INT NOT NULL,
  rematch_of       TEXT NOT NULL DEFAULT '',
  started_at       TIMESTAMPTZ,
  finished_at      TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS public_attempts (
  attempt_id   TEXT PRIMARY KEY,
  challenge_id TEXT NOT NULL,
  user_id      TEXT NOT NULL,
  score        INT NOT NULL,
  strikes      INT NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS public_attempts_challenge_idx ON public_attempts (challenge_id, score DESC, strikes ASC);
`

// EnsureSchema creates the archive tables if they are missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveDuel upserts a settled duel. Writing the same challenge twice is harmless.
func (r *Repository) SaveDuel(ctx context.Context, c *duel.Challenge, rows map[string]duel.Progress) error {
	if r == nil || r.db == nil || c == nil {
		return nil
	}
	rowsRaw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	q := `INSERT INTO duel_results (
        challenge_id, creator_id, participants, rows, winner_id,
        duration_seconds, question_count, rematch_of, started_at, finished_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
      ON CONFLICT (challenge_id) DO UPDATE SET
        rows=EXCLUDED.rows,
        winner_id=EXCLUDED.winner_id,
        finished_at=EXCLUDED.finished_at`
	_, err = r.db.ExecContext(ctx, q,
		c.ID, c.CreatorID, pq.Array(c.Participants), string(rowsRaw), duel.Winner(rows),
		c.DurationSeconds, c.QuestionCount, c.RematchOf, c.StartedAt, c.FinishedAt,
	)
	return err
}

// SaveAttempt records one public attempt; retries with the same id are dropped.
func (r *Repository) SaveAttempt(ctx context.Context, challengeID, userID string, a duel.Attempt, at time.Time) error {
	if r == nil || r.db == nil {
		return nil
	}
	q := `INSERT INTO public_attempts (attempt_id, challenge_id, user_id, score, strikes, created_at)
      VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (attempt_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, a.ID, challengeID, userID, a.Score, a.Strikes, at)
	return err
}
