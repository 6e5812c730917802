package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL         = 24 * time.Hour
	defaultFinishGrace = 10 * time.Second
	defaultTxRetries   = 16
	defaultBoardSize   = 10
)

// Config bounds what the store accepts.
type Config struct {
	MaxStrikes int
	// FinishGrace is how long after the deadline late terminal writes are still accepted.
	FinishGrace time.Duration
	TTL         time.Duration
	TxRetries   int
	BoardSize   int
}

func (c Config) withDefaults() Config {
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = duel.DefaultMaxStrikes
	}
	if c.FinishGrace <= 0 {
		c.FinishGrace = defaultFinishGrace
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.TxRetries <= 0 {
		c.TxRetries = defaultTxRetries
	}
	if c.BoardSize <= 0 {
		c.BoardSize = defaultBoardSize
	}
	return c
}

// Archive receives final results once they can no longer change.
type Archive interface {
	SaveDuel(ctx context.Context, c *duel.Challenge, rows map[string]duel.Progress) error
	SaveAttempt(ctx context.Context, challengeID, userID string, a duel.Attempt, at time.Time) error
}

// Store is the Redis-backed authoritative session record. All participant
// writes are keyed by (challenge, participant); record-level changes go
// through WATCH/MULTI so concurrent callers never interleave.
type Store struct {
	rdb     *redis.Client
	clock   clockwork.Clock
	cfg     Config
	archive Archive
}

var (
	_ duel.Store = (*Store)(nil)
	_ duel.Admin = (*Store)(nil)
)

type Option func(*Store)

func WithClock(c clockwork.Clock) Option { return func(s *Store) { s.clock = c } }

func WithArchive(a Archive) Option { return func(s *Store) { s.archive = a } }

func New(rdb *redis.Client, cfg Config, opts ...Option) *Store {
	s := &Store{rdb: rdb, clock: clockwork.NewRealClock(), cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the Redis instance behind redisURL and pings it.
func Open(ctx context.Context, redisURL string, cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for session store")
	}
	ropts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, cfg, opts...), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) rules(c *duel.Challenge) duel.Rules {
	return duel.Rules{MaxStrikes: s.cfg.MaxStrikes, QuestionCount: c.QuestionCount}
}

// CreateChallenge allocates a new record. Duels start waiting for the second
// participant; public score attacks start playing immediately.
func (s *Store) CreateChallenge(ctx context.Context, nc duel.NewChallenge) (*duel.Challenge, error) {
	creator := strings.TrimSpace(nc.CreatorID)
	if !nc.Kind.Valid() || creator == "" || nc.DurationSeconds <= 0 || nc.QuestionCount <= 0 {
		return nil, duel.ErrInvalidArgs
	}
	now := s.clock.Now().UTC()
	c := &duel.Challenge{
		ID:              uuid.NewString(),
		Kind:            nc.Kind,
		Status:          duel.StatusWaiting,
		CreatorID:       creator,
		Participants:    []string{creator},
		DurationSeconds: nc.DurationSeconds,
		QuestionCount:   nc.QuestionCount,
		CreatedAt:       now,
	}
	if nc.Kind == duel.KindPublic {
		c.Status = duel.StatusPlaying
		c.StartedAt = &now
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, keyChallenge(c.ID), raw, s.cfg.TTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("challenge id collision: %s", c.ID)
	}
	obslog.L().Info("duel_create",
		zap.String("challenge_id", c.ID),
		zap.String("kind", string(c.Kind)),
		zap.String("creator_id", creator),
		zap.Int("duration_seconds", c.DurationSeconds),
	)
	return c, nil
}

// JoinChallenge registers the second duel participant and flips waiting to ready.
// Joining twice is a no-op.
func (s *Store) JoinChallenge(ctx context.Context, challengeID, userID string) (*duel.Challenge, error) {
	userID = strings.TrimSpace(userID)
	if strings.TrimSpace(challengeID) == "" || userID == "" {
		return nil, duel.ErrInvalidArgs
	}
	key := keyChallenge(challengeID)
	var out *duel.Challenge
	err := s.update(ctx, []string{key}, func(tx *redis.Tx) error {
		c, err := loadChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		out = c
		if c.Kind == duel.KindPublic || c.HasParticipant(userID) {
			return nil
		}
		if len(c.Participants) >= 2 {
			return duel.ErrFull
		}
		c.Participants = append(c.Participants, userID)
		if len(c.Participants) == 2 && c.Status == duel.StatusWaiting {
			c.Status = duel.StatusReady
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.putChallenge(ctx, pipe, c)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("duel_join", zap.String("challenge_id", challengeID), zap.String("user_id", userID), zap.String("status", string(out.Status)))
	return out, nil
}

// GetSnapshot projects the record for callerID. It may settle a challenge
// whose deadline has passed, which is idempotent.
func (s *Store) GetSnapshot(ctx context.Context, challengeID, callerID string) (*duel.Snapshot, error) {
	callerID = strings.TrimSpace(callerID)
	if strings.TrimSpace(challengeID) == "" || callerID == "" {
		return nil, duel.ErrInvalidArgs
	}
	c, err := loadChallenge(ctx, s.rdb, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Kind == duel.KindDuel && !c.HasParticipant(callerID) {
		return nil, duel.ErrNotParticipant
	}
	now := s.clock.Now().UTC()
	if s.expired(c, now) {
		if c, err = s.settle(ctx, challengeID); err != nil {
			return nil, err
		}
	}

	snap := &duel.Snapshot{
		ChallengeID:     c.ID,
		Kind:            c.Kind,
		Status:          c.Status,
		CreatorID:       c.CreatorID,
		StartedAt:       c.StartedAt,
		FinishedAt:      c.FinishedAt,
		DurationSeconds: c.DurationSeconds,
		QuestionCount:   c.QuestionCount,
		Rematch:         c.Rematch,
		ServerTime:      s.clock.Now().UTC(),
	}
	if c.Kind == duel.KindPublic {
		return snap, nil
	}
	self, err := loadRow(ctx, s.rdb, challengeID, callerID)
	if err != nil {
		return nil, err
	}
	snap.Self = self
	if opp := c.OpponentOf(callerID); opp != "" {
		snap.OpponentID = opp
		row, err := loadRow(ctx, s.rdb, challengeID, opp)
		if err != nil {
			return nil, err
		}
		if row != nil {
			snap.OpponentScore = row.Score
			snap.OpponentStrikes = row.Strikes
			snap.OpponentIndex = row.CurrentIndex
			snap.OpponentFinished = row.Finished
		}
	}
	return snap, nil
}

// ReportProgress upserts the caller's own row. Rows only move forward: a stale
// retry never overwrites newer progress, and finished is sticky.
func (s *Store) ReportProgress(ctx context.Context, challengeID, callerID string, p duel.Progress) (*duel.Ack, error) {
	callerID = strings.TrimSpace(callerID)
	if strings.TrimSpace(challengeID) == "" || callerID == "" {
		return nil, duel.ErrInvalidArgs
	}
	// meta is watched first so the opponent key can be derived from it
	c, err := loadChallenge(ctx, s.rdb, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Kind != duel.KindDuel {
		return nil, duel.ErrWrongKind
	}
	if !c.HasParticipant(callerID) {
		return nil, duel.ErrNotParticipant
	}
	rules := s.rules(c)
	if err := rules.Validate(p); err != nil {
		return nil, err
	}
	p = rules.Normalize(p)

	keys := []string{keyChallenge(challengeID), keyRow(challengeID, callerID)}
	if opp := c.OpponentOf(callerID); opp != "" {
		keys = append(keys, keyRow(challengeID, opp))
	}

	ack := &duel.Ack{}
	settled := false
	err = s.update(ctx, keys, func(tx *redis.Tx) error {
		*ack = duel.Ack{}
		settled = false
		cur, err := loadChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if cur.Status.Rank() < duel.StatusReady.Rank() {
			return duel.ErrNotReady
		}
		existing, err := loadRow(ctx, tx, challengeID, callerID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		ack.Status = cur.Status
		if existing != nil {
			ack.Stored = *existing
		}
		if cur.Status == duel.StatusFinished {
			return nil
		}
		if s.expired(cur, now) {
			finish(cur, now)
			settled = true
			ack.Status = cur.Status
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return s.putChallenge(ctx, pipe, cur)
			})
			return err
		}
		if existing != nil && !advances(*existing, p) {
			return nil
		}

		ack.Applied = true
		ack.Stored = p
		if p.Finished && s.allFinished(ctx, tx, cur, callerID) {
			finish(cur, now)
			settled = true
			ack.Status = cur.Status
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			raw, err := json.Marshal(p)
			if err != nil {
				return err
			}
			pipe.Set(ctx, keyRow(challengeID, callerID), raw, s.cfg.TTL)
			if settled {
				return s.putChallenge(ctx, pipe, cur)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if ack.Applied {
		obslog.L().Debug("duel_progress",
			zap.String("challenge_id", challengeID),
			zap.String("user_id", callerID),
			zap.Int("score", p.Score),
			zap.Int("strikes", p.Strikes),
			zap.Int("index", p.CurrentIndex),
			zap.Bool("finished", p.Finished),
		)
	}
	if settled {
		s.persistIfFinal(ctx, challengeID)
	}
	return ack, nil
}

// StartSession stamps started_at exactly once. Later calls return the original timestamp.
func (s *Store) StartSession(ctx context.Context, challengeID string) (time.Time, error) {
	if strings.TrimSpace(challengeID) == "" {
		return time.Time{}, duel.ErrInvalidArgs
	}
	var startedAt time.Time
	first := false
	err := s.update(ctx, []string{keyChallenge(challengeID)}, func(tx *redis.Tx) error {
		first = false
		c, err := loadChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if c.StartedAt != nil {
			startedAt = *c.StartedAt
			return nil
		}
		if c.Status != duel.StatusReady {
			return duel.ErrNotReady
		}
		now := s.clock.Now().UTC()
		c.Status = duel.StatusPlaying
		c.StartedAt = &now
		startedAt = now
		first = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.putChallenge(ctx, pipe, c)
		})
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	if first {
		obslog.L().Info("duel_start", zap.String("challenge_id", challengeID), zap.Time("started_at", startedAt))
	}
	return startedAt, nil
}

// SaveFinalAttempt appends a public-mode result and returns the leaderboard.
// Attempts are de-duplicated by attempt id so the terminal write can be retried.
func (s *Store) SaveFinalAttempt(ctx context.Context, challengeID, callerID string, a duel.Attempt) (*duel.AttemptResult, error) {
	callerID = strings.TrimSpace(callerID)
	if strings.TrimSpace(challengeID) == "" || callerID == "" {
		return nil, duel.ErrInvalidArgs
	}
	c, err := loadChallenge(ctx, s.rdb, challengeID)
	if err != nil {
		return nil, err
	}
	if c.Kind != duel.KindPublic {
		return nil, duel.ErrWrongKind
	}
	if err := s.rules(c).Validate(duel.Progress{Score: a.Score, Strikes: a.Strikes, CurrentIndex: a.Score + a.Strikes}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}

	now := s.clock.Now().UTC()
	fresh, err := s.appendAttempt(ctx, challengeID, callerID, a, now)
	if err != nil {
		return nil, err
	}
	if fresh {
		obslog.L().Info("public_attempt", zap.String("challenge_id", challengeID), zap.String("user_id", callerID), zap.Int("score", a.Score), zap.Int("strikes", a.Strikes))
		if s.archive != nil {
			if err := s.archive.SaveAttempt(ctx, challengeID, callerID, a, now); err != nil {
				obslog.L().Error("public_attempt_archive_error", zap.String("challenge_id", challengeID), zap.Error(err))
			}
		}
	}

	board, err := s.Leaderboard(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	count, err := s.rdb.LLen(ctx, keyAttempts(challengeID)).Result()
	if err != nil {
		return nil, err
	}
	return &duel.AttemptResult{Leaderboard: board, AttemptCount: count, Duplicate: !fresh}, nil
}

type attemptRow struct {
	UserID string `json:"user_id"`
	duel.Attempt
	At time.Time `json:"at"`
}

// appendAttempt marks the attempt id seen, appends the row and keeps the
// user's best board score in one MULTI. It reports false for an id already seen.
func (s *Store) appendAttempt(ctx context.Context, challengeID, userID string, a duel.Attempt, now time.Time) (bool, error) {
	row, err := json.Marshal(attemptRow{UserID: userID, Attempt: a, At: now})
	if err != nil {
		return false, err
	}
	seenKey, listKey, boardKey := keyAttemptSeen(challengeID, a.ID), keyAttempts(challengeID), keyBoard(challengeID)
	next := boardScore(a.Score, a.Strikes)
	fresh := false
	err = s.update(ctx, []string{seenKey, boardKey}, func(tx *redis.Tx) error {
		fresh = false
		n, err := tx.Exists(ctx, seenKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		cur, err := tx.ZScore(ctx, boardKey, userID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		better := errors.Is(err, redis.Nil) || next > cur
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, listKey, row)
			pipe.Expire(ctx, listKey, s.cfg.TTL)
			if better {
				pipe.ZAdd(ctx, boardKey, redis.Z{Score: next, Member: userID})
				pipe.Expire(ctx, boardKey, s.cfg.TTL)
			}
			pipe.Set(ctx, seenKey, userID, s.cfg.TTL)
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			// EXEC does not roll back; without the mark the retry is applied again
			if derr := s.rdb.Del(ctx, seenKey).Err(); derr != nil {
				obslog.L().Error("public_attempt_unmark_error", zap.String("challenge_id", challengeID), zap.String("attempt_id", a.ID), zap.Error(derr))
			}
			return err
		}
		if err == nil {
			fresh = true
		}
		return err
	})
	return fresh, err
}

// Leaderboard returns the best attempt per user, highest first.
func (s *Store) Leaderboard(ctx context.Context, challengeID string) ([]duel.LeaderboardEntry, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, keyBoard(challengeID), 0, int64(s.cfg.BoardSize-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]duel.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		score, strikes := fromBoardScore(z.Score)
		out = append(out, duel.LeaderboardEntry{Rank: i + 1, UserID: fmt.Sprint(z.Member), Score: score, Strikes: strikes})
	}
	return out, nil
}

// ProposeRematch runs the rematch handshake as one conditional upsert on the
// base record: the existence check and the create-or-flip write share a
// transaction, so simultaneous proposals converge on a single new challenge.
func (s *Store) ProposeRematch(ctx context.Context, challengeID, callerID string) (*duel.RematchResult, error) {
	callerID = strings.TrimSpace(callerID)
	if strings.TrimSpace(challengeID) == "" || callerID == "" {
		return nil, duel.ErrInvalidArgs
	}
	var (
		res     *duel.RematchResult
		created *duel.Challenge
		settled bool
	)
	err := s.update(ctx, []string{keyChallenge(challengeID)}, func(tx *redis.Tx) error {
		res, created, settled = nil, nil, false
		c, err := loadChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if c.Kind != duel.KindDuel {
			return duel.ErrWrongKind
		}
		if !c.HasParticipant(callerID) {
			return duel.ErrNotParticipant
		}
		now := s.clock.Now().UTC()
		if s.expired(c, now) {
			finish(c, now)
			settled = true
		}
		if c.Status != duel.StatusFinished {
			return duel.ErrNotFinished
		}

		r := c.Rematch
		switch {
		case r == nil:
			c.Rematch = &duel.Rematch{Status: duel.RematchRequesting, RequestedBy: callerID, RequestedAt: now}
			res = &duel.RematchResult{Action: duel.RematchWaiting, Status: duel.RematchRequesting}
		case r.RequestedBy == callerID:
			// 새로고침 등 중복 요청: 현재 상태만 돌려준다
			res = &duel.RematchResult{Action: duel.RematchAlreadyRequested, NewChallengeID: r.ChallengeID, Status: r.Status}
			return nil
		case r.Status == duel.RematchReady:
			res = &duel.RematchResult{Action: duel.RematchAccepted, NewChallengeID: r.ChallengeID, Status: r.Status}
			return nil
		default:
			created = &duel.Challenge{
				ID:              uuid.NewString(),
				Kind:            duel.KindDuel,
				Status:          duel.StatusReady,
				CreatorID:       r.RequestedBy,
				Participants:    []string{r.RequestedBy, callerID},
				DurationSeconds: c.DurationSeconds,
				QuestionCount:   c.QuestionCount,
				CreatedAt:       now,
				RematchOf:       c.ID,
			}
			c.Rematch = &duel.Rematch{ChallengeID: created.ID, Status: duel.RematchReady, RequestedBy: r.RequestedBy, RequestedAt: r.RequestedAt}
			res = &duel.RematchResult{Action: duel.RematchAccepted, NewChallengeID: created.ID, Status: duel.RematchReady}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if created != nil {
				if err := s.putChallenge(ctx, pipe, created); err != nil {
					return err
				}
			}
			return s.putChallenge(ctx, pipe, c)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if settled {
		obslog.L().Info("duel_settle_timeout", zap.String("challenge_id", challengeID))
		s.persistIfFinal(ctx, challengeID)
	}
	switch res.Action {
	case duel.RematchWaiting:
		obslog.L().Info("rematch_request", zap.String("challenge_id", challengeID), zap.String("user_id", callerID))
	case duel.RematchAccepted:
		obslog.L().Info("rematch_accept", zap.String("challenge_id", challengeID), zap.String("user_id", callerID), zap.String("new_challenge_id", res.NewChallengeID))
	}
	return res, nil
}

// settle finishes an expired or fully-reported challenge and returns the fresh record.
func (s *Store) settle(ctx context.Context, challengeID string) (*duel.Challenge, error) {
	var out *duel.Challenge
	changed := false
	err := s.update(ctx, []string{keyChallenge(challengeID)}, func(tx *redis.Tx) error {
		changed = false
		c, err := loadChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		out = c
		now := s.clock.Now().UTC()
		if !s.expired(c, now) {
			return nil
		}
		finish(c, now)
		changed = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.putChallenge(ctx, pipe, c)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		obslog.L().Info("duel_settle_timeout", zap.String("challenge_id", challengeID))
		s.persistIfFinal(ctx, challengeID)
	}
	return out, nil
}

// expired reports a playing duel whose deadline plus grace has passed.
func (s *Store) expired(c *duel.Challenge, now time.Time) bool {
	if c.Kind != duel.KindDuel || c.Status != duel.StatusPlaying || c.StartedAt == nil {
		return false
	}
	return !now.Before(c.StartedAt.Add(c.Duration() + s.cfg.FinishGrace))
}

func (s *Store) allFinished(ctx context.Context, tx *redis.Tx, c *duel.Challenge, justFinished string) bool {
	if len(c.Participants) < 2 {
		return false
	}
	for _, p := range c.Participants {
		if p == justFinished {
			continue
		}
		row, err := loadRow(ctx, tx, c.ID, p)
		if err != nil || row == nil || !row.Finished {
			return false
		}
	}
	return true
}

func finish(c *duel.Challenge, now time.Time) {
	c.Status = c.Status.Max(duel.StatusFinished)
	if c.FinishedAt == nil {
		c.FinishedAt = &now
	}
}

// advances reports whether next may replace prev.
func advances(prev, next duel.Progress) bool {
	if prev.Finished {
		return false
	}
	if next.CurrentIndex < prev.CurrentIndex {
		return false
	}
	return next != prev
}

func (s *Store) persistIfFinal(ctx context.Context, challengeID string) {
	if s.archive == nil {
		return
	}
	c, err := loadChallenge(ctx, s.rdb, challengeID)
	if err != nil || c.Status != duel.StatusFinished {
		return
	}
	rows := make(map[string]duel.Progress, len(c.Participants))
	for _, p := range c.Participants {
		row, err := loadRow(ctx, s.rdb, challengeID, p)
		if err != nil {
			return
		}
		if row != nil {
			rows[p] = *row
		}
	}
	if err := s.archive.SaveDuel(ctx, c, rows); err != nil {
		obslog.L().Error("duel_result_persist_error", zap.String("challenge_id", challengeID), zap.Error(err))
		return
	}
	obslog.L().Info("duel_result_persist", zap.String("challenge_id", challengeID), zap.Int("rows", len(rows)))
}

// update runs fn under WATCH on keys, retrying when another writer got there first.
func (s *Store) update(ctx context.Context, keys []string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < s.cfg.TxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return duel.ErrConflict
}

func (s *Store) putChallenge(ctx context.Context, pipe redis.Pipeliner, c *duel.Challenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	pipe.Set(ctx, keyChallenge(c.ID), raw, s.cfg.TTL)
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadChallenge(ctx context.Context, g getter, id string) (*duel.Challenge, error) {
	raw, err := g.Get(ctx, keyChallenge(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, duel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var c duel.Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode challenge %s: %w", id, err)
	}
	return &c, nil
}

func loadRow(ctx context.Context, g getter, id, userID string) (*duel.Progress, error) {
	raw, err := g.Get(ctx, keyRow(id, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p duel.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode row %s/%s: %w", id, userID, err)
	}
	return &p, nil
}
