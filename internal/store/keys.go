package store

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

func keyChallenge(id string) string       { return "duel:ch:" + strings.TrimSpace(id) }
func keyRow(id, userID string) string     { return keyChallenge(id) + ":p:" + strings.TrimSpace(userID) }
func keyAttempts(id string) string        { return keyChallenge(id) + ":attempts" }
func keyBoard(id string) string           { return keyChallenge(id) + ":board" }
func keyAttemptSeen(id, aid string) string { return keyChallenge(id) + ":attempt:" + strings.TrimSpace(aid) }

// ParseRedisURL turns redis://[:pass@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

// leaderboard members are ranked by score desc, then strikes asc.
const strikeSlots = 1000

func boardScore(score, strikes int) float64 {
	return float64(score)*strikeSlots + float64(strikeSlots-1-strikes)
}

func fromBoardScore(v float64) (score, strikes int) {
	n := int64(v)
	score = int(n / strikeSlots)
	strikes = strikeSlots - 1 - int(n%strikeSlots)
	return score, strikes
}
