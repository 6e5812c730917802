package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv := NewServer(store.New(rdb, store.Config{}), nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = ln.Close()
	})
	return NewClient("http://duel.test", WithDialer(func(string) (net.Conn, error) { return ln.Dial() }))
}

func TestClientDuelRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	ch, err := c.CreateChallenge(ctx, duel.NewChallenge{Kind: duel.KindDuel, CreatorID: "a", DurationSeconds: 60, QuestionCount: 5})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	joined, err := c.JoinChallenge(ctx, ch.ID, "b")
	if err != nil || joined.Status != duel.StatusReady {
		t.Fatalf("JoinChallenge: %+v err=%v", joined, err)
	}
	startedAt, err := c.StartSession(ctx, ch.ID)
	if err != nil || startedAt.IsZero() {
		t.Fatalf("StartSession: %v err=%v", startedAt, err)
	}
	ack, err := c.ReportProgress(ctx, ch.ID, "a", duel.Progress{Score: 1, Strikes: 1, CurrentIndex: 2})
	if err != nil || !ack.Applied {
		t.Fatalf("ReportProgress: %+v err=%v", ack, err)
	}
	snap, err := c.GetSnapshot(ctx, ch.ID, "b")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Status != duel.StatusPlaying || snap.OpponentID != "a" || snap.OpponentScore != 1 || snap.OpponentStrikes != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.StartedAt == nil || !snap.StartedAt.Equal(startedAt) || snap.ServerTime.IsZero() {
		t.Fatalf("snapshot lost timing fields: %+v", snap)
	}
}

func TestClientMapsDomainErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.GetSnapshot(ctx, "missing", "a"); !errors.Is(err, duel.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ch, err := c.CreateChallenge(ctx, duel.NewChallenge{Kind: duel.KindDuel, CreatorID: "a", DurationSeconds: 60, QuestionCount: 5})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if _, err := c.StartSession(ctx, ch.ID); !errors.Is(err, duel.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := c.GetSnapshot(ctx, ch.ID, "intruder"); !errors.Is(err, duel.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := c.ProposeRematch(ctx, ch.ID, "a"); !errors.Is(err, duel.ErrNotFinished) {
		t.Fatalf("expected ErrNotFinished, got %v", err)
	}
	if _, err := c.CreateChallenge(ctx, duel.NewChallenge{Kind: duel.KindDuel, CreatorID: "", DurationSeconds: 60, QuestionCount: 5}); !errors.Is(err, duel.ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestClientPublicAttempt(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ch, err := c.CreateChallenge(ctx, duel.NewChallenge{Kind: duel.KindPublic, CreatorID: "host", DurationSeconds: 30, QuestionCount: 10})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	res, err := c.SaveFinalAttempt(ctx, ch.ID, "u1", duel.Attempt{ID: "a-1", Score: 5, Strikes: 2})
	if err != nil {
		t.Fatalf("SaveFinalAttempt: %v", err)
	}
	if res.AttemptCount != 1 || len(res.Leaderboard) != 1 || res.Leaderboard[0].Score != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestServerRoutes(t *testing.T) {
	srv := NewServer(nil, nil)
	var rc fasthttp.RequestCtx
	rc.Request.SetRequestURI("/healthz")
	srv.Handle(&rc)
	if rc.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("healthz: %d", rc.Response.StatusCode())
	}

	var nf fasthttp.RequestCtx
	nf.Request.SetRequestURI("/v1/challenges/x/unknown")
	srv.Handle(&nf)
	if nf.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("unknown route: %d", nf.Response.StatusCode())
	}

	var bad fasthttp.RequestCtx
	bad.Request.Header.SetMethod(fasthttp.MethodPut)
	bad.Request.SetRequestURI("/v1/challenges/x/progress")
	bad.Request.SetBodyString("{not json")
	srv.Handle(&bad)
	if bad.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("malformed body: %d", bad.Response.StatusCode())
	}
}
