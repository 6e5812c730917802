package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/retry"
	"github.com/park285/quiz-duel/pkg/duelwire"
	"github.com/valyala/fasthttp"
)

// Client talks to a Server. It satisfies duel.Store and duel.Admin, so a
// participant cannot tell it apart from the Redis store.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	clock   clockwork.Clock

	defaultTimeout time.Duration
	retryMax       int
}

var (
	_ duel.Store = (*Client)(nil)
	_ duel.Admin = (*Client)(nil)
)

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// WithRetry sets the attempt count for admin calls. Sync calls are never
// retried here; their callers own the retry policy.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDialer replaces the TCP dialer, e.g. with an in-memory listener.
func WithDialer(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		clock:          clockwork.NewRealClock(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func challengePath(id, action string) string {
	return routePrefix + "/" + url.PathEscape(strings.TrimSpace(id)) + "/" + action
}

func (c *Client) CreateChallenge(ctx context.Context, nc duel.NewChallenge) (*duel.Challenge, error) {
	req := duelwire.CreateRequest{Kind: string(nc.Kind), CreatorID: nc.CreatorID, DurationSeconds: nc.DurationSeconds, QuestionCount: nc.QuestionCount}
	var out duel.Challenge
	// creation is not idempotent, so it is never retried
	if err := c.doJSON(ctx, fasthttp.MethodPost, routePrefix, req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinChallenge(ctx context.Context, challengeID, userID string) (*duel.Challenge, error) {
	var out duel.Challenge
	if err := c.doJSON(ctx, fasthttp.MethodPost, challengePath(challengeID, "join"), duelwire.UserRequest{UserID: userID}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSnapshot(ctx context.Context, challengeID, callerID string) (*duel.Snapshot, error) {
	path := challengePath(challengeID, "snapshot") + "?user_id=" + url.QueryEscape(callerID)
	var out duel.Snapshot
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReportProgress(ctx context.Context, challengeID, callerID string, p duel.Progress) (*duel.Ack, error) {
	req := duelwire.ProgressRequest{UserID: callerID, Score: p.Score, Strikes: p.Strikes, CurrentIndex: p.CurrentIndex, Finished: p.Finished}
	var out duel.Ack
	if err := c.doJSON(ctx, fasthttp.MethodPut, challengePath(challengeID, "progress"), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StartSession(ctx context.Context, challengeID string) (time.Time, error) {
	var out duelwire.StartResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, challengePath(challengeID, "start"), struct{}{}, &out, false); err != nil {
		return time.Time{}, err
	}
	return out.StartedAt, nil
}

func (c *Client) SaveFinalAttempt(ctx context.Context, challengeID, callerID string, a duel.Attempt) (*duel.AttemptResult, error) {
	req := duelwire.AttemptRequest{UserID: callerID, AttemptID: a.ID, Score: a.Score, Strikes: a.Strikes}
	var out duel.AttemptResult
	if err := c.doJSON(ctx, fasthttp.MethodPost, challengePath(challengeID, "attempts"), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProposeRematch(ctx context.Context, challengeID, callerID string) (*duel.RematchResult, error) {
	var out duel.RematchResult
	if err := c.doJSON(ctx, fasthttp.MethodPost, challengePath(challengeID, "rematch"), duelwire.UserRequest{UserID: callerID}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retryable bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	policy := retry.Policy{Attempts: 1, Base: 100 * time.Millisecond, Max: 3200 * time.Millisecond}
	if retryable && c.retryMax > 0 {
		policy.Attempts = c.retryMax
	}
	return policy.Do(ctx, c.clock, func(ctx context.Context) error {
		resp.Reset()
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := decodeError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return retry.Stop(err)
			}
			return err
		}
		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return retry.Stop(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	})
}

func decodeError(status int, body []byte) error {
	var er duelwire.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Code != "" {
		return fromDomain(er.Error)
	}
	return fmt.Errorf("duel api error: status=%d body=%s", status, truncate(string(body), 512))
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
