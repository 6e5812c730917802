package api

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/pkg/duelwire"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const routePrefix = "/v1/challenges"

// Backend is what the server exposes: the sync contract plus admin calls.
type Backend interface {
	duel.Store
	duel.Admin
}

// Server exposes a Backend as JSON over HTTP.
//
//	POST /v1/challenges
//	POST /v1/challenges/{id}/join
//	GET  /v1/challenges/{id}/snapshot?user_id=
//	PUT  /v1/challenges/{id}/progress
//	POST /v1/challenges/{id}/start
//	POST /v1/challenges/{id}/attempts
//	POST /v1/challenges/{id}/rematch
type Server struct {
	backend Backend
	logger  *zap.Logger
	srv     *fasthttp.Server
	timeout time.Duration
}

func NewServer(b Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{backend: b, logger: logger, timeout: 5 * time.Second}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "quiz-duel",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Serve blocks serving ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handle routes one request.
func (s *Server) Handle(rc *fasthttp.RequestCtx) {
	path := string(rc.Path())
	if path == "/healthz" {
		rc.SetStatusCode(fasthttp.StatusOK)
		rc.SetBodyString("ok")
		return
	}
	if !strings.HasPrefix(path, routePrefix) {
		s.notFound(rc)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(path, routePrefix), "/")
	if rest == "" {
		if !rc.IsPost() {
			s.methodNotAllowed(rc)
			return
		}
		s.create(rc)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		s.notFound(rc)
		return
	}
	id, action := parts[0], parts[1]
	method := string(rc.Method())

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch {
	case action == "snapshot" && method == fasthttp.MethodGet:
		user := string(rc.QueryArgs().Peek("user_id"))
		snap, err := s.backend.GetSnapshot(ctx, id, user)
		s.reply(rc, snap, err)
	case action == "join" && method == fasthttp.MethodPost:
		var req duelwire.UserRequest
		if !s.decode(rc, &req) {
			return
		}
		c, err := s.backend.JoinChallenge(ctx, id, req.UserID)
		s.reply(rc, c, err)
	case action == "progress" && method == fasthttp.MethodPut:
		var req duelwire.ProgressRequest
		if !s.decode(rc, &req) {
			return
		}
		p := duel.Progress{Score: req.Score, Strikes: req.Strikes, CurrentIndex: req.CurrentIndex, Finished: req.Finished}
		ack, err := s.backend.ReportProgress(ctx, id, req.UserID, p)
		s.reply(rc, ack, err)
	case action == "start" && method == fasthttp.MethodPost:
		startedAt, err := s.backend.StartSession(ctx, id)
		s.reply(rc, duelwire.StartResponse{StartedAt: startedAt}, err)
	case action == "attempts" && method == fasthttp.MethodPost:
		var req duelwire.AttemptRequest
		if !s.decode(rc, &req) {
			return
		}
		res, err := s.backend.SaveFinalAttempt(ctx, id, req.UserID, duel.Attempt{ID: req.AttemptID, Score: req.Score, Strikes: req.Strikes})
		s.reply(rc, res, err)
	case action == "rematch" && method == fasthttp.MethodPost:
		var req duelwire.UserRequest
		if !s.decode(rc, &req) {
			return
		}
		res, err := s.backend.ProposeRematch(ctx, id, req.UserID)
		s.reply(rc, res, err)
	default:
		s.notFound(rc)
	}
}

func (s *Server) create(rc *fasthttp.RequestCtx) {
	var req duelwire.CreateRequest
	if !s.decode(rc, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	c, err := s.backend.CreateChallenge(ctx, duel.NewChallenge{
		Kind:            duel.Kind(strings.TrimSpace(req.Kind)),
		CreatorID:       req.CreatorID,
		DurationSeconds: req.DurationSeconds,
		QuestionCount:   req.QuestionCount,
	})
	if err == nil {
		s.writeJSON(rc, fasthttp.StatusCreated, c)
		return
	}
	s.reply(rc, nil, err)
}

func (s *Server) decode(rc *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(rc.PostBody(), v); err != nil {
		s.writeError(rc, duelwire.DomainError{Code: duelwire.CodeInvalidArgs, Message: "malformed json body"})
		return false
	}
	return true
}

func (s *Server) reply(rc *fasthttp.RequestCtx, v any, err error) {
	if err != nil {
		de := toDomain(err)
		if de.Code == duelwire.CodeInternal {
			s.logger.Error("api_internal_error", zap.String("path", string(rc.Path())), zap.Error(err))
		}
		s.writeError(rc, de)
		return
	}
	s.writeJSON(rc, fasthttp.StatusOK, v)
}

func (s *Server) writeError(rc *fasthttp.RequestCtx, de duelwire.DomainError) {
	s.writeJSON(rc, de.HTTPStatus(), duelwire.ErrorResponse{Error: de})
}

func (s *Server) writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("api_encode_error", zap.Error(err))
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetContentType("application/json")
	rc.SetStatusCode(status)
	rc.SetBody(raw)
}

func (s *Server) notFound(rc *fasthttp.RequestCtx) {
	s.writeJSON(rc, fasthttp.StatusNotFound, duelwire.ErrorResponse{Error: duelwire.DomainError{Code: "route_not_found", Message: "no such route"}})
}

func (s *Server) methodNotAllowed(rc *fasthttp.RequestCtx) {
	s.writeJSON(rc, fasthttp.StatusMethodNotAllowed, duelwire.ErrorResponse{Error: duelwire.DomainError{Code: "method_not_allowed"}})
}
