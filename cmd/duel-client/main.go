package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/quiz-duel/internal/api"
	appcfg "github.com/park285/quiz-duel/internal/config"
	"github.com/park285/quiz-duel/internal/duel"
	"github.com/park285/quiz-duel/internal/msgcat"
	"github.com/park285/quiz-duel/internal/obslog"
	"github.com/park285/quiz-duel/internal/participant"
	"github.com/park285/quiz-duel/internal/quizbank"
	"go.uber.org/zap"
)

func main() {
	create := flag.String("create", "", "새 대결 생성: duel | public")
	join := flag.String("join", "", "참가할 대결 ID")
	attach := flag.String("attach", "", "이미 참가한 대결 ID로 재접속")
	duration := flag.Int("duration", 60, "제한 시간(초), -create 와 함께 사용")
	questions := flag.Int("questions", 10, "문제 수, -create 와 함께 사용")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireClient(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv("logs/duel-client.log"); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cat, err := msgcat.New(cfg.MessageOverride)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}
	if err := cat.Require(requiredKeys...); err != nil {
		log.Fatalf("message catalog error: %v", err)
	}
	bank, err := quizbank.Load(cfg.QuestionFile)
	if err != nil {
		log.Fatalf("question bank error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.ServerURL, api.WithRetry(cfg.HTTPRetries))
	ui := &terminal{cat: cat, out: os.Stdout, user: cfg.UserID, maxStrikes: cfg.MaxStrikes, bank: bank}

	if *create != "" && *questions > bank.Len() {
		log.Fatalf("question bank has %d questions, -questions=%d", bank.Len(), *questions)
	}
	challengeID, err := enter(ctx, client, ui, cfg.UserID, *create, *join, *attach, *duration, *questions)
	if err != nil {
		log.Fatalf("challenge error: %v", err)
	}

	lines := readLines(os.Stdin)
	for challengeID != "" {
		ui.reset(challengeID)
		runner := participant.NewRunner(client, participant.Config{
			ChallengeID:  challengeID,
			UserID:       cfg.UserID,
			MaxStrikes:   cfg.MaxStrikes,
			PollInterval: cfg.PollInterval(),
		}, participant.WithLogger(logger))

		res, err := play(ctx, runner, ui, lines)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Fatalf("runner error: %v", err)
		}
		challengeID = res.RedirectTo
		if challengeID != "" {
			ui.say("rematch.redirect", map[string]any{"ChallengeID": challengeID})
		}
	}
}

// enter creates or joins a challenge according to the flags and returns its id.
func enter(ctx context.Context, client *api.Client, ui *terminal, userID, create, join, attach string, duration, questions int) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch {
	case create != "":
		c, err := client.CreateChallenge(cctx, duel.NewChallenge{
			Kind:            duel.Kind(strings.ToLower(create)),
			CreatorID:       userID,
			DurationSeconds: duration,
			QuestionCount:   questions,
		})
		if err != nil {
			return "", err
		}
		ui.say("duel.created", map[string]any{"ChallengeID": c.ID})
		return c.ID, nil
	case join != "":
		c, err := client.JoinChallenge(cctx, join, userID)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	case attach != "":
		return attach, nil
	case flag.NArg() > 0:
		return flag.Arg(0), nil
	default:
		return "", errors.New("one of -create, -join or -attach is required")
	}
}

// play pumps stdin and runner views until the runner returns.
func play(ctx context.Context, runner *participant.Runner, ui *terminal, lines <-chan string) (*participant.Result, error) {
	type outcome struct {
		res *participant.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := runner.Run(ctx)
		done <- outcome{res, err}
	}()

	var failure error
	for {
		select {
		case o := <-done:
			if failure != nil {
				return o.res, failure
			}
			return o.res, o.err
		case v := <-runner.Updates():
			if err := ui.render(v); err != nil && failure == nil {
				failure = err
				runner.Leave()
			}
		case line, ok := <-lines:
			if !ok {
				runner.Leave()
				lines = nil
				continue
			}
			handleLine(runner, ui, strings.TrimSpace(line))
		}
	}
}

func handleLine(runner *participant.Runner, ui *terminal, line string) {
	switch strings.ToLower(line) {
	case "":
		return
	case "m":
		runner.RequestRematch()
	case "r":
		runner.RetryConnection()
	case "a":
		runner.PlayAgain()
	case "q":
		runner.Leave()
	default:
		var choice int
		if _, err := fmt.Sscanf(line, "%d", &choice); err != nil {
			return
		}
		correct, ok := ui.grade(choice - 1)
		if !ok {
			return
		}
		runner.Answer(correct)
	}
}

func readLines(f *os.File) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			ch <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			obslog.L().Warn("stdin_read_failed", zap.Error(err))
		}
	}()
	return ch
}
