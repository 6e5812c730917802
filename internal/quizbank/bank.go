package quizbank

import (
	"embed"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultFiles embed.FS

type Question struct {
	Prompt  string   `yaml:"prompt"`
	Choices []string `yaml:"choices"`
	// Answer is the index into Choices.
	Answer int `yaml:"answer"`
}

// Check reports whether choice (0-based) is correct.
func (q Question) Check(choice int) bool { return choice == q.Answer }

// Bank is an ordered list of questions.
type Bank struct {
	questions []Question
}

// Load reads a YAML bank from path, or the built-in one when path is empty.
func Load(path string) (*Bank, error) {
	var (
		raw []byte
		err error
	)
	if strings.TrimSpace(path) == "" {
		raw, err = defaultFiles.ReadFile("questions.yaml")
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Bank, error) {
	var doc struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, errors.New("question bank is empty")
	}
	for i, q := range doc.Questions {
		if strings.TrimSpace(q.Prompt) == "" || len(q.Choices) < 2 || q.Answer < 0 || q.Answer >= len(q.Choices) {
			return nil, fmt.Errorf("question %d is malformed", i+1)
		}
	}
	return &Bank{questions: doc.Questions}, nil
}

func (b *Bank) Len() int { return len(b.questions) }

// ForChallenge returns n questions in an order derived from challengeID, so
// both participants of a challenge see the same list.
func (b *Bank) ForChallenge(challengeID string, n int) []Question {
	if n <= 0 || n > len(b.questions) {
		n = len(b.questions)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(challengeID))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	order := rng.Perm(len(b.questions))
	out := make([]Question, n)
	for i := 0; i < n; i++ {
		out[i] = b.questions[order[i]]
	}
	return out
}
