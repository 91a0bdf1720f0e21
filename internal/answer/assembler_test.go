package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/retrieve"
)

type mockGenerator struct {
	output    string
	err       error
	prompt    string
	callCount int
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.callCount++
	m.prompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.output, nil
}

func someResults() []knowledge.Result {
	return []knowledge.Result{
		{Chunk: knowledge.Chunk{Title: "Trial Design", Content: "Define endpoints first."}, Similarity: 0.8},
	}
}

func TestAnswerGroundsPromptInContext(t *testing.T) {
	gen := &mockGenerator{output: "Define endpoints first, per Trial Design."}
	a := New(gen, 0, log.NewNop())

	got, err := a.Answer(context.Background(), "how to design a trial?", someResults())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got != "Define endpoints first, per Trial Design." {
		t.Errorf("Answer() = %q", got)
	}
	if !strings.Contains(gen.prompt, "Define endpoints first.") {
		t.Error("prompt missing retrieved content")
	}
	if !strings.Contains(gen.prompt, "how to design a trial?") {
		t.Error("prompt missing the question")
	}
}

func TestAnswerNoContextSkipsModel(t *testing.T) {
	gen := &mockGenerator{output: "should never be used"}
	a := New(gen, 0, log.NewNop())

	got, err := a.Answer(context.Background(), "anything?", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got != NoContextReply {
		t.Errorf("Answer() = %q, want NoContextReply", got)
	}
	if gen.callCount != 0 {
		t.Errorf("generator called %d times, want 0", gen.callCount)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	a := New(&mockGenerator{}, 0, log.NewNop())

	if _, err := a.Answer(context.Background(), "  ", someResults()); !errors.Is(err, retrieve.ErrEmptyQuery) {
		t.Errorf("error = %v, want ErrEmptyQuery", err)
	}
}

func TestAnswerGeneratorFailure(t *testing.T) {
	boom := errors.New("model down")
	a := New(&mockGenerator{err: boom}, 0, log.NewNop())

	if _, err := a.Answer(context.Background(), "q?", someResults()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}
