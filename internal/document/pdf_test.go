package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/docent-ai/docent/internal/log"
)

// mockRunner implements CommandRunner, keyed by the PDF path argument.
type mockRunner struct {
	outputs map[string]string // path -> extracted text
	errs    map[string]error
	calls   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if name != "pdftotext" {
		return nil, errors.New("unexpected command " + name)
	}
	// Path is the second-to-last argument; "-" selects stdout output.
	path := args[len(args)-2]
	m.calls = append(m.calls, path)
	if err := m.errs[path]; err != nil {
		return nil, err
	}
	return []byte(m.outputs[path]), nil
}

func testMapping() map[string][]string {
	return map[string][]string{
		"https://example.com/clinical-trials": {"clinical-trials"},
		"https://example.com/usability":       {"usability"},
	}
}

func TestPDFLoad(t *testing.T) {
	runner := &mockRunner{outputs: map[string]string{
		"docs/Clinical-Trials-Handbook.pdf": "Advanced clinical trial design for a diagnostic device.",
	}}
	loader := NewPDFLoader(runner, testMapping(), log.NewNop())

	doc, err := loader.Load(context.Background(), "docs/Clinical-Trials-Handbook.pdf")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if doc.SourceType != SourceTypePDF {
		t.Errorf("SourceType = %q", doc.SourceType)
	}
	if doc.Title != "Clinical-Trials-Handbook" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.AssociatedURL != "https://example.com/clinical-trials" {
		t.Errorf("AssociatedURL = %q", doc.AssociatedURL)
	}
	if doc.Domain[TagDevelopmentStage] != "clinical" {
		t.Errorf("development stage = %q", doc.Domain[TagDevelopmentStage])
	}
	if doc.Domain[TagDeviceType] != "diagnostic" {
		t.Errorf("device type = %q", doc.Domain[TagDeviceType])
	}
	if doc.Domain[TagComplexityLevel] != "high" {
		t.Errorf("complexity = %q", doc.Domain[TagComplexityLevel])
	}
}

func TestPDFLoadEmptyOutput(t *testing.T) {
	runner := &mockRunner{outputs: map[string]string{"scan.pdf": "  \n "}}
	loader := NewPDFLoader(runner, nil, log.NewNop())

	_, err := loader.Load(context.Background(), "scan.pdf")
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("error = %v, want ErrEmptyDocument", err)
	}
}

func TestPDFDomainTagDefaults(t *testing.T) {
	runner := &mockRunner{outputs: map[string]string{"plain.pdf": "Nothing matches here."}}
	loader := NewPDFLoader(runner, nil, log.NewNop())

	doc, err := loader.Load(context.Background(), "plain.pdf")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]string{
		TagDevelopmentStage: "unknown",
		TagDeviceType:       "unknown",
		TagComplexityLevel:  "medium",
	}
	for k, v := range want {
		if doc.Domain[k] != v {
			t.Errorf("Domain[%q] = %q, want %q", k, doc.Domain[k], v)
		}
	}
}

func TestLoadDirSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a-usability.pdf", "b-broken.pdf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	runner := &mockRunner{
		outputs: map[string]string{
			filepath.Join(dir, "a-usability.pdf"): "Usability engineering basics.",
		},
		errs: map[string]error{
			filepath.Join(dir, "b-broken.pdf"): errors.New("pdftotext: damaged file"),
		},
	}
	loader := NewPDFLoader(runner, testMapping(), log.NewNop())

	docs, err := loader.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1 (broken file skipped, txt ignored)", len(docs))
	}
	if docs[0].AssociatedURL != "https://example.com/usability" {
		t.Errorf("AssociatedURL = %q", docs[0].AssociatedURL)
	}
	if len(runner.calls) != 2 {
		t.Errorf("runner calls = %v, want only the two PDFs", runner.calls)
	}
}
