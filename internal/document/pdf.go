package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/security"
)

// CommandRunner abstracts the external text extraction command so tests
// never shell out.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// NewExecRunner returns a CommandRunner backed by os/exec.
func NewExecRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %s: %w", name, msg, err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// PDFLoader extracts text from PDF files via pdftotext and maps each file
// onto the site page it supports.
type PDFLoader struct {
	runner CommandRunner
	// urlMapping associates a site URL with the filename patterns that
	// identify its supporting PDFs.
	urlMapping map[string][]string
	logger     log.Logger
}

// NewPDFLoader creates a PDFLoader. runner defaults to the exec runner;
// urlMapping may be nil, leaving AssociatedURL empty on every document.
func NewPDFLoader(runner CommandRunner, urlMapping map[string][]string, logger log.Logger) *PDFLoader {
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &PDFLoader{runner: runner, urlMapping: urlMapping, logger: logger}
}

// LoadDir loads every PDF in dir, sorted by filename. Files that fail
// extraction or contain no text are logged and skipped so one malformed
// file never sinks the batch.
func (l *PDFLoader) LoadDir(ctx context.Context, dir string) ([]Document, error) {
	paths, err := security.NewPathValidator([]string{dir})
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pdf directory %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var docs []Document
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		path, err := paths.Validate(filepath.Join(dir, name))
		if err != nil {
			l.logger.Warn("skipping pdf", "file", name, "error", err)
			continue
		}
		doc, err := l.Load(ctx, path)
		if err != nil {
			l.logger.Warn("skipping pdf", "file", name, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Load extracts one PDF into a Document, tagging it with domain attributes
// derived from its content.
func (l *PDFLoader) Load(ctx context.Context, path string) (Document, error) {
	out, err := l.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return Document{}, fmt.Errorf("extract %q: %w", path, err)
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return Document{}, fmt.Errorf("%q: %w", path, ErrEmptyDocument)
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))

	return Document{
		Source:        path,
		SourceType:    SourceTypePDF,
		Title:         title,
		Text:          text,
		AssociatedURL: l.associatedURL(base),
		Domain:        domainTags(text),
	}, nil
}

// associatedURL maps a PDF filename onto a site page by pattern match.
// Mapping keys are scanned in sorted order so the result is stable.
func (l *PDFLoader) associatedURL(filename string) string {
	lower := strings.ToLower(filename)

	urls := make([]string, 0, len(l.urlMapping))
	for u := range l.urlMapping {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	for _, u := range urls {
		for _, pattern := range l.urlMapping[u] {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				return u
			}
		}
	}
	return ""
}

// Domain tag keys attached to PDF documents.
const (
	TagDevelopmentStage = "development_stage"
	TagDeviceType       = "device_type"
	TagComplexityLevel  = "complexity_level"
)

// domainTags derives coarse document-level tags from a keyword scan of the
// extracted text. Earlier stages win when a document mentions several.
func domainTags(text string) map[string]string {
	lower := strings.ToLower(text)
	tags := map[string]string{
		TagDevelopmentStage: "unknown",
		TagDeviceType:       "unknown",
		TagComplexityLevel:  "medium",
	}

	switch {
	case containsAny(lower, "concept", "ideation", "initial"):
		tags[TagDevelopmentStage] = "concept"
	case containsAny(lower, "prototype", "development", "design"):
		tags[TagDevelopmentStage] = "prototype"
	case containsAny(lower, "pre-clinical", "preclinical"):
		tags[TagDevelopmentStage] = "pre-clinical"
	case containsAny(lower, "clinical", "trial"):
		tags[TagDevelopmentStage] = "clinical"
	}

	switch {
	case containsAny(lower, "diagnostic", "diagnosis"):
		tags[TagDeviceType] = "diagnostic"
	case containsAny(lower, "therapeutic", "treatment"):
		tags[TagDeviceType] = "therapeutic"
	case containsAny(lower, "monitoring", "monitor"):
		tags[TagDeviceType] = "monitoring"
	}

	switch {
	case containsAny(lower, "basic", "simple", "fundamental"):
		tags[TagComplexityLevel] = "low"
	case containsAny(lower, "advanced", "complex", "sophisticated"):
		tags[TagComplexityLevel] = "high"
	}

	return tags
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
