// Package chunker splits raw document text into bounded, semantically
// coherent segments for embedding and retrieval.
//
// The splitter scans left to right and prefers, in order: the end of a
// complete fenced code block, a paragraph break, a sentence terminator, and
// finally a hard cut at the window boundary. Paragraph and sentence
// boundaries below a configurable fraction of the window are rejected to
// avoid pathologically short chunks. Fenced code blocks are never split; a
// block larger than the window is emitted whole and is the one documented
// case where a segment exceeds the size bound.
package chunker

import "strings"

// fenceMarker delimits fenced code blocks.
const fenceMarker = "```"

// Defaults mirror the tuning the corpus was originally ingested with.
const (
	DefaultMaxSize       = 5000
	DefaultBoundaryFloor = 0.3
)

// Chunker splits text into segments of at most MaxSize characters.
// The zero value is not usable; construct with New.
type Chunker struct {
	maxSize int
	floor   float64
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithBoundaryFloor overrides the minimum boundary offset, expressed as a
// fraction of the maximum size. Values outside (0,1) are ignored.
func WithBoundaryFloor(f float64) Option {
	return func(c *Chunker) {
		if f > 0 && f < 1 {
			c.floor = f
		}
	}
}

// New creates a Chunker emitting segments of at most maxSize characters.
// Non-positive maxSize falls back to DefaultMaxSize.
func New(maxSize int, opts ...Option) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Chunker{maxSize: maxSize, floor: DefaultBoundaryFloor}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxSize returns the configured segment bound in characters.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Split divides text into trimmed, non-empty segments. Empty input yields
// nil; input within the bound yields exactly one segment. Sizes are measured
// in characters (runes), not bytes, so multi-byte text is never cut
// mid-character.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)

	var segments []string
	emit := func(start, end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			segments = append(segments, s)
		}
	}

	pos := 0
	for pos < n {
		if n-pos <= c.maxSize {
			emit(pos, n)
			break
		}

		window := runes[pos : pos+c.maxSize]
		split := c.splitPoint(runes, pos, window)

		// Forced progress: a degenerate boundary must still consume at
		// least one character or the scan would loop forever.
		if split <= pos {
			split = pos + 1
		}
		emit(pos, split)
		pos = split
	}

	return segments
}

// splitPoint returns the absolute index (exclusive) at which the segment
// starting at pos should end, following the boundary priority order.
func (c *Chunker) splitPoint(runes []rune, pos int, window []rune) int {
	markers := markerOffsets(window)

	switch {
	case len(markers) >= 2:
		// At least one complete fenced block in the window: split just
		// after the last closing marker.
		lastClose := markers[(len(markers)/2)*2-1]
		return pos + lastClose + len(fenceMarker)

	case len(markers) == 1:
		// An opening fence whose closer lies beyond the window. The block
		// must not be split, so look for a boundary strictly before it.
		open := markers[0]
		if split := c.textBoundary(window[:open]); split > 0 {
			return pos + split
		}
		if open > 0 {
			return pos + open
		}
		// Block starts the window: emit it whole through its closer even
		// though it exceeds the bound (the documented size exception).
		if closing := indexFrom(runes, pos+len(fenceMarker), fenceMarker); closing >= 0 {
			return closing + len(fenceMarker)
		}
		// Unpaired marker: plain text after all.
		if split := c.textBoundary(window); split > 0 {
			return pos + split
		}
		return pos + len(window)

	default:
		if split := c.textBoundary(window); split > 0 {
			return pos + split
		}
		return pos + len(window)
	}
}

// textBoundary finds a paragraph or sentence boundary in window above the
// configured floor. It returns the window-relative split offset, or 0 when
// no acceptable boundary exists.
func (c *Chunker) textBoundary(window []rune) int {
	minOffset := c.floor * float64(c.maxSize)

	if p := lastParagraphBreak(window); float64(p) > minOffset {
		return p
	}
	if s := lastSentenceEnd(window); float64(s) > minOffset {
		return s
	}
	return 0
}

// lastParagraphBreak returns the offset of the last blank-line break in
// window, or -1.
func lastParagraphBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// lastSentenceEnd returns the offset just past the last period that is
// followed by whitespace, or -1.
func lastSentenceEnd(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '.' && isSpace(window[i+1]) {
			return i + 1
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// markerOffsets returns the offsets of fence markers in window, scanning
// left to right and skipping over each found marker.
func markerOffsets(window []rune) []int {
	var offsets []int
	m := []rune(fenceMarker)
	for i := 0; i+len(m) <= len(window); {
		if window[i] == m[0] && window[i+1] == m[1] && window[i+2] == m[2] {
			offsets = append(offsets, i)
			i += len(m)
			continue
		}
		i++
	}
	return offsets
}

// indexFrom returns the absolute index of the first occurrence of sub at or
// after start, or -1.
func indexFrom(runes []rune, start int, sub string) int {
	s := []rune(sub)
	for i := start; i+len(s) <= len(runes); i++ {
		match := true
		for j := range s {
			if runes[i+j] != s[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
