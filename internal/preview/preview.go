// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package preview

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/ledongthuc/pdf"

	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// Kind is how a document is previewed.
type Kind string

const (
	KindText   Kind = "text"
	KindPDF    Kind = "pdf"
	KindBinary Kind = "binary"
)

// ErrNoText is returned when a PDF has no extractable text.
var ErrNoText = errors.New("document has no extractable text")

// Options controls preview generation.
type Options struct {
	// MaxBytes is the most that is read from the source.
	MaxBytes int64
	// MaxLines truncates the text shown.
	MaxLines int
	// Highlight enables chroma highlighting of text formats.
	Highlight bool
	// Style is the chroma style name.
	Style string
}

// DefaultOptions returns the options used by the TUI and CLI.
func DefaultOptions() Options {
	return Options{
		MaxBytes:  8 << 20,
		MaxLines:  400,
		Highlight: true,
		Style:     "monokai",
	}
}

// Preview is a rendered document.
type Preview struct {
	Name        string
	ContentType string
	Kind        Kind
	// Size is the number of bytes read.
	Size int64
	// Text is the plain text, empty for binary documents.
	Text string
	// Highlighted is Text with ANSI highlighting, or Text when disabled.
	Highlighted string
	// Pages is the PDF page count.
	Pages     int
	Truncated bool
}

// Render returns what should be printed.
func (p Preview) Render() string {
	if p.Kind == KindBinary {
		return p.Summary()
	}
	out := p.Highlighted
	if out == "" {
		out = p.Text
	}
	if p.Truncated {
		out = strings.TrimRight(out, "\n") + "\n\n… preview truncated"
	}
	return out
}

// Summary is a one-paragraph description used for binary formats.
func (p Preview) Summary() string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p.Name)), ".")
	if ext == "" {
		ext = "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Name)
	fmt.Fprintf(&b, "Type: %s", ext)
	if p.ContentType != "" {
		fmt.Fprintf(&b, " (%s)", p.ContentType)
	}
	fmt.Fprintf(&b, "\nSize: %s", util.FormatBytes(p.Size))
	if p.Truncated {
		b.WriteString("+")
	}
	b.WriteString("\nNo text preview is available for this format. Download it to view.")
	return b.String()
}

// =============================================================================
// BUILDING
// =============================================================================

var textExtensions = map[string]bool{
	"txt": true, "md": true, "markdown": true, "csv": true, "tsv": true,
	"xml": true, "html": true, "htm": true, "json": true, "yaml": true,
	"yml": true, "rtf": true, "log": true,
}

// KindOf guesses the preview kind from the name and the leading bytes.
func KindOf(name string, head []byte) Kind {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch {
	case ext == "pdf" || bytes.HasPrefix(head, []byte("%PDF-")):
		return KindPDF
	case textExtensions[ext]:
		return KindText
	case looksLikeText(head):
		return KindText
	}
	return KindBinary
}

func looksLikeText(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	// The sample may end mid-rune.
	for i := 0; i < utf8.UTFMax-1 && len(head) > 1 && !utf8.Valid(head); i++ {
		head = head[:len(head)-1]
	}
	return utf8.Valid(head)
}

// FromReader reads at most opts.MaxBytes from r and builds a preview.
func FromReader(name, contentType string, r io.Reader, opts Options) (Preview, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultOptions().MaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return Preview{}, fmt.Errorf("read %s: %w", name, err)
	}
	truncated := int64(len(data)) > opts.MaxBytes
	if truncated {
		data = data[:opts.MaxBytes]
	}
	p, err := FromBytes(name, contentType, data, opts)
	p.Truncated = p.Truncated || truncated
	return p, err
}

// FromBytes builds a preview from a complete document.
func FromBytes(name, contentType string, data []byte, opts Options) (Preview, error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	p := Preview{
		Name:        name,
		ContentType: contentType,
		Kind:        KindOf(name, head),
		Size:        int64(len(data)),
	}

	switch p.Kind {
	case KindPDF:
		text, pages, err := pdfText(data)
		if err != nil {
			// Unreadable PDFs still get a summary.
			p.Kind = KindBinary
			return p, err
		}
		p.Pages = pages
		p.Text, p.Truncated = clipLines(text, opts.MaxLines)
		p.Highlighted = p.Text
	case KindText:
		p.Text, p.Truncated = clipLines(strings.ToValidUTF8(string(data), "�"), opts.MaxLines)
		p.Highlighted = p.Text
		if opts.Highlight {
			p.Highlighted = Highlight(name, p.Text, opts.Style)
		}
	}
	return p, nil
}

func pdfText(data []byte) (text string, pages int, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", 0, fmt.Errorf("read extracted text: %w", err)
	}
	text = strings.TrimSpace(buf.String())
	if text == "" {
		return "", r.NumPage(), ErrNoText
	}
	return text, r.NumPage(), nil
}

func clipLines(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	lines := strings.SplitAfter(text, "\n")
	if len(lines) <= max {
		return text, false
	}
	return strings.Join(lines[:max], ""), true
}

// =============================================================================
// HIGHLIGHTING
// =============================================================================

// Highlight colors text with chroma, choosing the lexer by file name and
// falling back to content analysis. It returns text unchanged on failure.
func Highlight(name, text, style string) string {
	lexer := lexers.Match(name)
	if lexer == nil {
		lexer = lexers.Analyse(text)
	}
	if lexer == nil {
		return text
	}
	lexer = chroma.Coalesce(lexer)

	s := chromaStyles.Get(style)
	if s == nil {
		s = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return text
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, s, iterator); err != nil {
		return text
	}
	return buf.String()
}
