// Package extract recovers plain text and typed fields from companion
// documents.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// textBackend is one strategy for turning document bytes into text.
// Backends are tried in strict priority order; the first one producing
// non-empty text wins.
type textBackend interface {
	Name() string
	Extract(data []byte) (string, error)
}

// TextExtractor runs the backend chain. Structured backends yield high
// confidence; the raw-bytes fallback yields low confidence and is only
// reliable for keyword presence checks.
type TextExtractor struct {
	backends []textBackend
	logger   *zap.Logger
}

// NewTextExtractor builds the default chain: structured PDF, then HTML,
// then raw bytes.
func NewTextExtractor(logger *zap.Logger) *TextExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextExtractor{
		backends: []textBackend{pdfBackend{}, htmlBackend{}},
		logger:   logger,
	}
}

// Extract implements pipeline.TextExtractor.
func (e *TextExtractor) Extract(data []byte) (string, pipeline.Confidence) {
	if len(data) == 0 {
		return "", pipeline.ConfidenceFailed
	}
	for _, b := range e.backends {
		text, err := b.Extract(data)
		if err != nil {
			e.logger.Debug("text backend failed", zap.String("backend", b.Name()), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, pipeline.ConfidenceHigh
		}
	}
	// Common for image-only scans: no structured backend produced text.
	// Scrape printable runs out of the raw bytes rather than failing.
	if text := printableRuns(data); text != "" {
		return text, pipeline.ConfidenceLow
	}
	return "", pipeline.ConfidenceFailed
}

type pdfBackend struct{}

func (pdfBackend) Name() string { return "pdf" }

func (pdfBackend) Extract(data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", fmt.Errorf("not a pdf")
	}
	// The pdf library panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("drain pdf text: %w", err)
	}
	return string(raw), nil
}

type htmlBackend struct{}

func (htmlBackend) Name() string { return "html" }

func (htmlBackend) Extract(data []byte) (string, error) {
	head := bytes.ToLower(data[:min(len(data), 1024)])
	if !bytes.Contains(head, []byte("<html")) && !bytes.Contains(head, []byte("<!doctype html")) {
		return "", fmt.Errorf("not html")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

// printableRuns pulls runs of printable ASCII out of arbitrary bytes,
// the way strings(1) does.
func printableRuns(data []byte) string {
	const minRun = 4
	var out strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= minRun {
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
			out.Write(run)
		}
		run = run[:0]
	}
	for _, b := range data {
		if b >= 0x20 && b < 0x7f {
			run = append(run, b)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(out.String())
}
