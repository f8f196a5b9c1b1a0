// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns files on disk into Markdown documents through
// pluggable backends: an in-process converter for text formats, the
// markitdown container, and a remote conversion service.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/extract-server/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned when no backend accepts a file's extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyOutput is returned when a backend produced no Markdown.
	ErrEmptyOutput = errors.New("converter produced empty output")
)

// Converter transforms a file into a Markdown document.
type Converter interface {
	// Name identifies the backend in logs and audit records.
	Name() string

	// Accepts reports whether the backend handles files with the given
	// format (lowercase extension without the dot, possibly empty).
	Accepts(format string) bool

	// Convert reads the file at path and returns the converted document.
	Convert(ctx context.Context, path string) (*types.Document, error)
}

// FormatOf returns the lowercase extension of path without the dot.
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// newDocument fills the fields every backend shares.
func newDocument(path, backend, markdown string) *types.Document {
	return &types.Document{
		Source:   filepath.Base(path),
		Format:   FormatOf(path),
		Title:    Title(markdown),
		Backend:  backend,
		Markdown: markdown,
	}
}

// Chain dispatches each file to the first backend that accepts its format.
// A failure from that backend is final; later backends are not tried.
type Chain struct {
	backends []Converter
}

// NewChain returns a Chain over backends in priority order.
func NewChain(backends ...Converter) *Chain {
	return &Chain{backends: backends}
}

// Name lists the chained backends.
func (c *Chain) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Accepts reports whether any backend accepts format.
func (c *Chain) Accepts(format string) bool {
	return c.pick(format) != nil
}

// For returns the backend that handles format, or nil when none accepts it.
func (c *Chain) For(format string) Converter {
	return c.pick(format)
}

func (c *Chain) pick(format string) Converter {
	for _, b := range c.backends {
		if b.Accepts(format) {
			return b
		}
	}
	return nil
}

// Convert hands path to the first accepting backend.
func (c *Chain) Convert(ctx context.Context, path string) (*types.Document, error) {
	format := FormatOf(path)
	b := c.pick(format)
	if b == nil {
		if format == "" {
			return nil, fmt.Errorf("%w: file has no extension", ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, format)
	}
	return b.Convert(ctx, path)
}

// WithTimeout returns a context bounded by d. A zero d only adds cancellation.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// BatchResult holds the outcome of converting several local files.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of files processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any file failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// BatchOptions controls ConvertFiles output.
type BatchOptions struct {
	// OutDir receives one <base>.md per input. Empty hands Markdown to the Reporter.
	OutDir string
	// Frontmatter prepends YAML metadata to each written file.
	Frontmatter bool
	// Force overwrites existing output files instead of skipping them.
	Force bool
	// Timeout bounds each conversion. Zero means none.
	Timeout time.Duration
}

// Reporter receives per-file status lines and, when OutDir is empty, the
// converted Markdown itself.
type Reporter interface {
	Status(format string, args ...any)
	Markdown(doc *types.Document)
}

// ConvertFiles converts each path in turn and returns a summary. Files whose
// output already exists are skipped unless opts.Force is set.
func ConvertFiles(ctx context.Context, c Converter, paths []string, opts BatchOptions, rep Reporter) BatchResult {
	var result BatchResult
	for _, p := range paths {
		switch convertFile(ctx, c, p, opts, rep) {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionSkipped:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}
	}
	rep.Status("Batch summary: %d converted, %d skipped, %d failed (total: %d)",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result
}

func convertFile(ctx context.Context, c Converter, path string, opts BatchOptions, rep Reporter) types.ConversionStatus {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var mdPath string
	if opts.OutDir != "" {
		mdPath = filepath.Join(opts.OutDir, base+".md")
		if _, err := os.Stat(mdPath); err == nil && !opts.Force {
			rep.Status("skipped:   %s (already exists)", base)
			return types.ConversionSkipped
		}
	}

	convCtx, cancel := WithTimeout(ctx, opts.Timeout)
	doc, err := c.Convert(convCtx, path)
	cancel()
	if err != nil {
		rep.Status("failed:    %s (%v)", base, err)
		return types.ConversionFailed
	}

	if mdPath == "" {
		rep.Markdown(doc)
		rep.Status("converted: %s (%s)", base, doc.Backend)
		return types.ConversionDone
	}

	content := doc.ExportMarkdown()
	if opts.Frontmatter {
		content, err = addFrontmatter(doc, content)
		if err != nil {
			rep.Status("failed:    %s (%v)", base, err)
			return types.ConversionFailed
		}
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		rep.Status("failed:    %s (%v)", base, err)
		return types.ConversionFailed
	}
	if err := os.WriteFile(mdPath, []byte(content), 0o644); err != nil {
		rep.Status("failed:    %s (%v)", base, err)
		return types.ConversionFailed
	}

	rep.Status("converted: %s (%s)", base, doc.Backend)
	return types.ConversionDone
}

type frontmatter struct {
	Source      string `yaml:"source"`
	Title       string `yaml:"title,omitempty"`
	Backend     string `yaml:"backend"`
	ConvertedAt string `yaml:"converted_at"`
}

// addFrontmatter prepends YAML frontmatter to the converted Markdown content.
func addFrontmatter(doc *types.Document, body string) (string, error) {
	meta, err := yaml.Marshal(frontmatter{
		Source:      doc.Source,
		Title:       doc.Title,
		Backend:     doc.Backend,
		ConvertedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}
