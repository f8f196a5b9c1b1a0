// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/extract-server/internal/container"
	"github.com/pdiddy/extract-server/pkg/types"
)

const (
	backendMarkitdown = "markitdown"

	// DefaultMarkitdownImage is used when no image is configured.
	DefaultMarkitdownImage = "markitdown:latest"
)

// markitdownFormats lists extensions markitdown reads from stdin given an
// extension hint.
var markitdownFormats = map[string]bool{
	"pdf": true, "docx": true, "pptx": true, "xlsx": true, "xls": true,
	"doc": true, "ppt": true, "epub": true, "msg": true, "ipynb": true,
	"html": true, "htm": true, "xml": true, "rss": true, "atom": true,
	"csv": true, "json": true, "txt": true, "md": true, "zip": true,
	"jpg": true, "jpeg": true, "png": true, "wav": true, "mp3": true,
}

// MarkitdownConverter converts documents by piping them through the markitdown
// container image. It depends on a container.Runtime (docker or podman)
// injected at construction time.
type MarkitdownConverter struct {
	runtime container.Runtime
	image   string
}

// NewMarkitdownConverter creates a converter that uses the given container
// runtime to run image. It verifies that the image exists locally before
// returning.
func NewMarkitdownConverter(ctx context.Context, rt container.Runtime, image string) (*MarkitdownConverter, error) {
	if image == "" {
		image = DefaultMarkitdownImage
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &MarkitdownConverter{runtime: rt, image: image}, nil
}

// Name returns "markitdown".
func (m *MarkitdownConverter) Name() string { return backendMarkitdown }

// Accepts reports whether markitdown has a reader for format.
func (m *MarkitdownConverter) Accepts(format string) bool {
	return markitdownFormats[format]
}

// Convert pipes the file at path through the markitdown container and returns
// the resulting Markdown text.
func (m *MarkitdownConverter) Convert(ctx context.Context, path string) (*types.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var args []string
	if format := FormatOf(path); format != "" {
		args = []string{"-x", format}
	}

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, args, f, &out); err != nil {
		return nil, fmt.Errorf("converting with markitdown: %w", err)
	}

	if len(bytes.TrimSpace(out.Bytes())) == 0 {
		return nil, fmt.Errorf("markitdown: %w", ErrEmptyOutput)
	}

	return newDocument(path, backendMarkitdown, out.String()), nil
}
