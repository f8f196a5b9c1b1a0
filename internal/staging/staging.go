// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package staging writes uploaded files to uniquely named temporary paths so
// path-based converters can read them, and removes them when the request ends.
//
// A staged file belongs to exactly one request. Callers acquire it with
// Stage and must defer Release immediately after a successful Stage.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// filePrefix marks files owned by the stager. Sweep only touches names of
// the form extract-<uuid><ext>.
const filePrefix = "extract-"

// defaultDir is the subdirectory of the OS temp directory used when no
// staging directory is configured.
const defaultDir = "extract-server"

// maxExtLen bounds the extension copied from client-supplied filenames.
const maxExtLen = 10

// Stager creates staged files under one directory.
type Stager struct {
	dir string
	log *zap.Logger
}

// New returns a Stager rooted at dir, creating it if needed. An empty dir
// selects an extract-server subdirectory of the OS temp directory.
func New(dir string, log *zap.Logger) (*Stager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), defaultDir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging directory %s: %w", dir, err)
	}
	return &Stager{dir: dir, log: log}, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// File is one staged upload.
type File struct {
	// Path is the absolute location of the staged bytes.
	Path string
	// Name is the client-supplied filename, reduced to its base name.
	Name string
	// Ext is the lowercase extension including the dot, or "".
	Ext string
	// Size is the number of bytes written.
	Size int64

	log  *zap.Logger
	once sync.Once
}

// Stage copies r into a new file named after id (a fresh UUID when id is
// empty) and the extension of filename. On any error the partial file is
// removed before Stage returns, so a nil *File means nothing is on disk.
func (s *Stager) Stage(ctx context.Context, id, filename string, r io.Reader) (*File, error) {
	if id == "" {
		id = uuid.NewString()
	}
	name := BaseName(filename)
	ext := Ext(name)
	path := filepath.Join(s.dir, filePrefix+id+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating staged file: %w", err)
	}

	n, copyErr := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("removing partial staged file", zap.String("path", path), zap.Error(rmErr))
		}
		if copyErr != nil {
			return nil, fmt.Errorf("writing staged file: %w", copyErr)
		}
		return nil, fmt.Errorf("closing staged file: %w", closeErr)
	}

	s.log.Debug("staged upload",
		zap.String("path", path),
		zap.String("filename", name),
		zap.String("size", humanize.Bytes(uint64(n))),
	)

	return &File{Path: path, Name: name, Ext: ext, Size: n, log: s.log}, nil
}

// Release removes the staged file. It is safe to call more than once and on
// a nil *File. A failed removal is logged and otherwise ignored; the next
// Sweep picks the file up.
func (f *File) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			f.log.Warn("removing staged file", zap.String("path", f.Path), zap.Error(err))
		}
	})
}

// Sweep removes staged files older than age left behind by a crashed
// process. Only extract-<uuid><ext> files are considered, so other files
// sharing the directory are left alone. It returns the number of files
// removed.
func (s *Stager) Sweep(age time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("listing staged files: %w", err)
	}

	cutoff := time.Now().Add(-age)
	removed := 0
	for _, path := range matches {
		if !ownedName(filepath.Base(path)) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.log.Warn("sweeping staged file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// ownedName reports whether name has the shape Stage gives files staged
// under a generated id.
func ownedName(name string) bool {
	stem, ok := strings.CutPrefix(name, filePrefix)
	if !ok {
		return false
	}
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	if len(stem) != len(uuid.Nil.String()) {
		return false
	}
	_, err := uuid.Parse(stem)
	return err == nil
}

// BaseName reduces a client-supplied filename to its final element. Both
// slash styles are treated as separators since browsers on Windows may send
// full paths.
func BaseName(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, "/")
	if i := strings.LastIndexByte(filename, '/'); i >= 0 {
		filename = filename[i+1:]
	}
	return strings.TrimSpace(filename)
}

// Ext returns the lowercase extension of name including the dot. Extensions
// that are too long or contain anything besides ASCII letters and digits
// are dropped so they cannot influence the staged path.
func Ext(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
