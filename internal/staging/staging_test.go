// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newStager(t *testing.T) *Stager {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStage_WritesAndReleases(t *testing.T) {
	s := newStager(t)

	f, err := s.Stage(context.Background(), "req-1", "note.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.Dir(), "extract-req-1.txt"), f.Path)
	assert.Equal(t, "note.txt", f.Name)
	assert.Equal(t, ".txt", f.Ext)
	assert.Equal(t, int64(5), f.Size)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	f.Release()
	assert.NoFileExists(t, f.Path)
	assert.Empty(t, listDir(t, s.Dir()))

	// Second release is a no-op.
	f.Release()
}

func TestStage_GeneratesUniqueNames(t *testing.T) {
	s := newStager(t)

	a, err := s.Stage(context.Background(), "", "report.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	defer a.Release()
	b, err := s.Stage(context.Background(), "", "report.pdf", strings.NewReader("b"))
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Path, b.Path)
	assert.Len(t, listDir(t, s.Dir()), 2)
}

func TestStage_DuplicateIDFails(t *testing.T) {
	s := newStager(t)

	f, err := s.Stage(context.Background(), "same", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	defer f.Release()

	_, err = s.Stage(context.Background(), "same", "b.txt", strings.NewReader("b"))
	assert.Error(t, err)
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), r.after)
	r.after -= n
	return n, nil
}

func TestStage_ReadErrorRemovesPartialFile(t *testing.T) {
	s := newStager(t)

	f, err := s.Stage(context.Background(), "broken", "big.bin", &failingReader{after: 16})
	require.Error(t, err)
	assert.Nil(t, f)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, listDir(t, s.Dir()))
}

func TestStage_CancelledContext(t *testing.T) {
	s := newStager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stage(ctx, "cancel", "a.txt", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, s.Dir()))
}

func TestRelease_Nil(t *testing.T) {
	var f *File
	assert.NotPanics(t, f.Release)
}

func TestRelease_RemovalFailureIsLogged(t *testing.T) {
	// A non-empty directory cannot be removed with os.Remove.
	dir := filepath.Join(t.TempDir(), "extract-"+uuid.NewString()+".txt")
	require.NoError(t, os.Mkdir(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o600))

	core, logs := observer.New(zap.WarnLevel)
	f := &File{Path: dir, log: zap.New(core)}

	assert.NotPanics(t, f.Release)
	assert.NotPanics(t, f.Release)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, "removing staged file", entry.Message)
	assert.Equal(t, dir, entry.ContextMap()["path"])
	assert.DirExists(t, dir)
}

func TestSweep(t *testing.T) {
	s := newStager(t)
	old := filepath.Join(s.Dir(), "extract-"+uuid.NewString()+".pdf")
	oldNoExt := filepath.Join(s.Dir(), "extract-"+uuid.NewString())
	fresh := filepath.Join(s.Dir(), "extract-"+uuid.NewString()+".pdf")
	foreignPrefixed := filepath.Join(s.Dir(), "extract-old.pdf")
	foreign := filepath.Join(s.Dir(), "unrelated.pdf")
	for _, p := range []string{old, oldNoExt, fresh, foreignPrefixed, foreign} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{old, oldNoExt, foreignPrefixed, foreign} {
		require.NoError(t, os.Chtimes(p, past, past))
	}

	n, err := s.Sweep(time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.NoFileExists(t, old)
	assert.NoFileExists(t, oldNoExt)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreignPrefixed, "files the stager did not create survive")
	assert.FileExists(t, foreign)
}

func TestNew_DefaultDirIsPrivateSubdirectory(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	shared := filepath.Join(tmp, "extract-quarterly-report.pdf")
	require.NoError(t, os.WriteFile(shared, []byte("x"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(shared, past, past))

	s, err := New("", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "extract-server"), s.Dir())
	assert.DirExists(t, s.Dir())

	n, err := s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, shared)
}

func TestOwnedName(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name string
		want bool
	}{
		{"extract-" + id + ".pdf", true},
		{"extract-" + id, true},
		{"extract-" + strings.ToUpper(id) + ".txt", true},
		{"extract-old.pdf", false},
		{"extract-quarterly-report.pdf", false},
		{"extract-" + strings.ReplaceAll(id, "-", "") + ".pdf", false},
		{"extract-{" + id + "}.pdf", false},
		{id + ".pdf", false},
		{"other-" + id + ".pdf", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ownedName(tt.name), "ownedName(%q)", tt.name)
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"note.txt", "note.txt"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\report.docx`, "report.docx"},
		{"  spaced.md ", "spaced.md"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseName(tt.in), "BaseName(%q)", tt.in)
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"note.TXT", ".txt"},
		{"archive.tar.gz", ".gz"},
		{"noext", ""},
		{"trailing.", ""},
		{"weird.p$f", ""},
		{"long.abcdefghijkl", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ext(tt.in), "Ext(%q)", tt.in)
	}
}
