// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/extract-server/internal/container"
	"github.com/pdiddy/extract-server/pkg/types"
)

// stubRuntime swaps detectRuntime for the duration of a test.
func stubRuntime(t *testing.T, rt container.Runtime, err error) {
	t.Helper()
	orig := detectRuntime
	detectRuntime = func(context.Context) (container.Runtime, error) { return rt, err }
	t.Cleanup(func() { detectRuntime = orig })
}

func TestNew(t *testing.T) {
	noRuntime := errors.New("no container runtime found")

	tests := []struct {
		name     string
		cfg      types.ConversionConfig
		rt       container.Runtime
		rtErr    error
		wantName string
		wantErr  string
	}{
		{
			name:     "native",
			cfg:      types.ConversionConfig{Backend: types.BackendNative},
			rtErr:    noRuntime,
			wantName: "native",
		},
		{
			name:     "markitdown",
			cfg:      types.ConversionConfig{Backend: types.BackendMarkitdown},
			rt:       &fakeRuntime{},
			wantName: "markitdown",
		},
		{
			name:    "markitdown without runtime",
			cfg:     types.ConversionConfig{Backend: types.BackendMarkitdown},
			rtErr:   noRuntime,
			wantErr: "no container runtime",
		},
		{
			name:     "service",
			cfg:      types.ConversionConfig{Backend: types.BackendService, ServiceURL: "http://convert.local"},
			rtErr:    noRuntime,
			wantName: "service",
		},
		{
			name:    "service without url",
			cfg:     types.ConversionConfig{Backend: types.BackendService},
			rtErr:   noRuntime,
			wantErr: "service_url is required",
		},
		{
			name:     "auto without runtime",
			cfg:      types.ConversionConfig{Backend: types.BackendAuto},
			rtErr:    noRuntime,
			wantName: "chain(native)",
		},
		{
			name:     "auto with runtime and service",
			cfg:      types.ConversionConfig{ServiceURL: "http://convert.local"},
			rt:       &fakeRuntime{},
			wantName: "chain(native,markitdown,service)",
		},
		{
			name:     "auto with missing image",
			cfg:      types.ConversionConfig{Backend: types.BackendAuto},
			rt:       &fakeRuntime{imageErr: errors.New("no such image")},
			wantName: "chain(native)",
		},
		{
			name:    "unknown",
			cfg:     types.ConversionConfig{Backend: "pandoc"},
			rtErr:   noRuntime,
			wantErr: `unknown conversion backend "pandoc"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubRuntime(t, tt.rt, tt.rtErr)

			conv, err := New(context.Background(), tt.cfg, "", zap.NewNop())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, conv.Name())
		})
	}
}

func TestNew_AutoRoutesByFormat(t *testing.T) {
	stubRuntime(t, nil, errors.New("no container runtime found"))

	conv, err := New(context.Background(), types.ConversionConfig{}, "", zap.NewNop())
	require.NoError(t, err)

	doc, err := conv.Convert(context.Background(), writeInput(t, "note.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.ExportMarkdown())

	_, err = conv.Convert(context.Background(), writeInput(t, "slides.pptx", "zip"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
