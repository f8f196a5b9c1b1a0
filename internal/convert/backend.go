// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/extract-server/internal/container"
	"github.com/pdiddy/extract-server/pkg/types"
)

// detectRuntime is replaced in tests.
var detectRuntime = container.DetectRuntime

// New builds the converter selected by cfg.Backend. The "auto" backend chains
// the native converter, markitdown when a container runtime and the image
// are present, and the remote service when a URL is configured.
func New(ctx context.Context, cfg types.ConversionConfig, apiKey string, log *zap.Logger) (Converter, error) {
	switch cfg.Backend {
	case types.BackendNative:
		return NewNativeConverter(), nil

	case types.BackendMarkitdown:
		rt, err := detectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		return NewMarkitdownConverter(ctx, rt, cfg.Image)

	case types.BackendService:
		if cfg.ServiceURL == "" {
			return nil, errors.New("conversion.service_url is required for the service backend")
		}
		return NewServiceConverter(cfg.ServiceURL, apiKey, nil, cfg.MaxRetries), nil

	case types.BackendAuto, "":
		backends := []Converter{NewNativeConverter()}

		if rt, err := detectRuntime(ctx); err != nil {
			log.Info("markitdown backend disabled", zap.Error(err))
		} else if m, err := NewMarkitdownConverter(ctx, rt, cfg.Image); err != nil {
			log.Info("markitdown backend disabled", zap.Error(err))
		} else {
			backends = append(backends, m)
		}

		if cfg.ServiceURL != "" {
			backends = append(backends, NewServiceConverter(cfg.ServiceURL, apiKey, nil, cfg.MaxRetries))
		}

		chain := NewChain(backends...)
		log.Info("conversion backends ready", zap.String("backend", chain.Name()))
		return chain, nil

	default:
		return nil, fmt.Errorf("unknown conversion backend %q (want auto, native, markitdown, or service)", cfg.Backend)
	}
}
