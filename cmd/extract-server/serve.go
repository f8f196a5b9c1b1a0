// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/extract-server/internal/audit"
	"github.com/pdiddy/extract-server/internal/convert"
	"github.com/pdiddy/extract-server/internal/secrets"
	"github.com/pdiddy/extract-server/internal/server"
	"github.com/pdiddy/extract-server/internal/staging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serve exposes the upload page on GET / and the conversion endpoint on
POST /extract_markdown. Uploads are staged under staging.dir, converted by the
configured backend, and removed before the response is sent.

The server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey := loadedSecrets.Or(secrets.KeyConversionService, cfg.Conversion.ServiceAPIKey)
	conv, err := convert.New(ctx, cfg.Conversion, apiKey, logger)
	if err != nil {
		return err
	}

	stager, err := staging.New(cfg.Staging.Dir, logger)
	if err != nil {
		return err
	}

	var rec audit.Recorder
	if cfg.Audit.Path != "" {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		rec = store
		logger.Info("audit log enabled", zap.String("path", cfg.Audit.Path))
	}

	srv := server.New(cfg, server.Deps{
		Converter: conv,
		Stager:    stager,
		Audit:     rec,
		Logger:    logger,
	})
	return srv.Run(ctx)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().Int64("max-upload-bytes", 0, "reject uploads larger than this many bytes (0 = unlimited)")
	serveCmd.Flags().String("audit-path", "", "SQLite audit log path (empty disables auditing)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.max_upload_bytes", serveCmd.Flags().Lookup("max-upload-bytes"))
	_ = viper.BindPFlag("audit.path", serveCmd.Flags().Lookup("audit-path"))

	rootCmd.AddCommand(serveCmd)
}
