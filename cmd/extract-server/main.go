// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the extract-server CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/extract-server/internal/logging"
	"github.com/pdiddy/extract-server/internal/secrets"
	"github.com/pdiddy/extract-server/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "EXTRACT_SERVER"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets

	// logger is built from log.* settings before any subcommand runs.
	logger = zap.NewNop()
)

// rootCmd is the base command for the extract-server CLI.
var rootCmd = &cobra.Command{
	Use:   "extract-server",
	Short: "Convert uploaded documents to Markdown over HTTP",
	Long: `extract-server accepts a single uploaded file, hands it to a conversion
backend, and returns the extracted content as Markdown in JSON. A small
browser page renders the result.

Use "serve" to run the HTTP server and "convert" to run the same conversion
path on local files. "history" lists recent conversions from the audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		logger = log

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", s.Keys()))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./extract-server.yaml or ~/.config/extract-server/config.yaml)")
	pf.String("backend", "", "conversion backend: auto, native, markitdown, or service")
	pf.String("log-level", "", "log level: debug, info, warn, or error")
	pf.String("log-format", "", "log format: json or console")

	_ = viper.BindPFlag("conversion.backend", pf.Lookup("backend"))
	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", pf.Lookup("log-format"))
}

func initConfig() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("extract-server")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "extract-server"))
		}
	}

	configureEnv(viper.GetViper())
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", 0)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("staging.dir", "")
	v.SetDefault("staging.sweep_age", time.Hour)

	v.SetDefault("conversion.backend", string(types.BackendAuto))
	v.SetDefault("conversion.timeout", time.Duration(0))
	v.SetDefault("conversion.image", "")
	v.SetDefault("conversion.service_url", "")
	v.SetDefault("conversion.service_api_key", "")
	v.SetDefault("conversion.max_retries", 3)

	v.SetDefault("audit.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// loadConfig decodes the effective configuration from the global viper.
func loadConfig() (types.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
