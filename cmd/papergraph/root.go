package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/papergraph"
)

var version = "dev"

type app struct {
	configPath string
	cfg        papergraph.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "papergraph",
		Short:         "Build a knowledge graph of concepts and relations from research papers.",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (defaults plus environment when empty)")

	root.AddCommand(
		newIngestCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newStatsCmd(a),
		newBackfillCmd(a),
	)
	return root
}

// init loads .env, the config file and environment overrides, then installs
// the default logger.
func (a *app) init(logOut io.Writer) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := papergraph.DefaultConfig()
	if a.configPath != "" {
		var err error
		if cfg, err = papergraph.LoadConfig(a.configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(logOut, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func (a *app) engine(ctx context.Context) (*papergraph.Engine, error) {
	e, err := papergraph.New(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

func newLogger(w io.Writer, cfg papergraph.LogConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log level %q", papergraph.ErrInvalidConfig, s)
}
