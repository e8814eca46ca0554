// Command desabasto is the operator console for the desabasto platform. It
// loads spreadsheet exports from the downloads folder into the database and
// runs account and data maintenance from an interactive menu.
//
// Usage:
//
//	desabasto [-config path] [-env .env] [-metrics-backend datadog|none] [-validate] [-v]
//
// The .env file is loaded before the config so ${VAR} references in the DSN
// resolve. Variables already set in the environment win.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"desabasto/internal/config"
	"desabasto/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "desabasto/internal/storage/all"
)

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr, defaultDeps()))
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	loadEnv     func(path string) error
	loadConfig  func(path string) (config.Config, error)
	openStore   func(ctx context.Context, cfg config.Config) (storage.Store, error)
	initMetrics func(ctx context.Context, cfg config.Config, backend string) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadEnv:     func(path string) error { return godotenv.Load(path) },
		loadConfig:  config.Load,
		openStore:   openStore,
		initMetrics: initMetrics,
	}
}

// runMain parses args, prepares config, metrics and storage, then runs the
// menu until the operator exits. It returns the process exit code: 2 for
// usage errors, 1 for setup failures, 0 otherwise.
func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, deps appDeps) int {
	flags := flag.NewFlagSet("desabasto", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		cfgPath        = flags.String("config", "", "config JSON path; empty uses the embedded default")
		envPath        = flags.String("env", ".env", "dotenv file loaded before the config; a missing file is ignored")
		metricsBackend = flags.String("metrics-backend", "", "metrics backend (datadog, none); overrides METRICS_BACKEND and the config")
		validate       = flags.Bool("validate", false, "validate the configuration and exit")
		verbose        = flags.Bool("v", false, "enable verbose logs")
	)
	if err := flags.Parse(args); err != nil {
		return 2
	}
	logger := log.New(stderr, "", log.LstdFlags)

	if *envPath != "" {
		if err := deps.loadEnv(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Printf("env: %v", err)
		}
	}

	cfg, err := deps.loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Printf("Configuration is invalid: %v", describeConfig(*cfgPath))
		return 1
	}
	if *validate {
		logger.Printf("Configuration is valid: %v", describeConfig(*cfgPath))
		return 0
	}

	// Decide metrics backend: flag → env → config.
	backend := *metricsBackend
	if backend == "" {
		backend = os.Getenv("METRICS_BACKEND")
	}
	if backend == "" {
		backend = cfg.Metrics.Backend
	}
	cleanup, err := deps.initMetrics(ctx, cfg, backend)
	if err != nil {
		fmt.Fprintf(stderr, "metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	st, err := deps.openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "storage: %v\n", err)
		return 1
	}
	defer st.Close()

	var stageLog *log.Logger
	if *verbose {
		stageLog = logger
		logger.Printf("storage: kind=%s tables=%v", cfg.Storage.Kind, cfg.Tables)
	}

	a := newApp(cfg, st, stdin, stdout, stageLog)
	a.audit.SessionStart()
	if err := a.run(ctx); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}

// openStore connects to the configured backend, bounds every remote call by
// runtime.call_timeout and creates tables when auto_create is set.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	raw, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, err
	}
	st := storage.WithCallTimeout(raw, cfg.Runtime.CallTimeout.Std())
	if cfg.Storage.AutoCreate && len(cfg.Storage.Tables) > 0 {
		if err := st.EnsureTables(ctx, cfg.Storage.Tables); err != nil {
			st.Close()
			return nil, fmt.Errorf("ensure tables: %w", err)
		}
	}
	return st, nil
}

func describeConfig(path string) string {
	if path == "" {
		return "(embedded default)"
	}
	return path
}
