// Package cmd is the process entry point shared by bots on the core: env
// files, config loading, bootstrap, signal handling and teardown.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/m3rciful/funnelbot/core/buildinfo"
	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/logger"
	coretelegram "github.com/m3rciful/funnelbot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
// Apps that also implement io.Closer are closed after the bot stops.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// Args are the command line arguments without the program name.
	// Supported: -config PATH and -version.
	Args []string
	// Stdout receives -version output; os.Stdout when nil.
	Stdout io.Writer

	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded before the config when present. Variables that
	// are already set win.
	EnvFiles []string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals cancel the run; SIGINT and SIGTERM when empty.
	Signals []os.Signal
}

// Run loads configuration, bootstraps the app and blocks until the bot
// stops. Teardown errors are joined into the returned error.
func Run(opts Options) (err error) {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}

	flagPath, showVersion, err := parseArgs(opts.Args)
	if err != nil {
		return err
	}
	if showVersion {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		_, err := fmt.Fprintln(out, buildinfo.String())
		return err
	}

	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return err
	}
	cfgPath := resolveConfigPath(flagPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	if cfgPath == "" {
		return errors.New("cmd: no config path; pass -config or set the config env var")
	}

	slog.Info("loading config", slog.String("path", cfgPath))
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	startedAt := time.Now()
	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if closer, ok := application.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("cmd: close app: %w", cerr))
			}
		}
		if lerr := shutdownLogger(); lerr != nil {
			err = errors.Join(err, fmt.Errorf("cmd: shutdown logger: %w", lerr))
		}
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	withLifecycleLogs(&runOpts, startedAt)

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func parseArgs(args []string) (path string, version bool, err error) {
	flags := flag.NewFlagSet("bot", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&path, "config", "", "path to the YAML config")
	flags.BoolVar(&version, "version", false, "print the build version and exit")
	if err := flags.Parse(args); err != nil {
		return "", false, fmt.Errorf("cmd: %w", err)
	}
	return path, version, nil
}

// resolveConfigPath prefers the flag, then the env var (CONFIG_PATH when
// unnamed), then the default.
func resolveConfigPath(flagPath, envVar, fallback string) string {
	if flagPath != "" {
		return flagPath
	}
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := os.Getenv(envVar); p != "" {
		return p
	}
	return fallback
}

// withLifecycleLogs wraps the start and stop hooks with ready and shutdown
// events.
func withLifecycleLogs(opts *coretelegram.RunOptions, startedAt time.Time) {
	start, stop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if start != nil {
			if err := start(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, logger.CompApp, "ready",
			slog.String("status", "ok"),
			slog.Duration("startup_duration", time.Since(startedAt)),
		)
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, logger.CompApp, "shutdown")
		if stop != nil {
			return stop(ctx, rt)
		}
		return nil
	}
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		err := godotenv.Load(f)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return fmt.Errorf("cmd: load %s: %w", f, err)
		}
		slog.Info("loaded env file", slog.String("path", f))
	}
	return nil
}
