package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/veriface/internal/attendance"
	"github.com/andresmejia3/veriface/internal/config"
	"github.com/andresmejia3/veriface/internal/logger"
	"github.com/andresmejia3/veriface/internal/metrics"
	"github.com/andresmejia3/veriface/internal/service"
	"github.com/andresmejia3/veriface/internal/utils"
	"github.com/andresmejia3/veriface/internal/worker"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds flags that override the loaded configuration.
type Options struct {
	ConfigPath  string
	DatabaseURL string
	Backend     string
	Profile     string
	LogLevel    string
}

var (
	// DB is the identity store shared by subcommands
	DB Catalog
	// Cfg is the loaded configuration
	Cfg *config.Config
	// Log is the process logger
	Log logger.Logger
	// Metrics collects outcome counters for this run
	Metrics *metrics.Recorder

	rootOpts Options
	closeDB  func() error
)

// Version is the application version.
const Version = "0.1.0"

// noStore marks commands that never touch the identity store.
const noStore = "no-store"

var rootCmd = &cobra.Command{
	Use:     "veriface",
	Short:   "Face descriptor enrollment gate and identity matcher",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()

		cfg, err := config.Load(cmd.Context(), rootOpts.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlags(cmd, cfg, rootOpts)
		if err := cfg.Validate(); err != nil {
			return err
		}
		Cfg = cfg

		if Log, err = logger.New(os.Stderr, cfg.LogLevel); err != nil {
			return err
		}
		Metrics = metrics.NewRecorder()

		if cmd.Annotations[noStore] != "" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, closeDB, err = openCatalog(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
		}
		return nil
	},
}

// applyFlags lets explicitly set persistent flags win over file and env.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts Options) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabaseURL = opts.DatabaseURL
	}
	if flags.Changed("backend") {
		cfg.Backend = opts.Backend
	}
	if flags.Changed("profile") {
		cfg.Profile = opts.Profile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
}

// newService wires the store, profile, logging, metrics, and attendance hook.
func newService(emb worker.Embedder, recordAttendance bool) (*service.Service, error) {
	profile, err := Cfg.BiometricProfile()
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(Log),
		service.WithMetrics(Metrics),
		service.WithWorkers(Cfg.Workers),
	}
	if emb != nil {
		opts = append(opts, service.WithEmbedder(emb))
	}
	if recordAttendance {
		loc, err := Cfg.Location()
		if err != nil {
			return nil, err
		}
		hour, minute, err := Cfg.Cutoff()
		if err != nil {
			return nil, err
		}
		policy, err := attendance.NewCutoffPolicy(loc, hour, minute)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithMatchHook(policy.Hook(DB)))
	}
	return service.New(DB, profile, opts...)
}

// startEmbedder launches the Python embedding workers.
func startEmbedder(ctx context.Context) (*worker.Pool, error) {
	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	return worker.NewPool(ctx, Cfg.EmbedWorkers, worker.Config{
		PythonBin:          Cfg.PythonBin,
		Script:             Cfg.WorkerScript,
		DetectionThreshold: Cfg.DetectionThreshold,
		ReadTimeout:        Cfg.EmbedTimeout,
		MaxImageSize:       Cfg.MaxImageSize,
	})
}

// reportedError marks a failure whose error box was already printed.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// fail prints the error box, with worker crash logs when s has any, and
// returns err marked as reported.
func fail(title string, err error, s *utils.SafeCommand) error {
	utils.ShowError(title, err, s)
	return reportedError{err}
}

// finish releases the store and flushes metrics. It runs whether or not
// the command succeeded, so rejected attempts are still counted.
func finish() {
	if closeDB != nil {
		if err := closeDB(); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to close store: %v\n", err)
		}
		closeDB = nil
		DB = nil
	}
	if Cfg != nil && Cfg.MetricsFile != "" {
		if err := Metrics.WriteTextfile(Cfg.MetricsFile); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
		}
	}
}

// run executes the command tree for args.
func run(ctx context.Context, args []string) error {
	defer finish()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		var shown reportedError
		if errors.As(err, &shown) {
			os.Exit(1)
		}
		utils.Die("Command failed", err, nil)
	}
}

func init() {
	// Failures are reported once, by fail or by Execute.
	rootCmd.SilenceErrors = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootOpts.ConfigPath, "config", "", "YAML config file (default: $VERIFACE_CONFIG)")
	flags.StringVar(&rootOpts.DatabaseURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/veriface)")
	flags.StringVar(&rootOpts.Backend, "backend", "", "Identity store: postgres, sqlite or memory")
	flags.StringVar(&rootOpts.Profile, "profile", "", "Matching profile (v1, v0)")
	flags.StringVar(&rootOpts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
}
