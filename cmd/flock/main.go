package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/flock/pkg/config"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/manager"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/store"
	"github.com/cuemby/flock/pkg/types"
	"github.com/cuemby/flock/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flock",
	Short: "Flock - distributed task dispatch over a shared file system",
	Long: `Flock dispatches a finite list of job inputs from one manager to a
dynamic fleet of workers. Manager and workers never open a network
connection to each other; they coordinate entirely through JSON documents
in a shared directory, typically on a network file system.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Flock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Directory containing flock.yaml")
	rootCmd.PersistentFlags().String("base-dir", "", "Shared directory for this run")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address for the Prometheus /metrics listener (disabled if empty)")

	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig merges flock.yaml, FLOCK_* env vars, and the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	// Flags override the file/env layers. Load validates base_dir, so
	// --base-dir is passed in as FLOCK_BASE_DIR before Load; the other
	// flags are applied after it.
	if baseDir, _ := cmd.Flags().GetString("base-dir"); baseDir != "" {
		os.Setenv("FLOCK_BASE_DIR", baseDir)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if jsonOut, _ := cmd.Flags().GetBool("log-json"); jsonOut {
		cfg.LogJSON = true
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger := log.WithComponent("metrics")
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	return cfg, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the manager over a job list",
	Long: `Run the manager for one job list. The jobs file is a JSON array; each
element becomes one opaque job input. Restarting the manager against the
same base directory resumes the run: terminal jobs are adopted as-is and
only still-unassigned jobs are handed out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		jobsFile, _ := cmd.Flags().GetString("jobs")
		if jobsFile == "" {
			return fmt.Errorf("--jobs is required")
		}
		data, err := os.ReadFile(jobsFile)
		if err != nil {
			return fmt.Errorf("failed to read jobs file: %w", err)
		}
		var jobList []any
		if err := json.Unmarshal(data, &jobList); err != nil {
			return fmt.Errorf("jobs file must be a JSON array: %w", err)
		}

		mgr, err := manager.New(manager.Config{
			BaseDir:          cfg.BaseDir,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
			ReaderMaxRetries: cfg.ReaderMaxRetries,
			ReaderBackoff:    cfg.ReaderBackoff,
		}, jobList)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		return mgr.Run(ctx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker executing an external command per job",
	Long: `Run a worker whose job function is an external command. Occurrences of
{input} in the command arguments are replaced with the job input; without a
placeholder the input is appended as the final argument. The command's exit
status maps to the job status: zero is success, non-zero is failed, and a
kill by the per-job timeout is crashed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return fmt.Errorf("a command to execute per job is required, e.g.: flock worker -- ./process.sh {input}")
		}

		w, err := worker.New(worker.Config{
			BaseDir:          cfg.BaseDir,
			NodeID:           cfg.NodeID,
			Timeout:          cfg.Timeout,
			WaitManager:      cfg.WaitManager,
			MaxJob:           cfg.MaxJob,
			MaxWorkTime:      cfg.MaxWorkTime,
			HeartbeatPeriod:  cfg.HeartbeatPeriod,
			ReaderMaxRetries: cfg.ReaderMaxRetries,
			ReaderBackoff:    cfg.ReaderBackoff,
		}, worker.Exec(args[0], args[1:]...))
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print an aggregate report of a run directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")

		// Status is one-shot; do not sit in the reader's full retry
		// budget for every torn document.
		reader := store.NewReader(store.NewFS(), 3, cfg.ReaderBackoff)
		report, err := manager.BuildReport(reader, types.NewLayout(cfg.BaseDir), cfg.HeartbeatTimeout)
		if err != nil {
			return err
		}

		var rendered []byte
		switch output {
		case "yaml":
			rendered, err = yaml.Marshal(report)
		default:
			rendered, err = json.MarshalIndent(report, "", "  ")
		}
		if err != nil {
			return err
		}
		fmt.Println(string(rendered))
		return nil
	},
}

func init() {
	managerCmd.Flags().String("jobs", "", "Path to a JSON array of job inputs")

	statusCmd.Flags().String("output", "json", "Output format (json, yaml)")
}
