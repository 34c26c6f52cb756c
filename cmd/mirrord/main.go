package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirrorbox/mirrord/internal/config"
	"github.com/mirrorbox/mirrord/internal/sync"
	"github.com/mirrorbox/mirrord/internal/utils"
	"github.com/mirrorbox/mirrord/internal/version"
)

const configFileName = "config"

var (
	home, _ = os.UserHomeDir()

	errPassFailures = errors.New("pass finished with failures")
)

var rootCmd = &cobra.Command{
	Use:     "mirrord",
	Short:   "One-way periodic directory mirroring",
	Long:    "mirrord keeps a replica directory identical to a source directory:\nafter each pass the replica contains exactly the source's files and\nsubdirectories, verified by content digest, and nothing else.",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Path:          viper.ConfigFileUsed(),
			SourceDir:     viper.GetString("source_dir"),
			ReplicaDir:    viper.GetString("replica_dir"),
			Interval:      viper.GetInt("interval"),
			LogFile:       viper.GetString("log_file"),
			MaxWorkers:    viper.GetInt("max_workers"),
			SymlinkPolicy: config.SymlinkPolicy(viper.GetString("symlink_policy")),
			Watch:         viper.GetBool("watch"),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// config is good, errors past this point are runtime failures
		cmd.SilenceUsage = true

		if err := setupLogging(cfg.LogFile); err != nil {
			return err
		}
		showHeader()

		once, _ := cmd.Flags().GetBool("once")
		if once {
			return runOnce(cmd.Context(), cfg)
		}

		mgr, err := sync.NewManager(cfg)
		if err != nil {
			return err
		}
		defer slog.Info("bye!")
		return mgr.Start(cmd.Context())
	},
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	mgr, err := sync.NewManager(cfg)
	if err != nil {
		return err
	}

	result, err := mgr.RunOnce(ctx)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d paths", errPassFailures,
			result.Failed, result.Failed+result.Created+result.Updated+result.Deleted+result.Unchanged)
	}
	return nil
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("source", "s", "", "Source directory to mirror from")
	rootCmd.Flags().StringP("replica", "r", "", "Replica directory to mirror into (created if absent)")
	rootCmd.Flags().IntP("interval", "i", config.DefaultInterval, "Seconds between passes")
	rootCmd.Flags().StringP("logfile", "l", config.DefaultLogFile, "Log file path")
	rootCmd.Flags().IntP("workers", "w", 0, "Concurrent file workers (0 = number of CPUs)")
	rootCmd.Flags().Bool("once", false, "Run a single pass and exit")
	rootCmd.Flags().Bool("watch", false, "Also sync shortly after source changes")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging(logFile string) error {
	if err := utils.EnsureParent(logFile); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return nil
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".mirrord"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read %q: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("source_dir", cmd.Flags().Lookup("source"))
	viper.BindPFlag("replica_dir", cmd.Flags().Lookup("replica"))
	viper.BindPFlag("interval", cmd.Flags().Lookup("interval"))
	viper.BindPFlag("log_file", cmd.Flags().Lookup("logfile"))
	viper.BindPFlag("max_workers", cmd.Flags().Lookup("workers"))
	viper.BindPFlag("watch", cmd.Flags().Lookup("watch"))

	viper.SetEnvPrefix("MIRRORD")
	viper.AutomaticEnv()

	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("mirrord %s\n", version.Short())
}
