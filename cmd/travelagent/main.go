package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/travel/config"
	travellogger "github.com/aschepis/backscratcher/travel/logger"
	"github.com/aschepis/backscratcher/travel/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logFile    string
	logLevel   string
	pretty     bool
)

func main() {
	root := &cobra.Command{
		Use:           "travelagent",
		Short:         "Travel booking assistant with persistent memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.travelagent/config.yaml)")
	root.PersistentFlags().StringVar(&logFile, "logfile", "", "path to log file (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "pretty console logs (only valid without a log file)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(cleanupCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}

// setup loads configuration and initializes logging. defaultLogFile is used
// when neither the flag nor the config names one.
func setup(defaultLogFile string) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	file := cfg.Log.File
	if logFile != "" {
		file = logFile
	}
	if file == "" && !pretty && !cfg.Log.Pretty {
		file = defaultLogFile
	}
	if file != "" && pretty {
		return nil, zerolog.Logger{}, nil, errors.New("--logfile and --pretty are mutually exclusive")
	}
	log, closer, err := travellogger.Init(travellogger.Options{
		File:   config.ExpandPath(file),
		Pretty: pretty || cfg.Log.Pretty,
		Level:  logLevel,
	})
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	return cfg, log, closer, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(path)); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			cfg := config.Defaults()
			if err := config.Save(&cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := setup(travellogger.DefaultFile)
			if err != nil {
				return err
			}
			defer closer.Close() //nolint:errcheck // No remedy for log file close errors

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			a.startBackground(ctx)

			r := newREPL(a, cmd.InOrStdin(), cmd.OutOrStdout())
			return r.Run(ctx, sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume an existing session id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := setup("")
			if err != nil {
				return err
			}
			defer closer.Close() //nolint:errcheck // No remedy for log file close errors
			if addr == "" {
				addr = cfg.Metrics.Addr
			}
			if addr == "" {
				addr = "127.0.0.1:8080"
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			a.startBackground(ctx)

			srv := server.New(server.Config{Addr: addr, Logger: logger}, a.agent, a.store, a.sessions, a.db, a.tools.Names(), a.metrics)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: metrics.addr or 127.0.0.1:8080)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := setup("")
			if err != nil {
				return err
			}
			defer closer.Close() //nolint:errcheck // No remedy for log file close errors

			db, err := openDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // No remedy for db close errors
			fmt.Fprintf(cmd.OutOrStdout(), "Database at %s is up to date\n", cfg.Database.Path)
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete memory records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := setup("")
			if err != nil {
				return err
			}
			defer closer.Close() //nolint:errcheck // No remedy for log file close errors
			if days <= 0 {
				days = cfg.Memory.RetentionDays
			}

			a, err := newStorage(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.store.CleanupOldData(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Removed %d turns, %d facts, %d summaries and %d embeddings older than %d days\n",
				report.Turns, report.Facts, report.Summaries, report.Embeddings, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default: memory.retention_days)")
	return cmd
}
