// ABOUTME: Root cobra command and shared CLI state
// ABOUTME: Loads config, builds the logger and opens the app once per invocation
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harperreed/spruce/app"
	"github.com/harperreed/spruce/config"
	"github.com/harperreed/spruce/logging"
)

type state struct {
	configPath string
	backend    string
	dbPath     string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

// NewRootCommand builds the full command tree.
func NewRootCommand(version string) *cobra.Command {
	s := &state{}

	root := &cobra.Command{
		Use:   "spruce",
		Short: "Scheduling CRM for a home-cleaning business",
		Long: `spruce books cleaning prospects, tracks their follow-up reminders and keeps a
kanban board of booking status. Changes made elsewhere (another terminal, another
device through Redis or Charm sync) show up live.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&s.configPath, "config", config.DefaultPath(), "Config file")
	flags.StringVar(&s.backend, "backend", "", "Backend override: sqlite, postgres or charm")
	flags.StringVar(&s.dbPath, "db-path", "", "SQLite database path override")
	flags.BoolVarP(&s.verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(
		newProspectCommand(s),
		newReminderCommand(s),
		newLocationCommand(s),
		newAgendaCommand(s),
		newBoardCommand(s),
		newWatchCommand(s),
		newMCPCommand(s, version),
		newSyncCommand(s),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (s *state) loadConfig() (*config.Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return nil, err
	}
	if s.backend != "" {
		cfg.Backend = s.backend
	}
	if s.dbPath != "" {
		cfg.DatabasePath = s.dbPath
	}
	if s.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, config.AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	s.cfg = cfg
	s.logger = logger
	return cfg, nil
}

// open returns the app with every persisted prospect loaded.
func (s *state) open(ctx context.Context) (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, app.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	if err := a.Executor.Refresh(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	s.app = a
	return a, nil
}

// withApp opens the app for one command and closes it afterwards.
func (s *state) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, a)
}

func (s *state) close() {
	if s.app != nil {
		if err := s.app.Close(); err != nil && s.logger != nil {
			s.logger.Warn("failed to close app", zap.Error(err))
		}
		s.app = nil
	}
}
