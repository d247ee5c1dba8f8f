// Package cmd contains all cmctl commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsync"
	"github.com/MrEthical07/cmsync/cmd/cmctl/internal/config"
	"github.com/MrEthical07/cmsync/cmd/cmctl/internal/output"
	"github.com/MrEthical07/cmsync/session"
)

var (
	cfgFile string
	envFile string
	verbose bool
	noColor bool
	cfg     *config.Config
	logger  *slog.Logger
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "cmctl",
	Short: "Community-management dashboard CLI",
	Long: `cmctl talks to the community-management backend from the terminal.

The session is persisted between runs, in a directory or in Redis, so a
login is shared by every later command.

Example usage:
  cmctl login --email ada@example.com --password ...
  cmctl whoami
  cmctl tickets list
  cmctl tickets create --subject "Broken" --message "It broke" --priority high
  cmctl posts list --page 2`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .cmctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the environment (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelWarn
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	logger.Debug("configuration loaded",
		"base_url", cfg.BaseURL,
		"storage", cfg.Storage.Kind,
	)
	return nil
}

func printerFor(cmd *cobra.Command) *output.Printer {
	return output.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), !noColor && output.ResolveColors(cfg.Output.Colors))
}

// cliSession is one command's view of the SDK.
type cliSession struct {
	client  *cmsync.Client
	sink    *cmsync.ChannelSink
	printer *output.Printer
	closers []func() error
}

// openSession builds a client from cfg and restores the persisted login.
func openSession(cmd *cobra.Command) (*cliSession, error) {
	s := &cliSession{
		sink:    cmsync.NewChannelSink(64),
		printer: printerFor(cmd),
	}

	c := cmsync.DefaultConfig()
	c.Gateway.BaseURL = cfg.BaseURL
	c.Gateway.Timeout = cfg.Timeout
	c.Gateway.UserAgent = "cmctl/" + version
	c.Session.RedisPrefix = cfg.Storage.RedisPrefix
	c.Events.DropIfFull = false
	c.Metrics.Enabled = false

	b := cmsync.New().WithConfig(c).WithLogger(logger).WithEventSink(s.sink)
	switch cfg.Storage.Kind {
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		s.closers = append(s.closers, rdb.Close)
		b = b.WithRedis(rdb)
	default:
		fs, err := session.NewFileStorage(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		b = b.WithStorage(fs)
	}

	client, err := b.Build()
	if err != nil {
		s.close()
		return nil, err
	}
	s.client = client
	if err := client.Bootstrap(cmd.Context()); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// requireUser fails unless a login was restored.
func (s *cliSession) requireUser() (session.User, error) {
	u, ok := s.client.Session().CurrentUser()
	if !ok {
		return session.User{}, fmt.Errorf("%w: run cmctl login first", session.ErrNotAuthenticated)
	}
	return u, nil
}

// close flushes events, printing notifications, and releases resources.
func (s *cliSession) close() {
	if s.client != nil {
		s.client.Close()
	}
	for drained := false; !drained; {
		select {
		case e := <-s.sink.Events():
			s.report(e)
		default:
			drained = true
		}
	}
	for _, fn := range s.closers {
		_ = fn()
	}
}

func (s *cliSession) report(e cmsync.Event) {
	if e.Kind != cmsync.EventNotify {
		logger.Debug("navigation requested", "path", e.Path)
		return
	}
	switch e.Level {
	case cmsync.LevelError:
		// The failing command returns the same message as its error.
		logger.Debug("mutation failed", "message", e.Message)
	case cmsync.LevelSuccess:
		s.printer.Success("%s", e.Message)
	default:
		s.printer.Info("%s", e.Message)
	}
}

// run opens a session, calls fn and always closes the session.
func run(cmd *cobra.Command, fn func(ctx context.Context, s *cliSession) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(cmd.Context(), s)
}
