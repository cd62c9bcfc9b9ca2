package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asad/blobsync/internal/archive"
	"github.com/asad/blobsync/internal/config"
	"github.com/asad/blobsync/internal/logging"
	"github.com/asad/blobsync/internal/telemetry"
)

var (
	// Version is set at build time via ldflags.
	// Example: go build -ldflags "-X github.com/asad/blobsync/internal/cli.Version=1.0.0"
	Version = "dev"
)

// ExitError ends the process with Code without printing anything further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// app is the state shared by every subcommand once flags and config are resolved.
type app struct {
	cfgFile string
	v       *viper.Viper

	cfg      *config.Config
	logger   logging.Logger
	adapter  *archive.Adapter
	shutdown telemetry.Shutdown
}

// NewRootCommand builds the blobsync command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "blobsync",
		Short: "Archive files to cloud blob storage",
		Long: `Blobsync moves whole files between a local filesystem and a blob container.

The container lives on Azure Blob Storage by default. Connection strings of the
form s3://..., gs://... and file:///dir select S3, Google Cloud Storage or a
local directory instead. The same operations are exported as a C library for
data-management servers and over HTTP by "blobsync serve".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.blobsync.yaml)")
	flags.String("connection", "", "connection string (overrides "+config.EnvConnectionString+")")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Duration("timeout", 0, "upper bound for a single operation (default 10m)")

	_ = a.v.BindPFlag(config.KeyConnection, flags.Lookup("connection"))
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyTimeout, flags.Lookup("timeout"))

	root.AddCommand(
		newPutCommand(a),
		newGetCommand(a),
		newStatCommand(a),
		newLengthCommand(a),
		newDeleteCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	for _, sub := range root.Commands() {
		if sub.RunE != nil {
			sub.RunE = a.withTeardown(sub.RunE)
		}
	}
	return root
}

// withTeardown flushes traces and the logger after run, whether or not it
// failed. Cobra skips post-run hooks when RunE returns an error.
func (a *app) withTeardown(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if tErr := a.teardown(cmd.Context()); err == nil {
				err = tErr
			}
		}()
		return run(cmd, args)
	}
}

// Execute is the entry point for the CLI. It should be called from main.go.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	if err := a.readConfigFile(); err != nil {
		return err
	}
	config.SetDefaults(a.v)

	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	shutdown, err := telemetry.Init(cmd.Context(), Version, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.shutdown = shutdown

	a.adapter = archive.New(archive.WithLogger(logger))
	return nil
}

// readConfigFile reads --config, or $HOME/.blobsync.yaml when it exists.
func (a *app) readConfigFile() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".blobsync.yaml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	a.v.SetConfigFile(path)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.shutdown == nil {
		return nil
	}
	shutdown := a.shutdown
	a.shutdown = nil
	if err := shutdown(ctx); err != nil {
		return fmt.Errorf("failed to flush traces: %w", err)
	}
	return nil
}

// ref builds the blob reference for a command from the configured connection.
func (a *app) ref(container, name string) (archive.Ref, error) {
	connection, err := a.cfg.ConnectionString()
	if err != nil {
		return archive.Ref{}, err
	}
	return archive.Ref{Connection: connection, Container: container, Name: name}, nil
}

// opContext bounds one archive operation by the configured timeout.
func (a *app) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.Timeout)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blobsync version %s\n", Version)
		},
	}
}
