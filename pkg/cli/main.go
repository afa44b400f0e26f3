// Package cli implements the docstore command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/configschema"
	"github.com/nimburion/docstore/pkg/db"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/tracing"
	"github.com/nimburion/docstore/pkg/version"
)

const redactedValue = "***"

// Options configures the root command.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// session is an opened database with its logger and tracer. close releases
// all of them.
type session struct {
	cfg    *config.Config
	log    logger.Logger
	db     *db.DB
	tracer *tracing.TracerProvider
}

func (s *session) close(ctx context.Context) error {
	err := s.db.Close()
	if s.tracer != nil {
		if terr := s.tracer.Shutdown(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	if zl, ok := s.log.(*logger.ZapLogger); ok {
		_ = zl.Sync()
	}
	return err
}

// NewRootCommand creates the docstore CLI.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "docstore"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		cfgPath string
		verbose bool
	)
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level regardless of configuration")

	loadConfig := func(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
		cfg, log, err := LoadConfigAndLogger(cfgPath, opts.EnvPrefix, cmd.ErrOrStderr())
		if err != nil {
			return nil, nil, err
		}
		if zl, ok := log.(*logger.ZapLogger); ok && verbose {
			zl.SetLevel(logger.DebugLevel)
		}
		return cfg, log, nil
	}
	open := func(cmd *cobra.Command) (*session, error) {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		return openSession(cmd.Context(), cfg, log)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return version.Current(opts.Name).Print(cmd.OutOrStdout())
		},
	})

	rootCmd.AddCommand(newImportCommand(open))
	rootCmd.AddCommand(newQueryCommand(open))
	rootCmd.AddCommand(newHealthCommand(open))
	rootCmd.AddCommand(newConfigCommand(func() (*config.Config, map[string]any, error) {
		return config.NewViperLoader(cfgPath, opts.EnvPrefix).LoadSettings()
	}))

	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.InitDefaultCompletionCmd()
	return rootCmd
}

func newConfigCommand(load func() (*config.Config, map[string]any, error)) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := load(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, settings, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !showSecrets {
				settings = redactSettings(settings, config.SecretKeys)
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := configschema.BuildSchema()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		},
	})
	return configCmd
}

// LoadConfigAndLogger loads the configuration and builds the logger it
// describes. Logs go to logOut.
func LoadConfigAndLogger(cfgPath, envPrefix string, logOut io.Writer) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{
		Level:   level,
		Format:  format,
		Service: cfg.Service.Name,
		Output:  logOut,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	if level == logger.DebugLevel {
		log.Debug("effective configuration", "config", fmt.Sprintf("%+v", redactConfig(*cfg)))
	}
	return cfg, log, nil
}

func openSession(ctx context.Context, cfg *config.Config, log logger.Logger) (*session, error) {
	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Backend:        cfg.Snapshot.Backend,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}
	d, err := db.Open(ctx, cfg, log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return &session{cfg: cfg, log: log, db: d, tracer: tp}, nil
}

func formatSettings(settings map[string]any) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// redactSettings masks the non-empty values at the dotted keys.
func redactSettings(settings map[string]any, keys []string) map[string]any {
	out := copySettings(settings)
	for _, key := range keys {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				node = nil
				break
			}
			node = child
		}
		if node == nil {
			continue
		}
		last := parts[len(parts)-1]
		if v, ok := node[last]; ok && v != nil && fmt.Sprint(v) != "" {
			node[last] = redactedValue
		}
	}
	return out
}

func copySettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if child, ok := v.(map[string]any); ok {
			out[k] = copySettings(child)
			continue
		}
		out[k] = v
	}
	return out
}

func redactConfig(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&cfg.Snapshot.S3.AccessKeyID)
	mask(&cfg.Snapshot.S3.SecretAccessKey)
	mask(&cfg.Snapshot.S3.SessionToken)
	mask(&cfg.Snapshot.Redis.URL)
	mask(&cfg.Snapshot.MongoDB.URL)
	return cfg
}

// Execute runs the command until it finishes or the process is interrupted
// and exits non-zero on failure.
func Execute(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
