package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/errors"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/s3batch/store"
)

// Exit codes.
const (
	exitOK         = 0
	exitFatal      = 1
	exitIncomplete = 2
)

// errIncomplete reports a finished run that uploaded fewer artifacts than requested.
var errIncomplete = fmt.Errorf("batch incomplete")

// storeFactory opens the object store selected by the configuration.
type storeFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error)

// app carries the state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
	version string

	newStore storeFactory
}

func newApp() *app {
	return &app{
		v:        viper.New(),
		newStore: openStore,
	}
}

func newRootCmd(a *app, version string) *cobra.Command {
	a.version = version
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Generate synthetic JSON documents and upload them to S3",
		Long: `s3batch generates a batch of random JSON documents of a given aggregate
size, writes them to a local working directory and uploads them concurrently
to a freshly created bucket.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./.s3batch.yaml, then $XDG_CONFIG_HOME/s3batch/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text or json")
	root.PersistentFlags().String("workdir", "", "parent directory for run working directories")

	a.bind(root.PersistentFlags(), map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
		"workdir":    "workdir",
	})

	root.AddCommand(newRunCmd(a), newCleanCmd(a))
	return root
}

// bind maps viper keys to flags. A flag only overrides the key when set.
func (a *app) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
}

func (a *app) initConfig(cmd *cobra.Command) error {
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	switch {
	case a.cfgFile != "":
		a.v.SetConfigFile(a.cfgFile)
	case fileExists("." + config.AppName + ".yaml"):
		a.v.SetConfigFile("." + config.AppName + ".yaml")
	default:
		a.v.AddConfigPath(filepath.Join(xdg.ConfigHome, config.AppName))
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return errors.Wrap("readConfig", errors.ErrInvalidConfig, err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config file", "path", used)
	}
	return nil
}

// newLogger builds the CLI logger writing to w.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, errors.Wrap("newLogger", errors.ErrInvalidConfig, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.Wrap("newLogger", errors.ErrInvalidConfig,
			fmt.Errorf("log format must be \"text\" or \"json\", got %q", cfg.Format))
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errIncomplete), errors.Is(err, errors.ErrCanceled):
		return exitIncomplete
	default:
		return exitFatal
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
