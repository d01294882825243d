// -- cmd/root.go --
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/deliberate/internal/config"
	"github.com/xkilldash9x/deliberate/internal/observability"
)

// app carries state shared by the root command and its subcommands.
type app struct {
	v        *viper.Viper
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
}

// NewRootCmd builds the command tree with its own viper instance, so tests
// can construct as many independent trees as they need.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "deliberate",
		Short:         "deliberate runs cooperatively scheduled, goal directed agents.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before any subcommand, setting up config and logging.
			if err := a.initializeConfig(); err != nil {
				return err
			}
			observability.Initialize(a.cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
			a.logger = observability.GetLogger()
			a.logger.Debug("Starting deliberate", zap.String("version", Version))
			return nil
		},
	}
	rootCmd.SetVersionTemplate("deliberate version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./deliberate.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "overrides logger.level")

	rootCmd.AddCommand(newRunCmd(a), newVersionCmd())
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := NewRootCmd().Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initializeConfig reads the config file, if any, and environment variables.
func (a *app) initializeConfig() error {
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		a.v.SetConfigFile(path)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("deliberate")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	if a.logLevel != "" {
		a.v.Set("logger.level", a.logLevel)
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
