package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"structura/pkg/config"
)

var log = commonlog.GetLogger("structura")

// errFailures is returned when scenarios ran but some failed; main exits
// with status 1 without printing it again.
var errFailures = errors.New("scenarios failed")

// cfg is loaded before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "structura",
	Short: "Shape and inline cache engine workbench",
	Long: `structura drives a hidden-class property engine through scenario files.
It runs them in parallel, records cache statistics between runs, and
offers a shell for poking at shapes by hand.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default .structura.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging (shape promotions, epoch bumps)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	config.Init(path)
	if err := config.ReadFile(); err != nil {
		return err
	}
	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}

	verbosity := 0
	if cfg.Verbose {
		verbosity = 1
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		verbosity = 2
	}
	var logPath *string
	if cfg.LogFile != "" {
		logPath = &cfg.LogFile
	}
	commonlog.Configure(verbosity, logPath)
	if used := viper.ConfigFileUsed(); used != "" {
		log.Infof("using config %s", used)
	}
	return nil
}

// usageError marks bad invocations so they print with the command's usage.
func usageError(cmd *cobra.Command, format string, args ...any) error {
	return fmt.Errorf("%s: %s\n\n%s", cmd.CommandPath(), fmt.Sprintf(format, args...), cmd.UsageString())
}
