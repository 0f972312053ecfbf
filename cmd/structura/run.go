package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"structura/pkg/profile"
	"structura/pkg/runner"
	"structura/pkg/script"
)

var runCmd = &cobra.Command{
	Use:   "run [path...]",
	Short: "Run scenario files or directories",
	Long: `Run loads every .yaml scenario under the given paths (default: the
working directory) and executes each in the modes its flags allow.`,
	RunE: runScenarios,
}

func init() {
	runCmd.Flags().String("filter", "", "only run scenarios whose name matches this ECMAScript regular expression")
	runCmd.Flags().Int("workers", 0, "parallel workers (0 = one per CPU)")
	runCmd.Flags().Duration("timeout", 0, "per scenario timeout")
	runCmd.Flags().Bool("no-record", false, "do not store the run in the history database")
	runCmd.Flags().BoolP("quiet", "q", false, "print only failures and the summary")
	_ = viper.BindPFlag("runner.filter", runCmd.Flags().Lookup("filter"))
	_ = viper.BindPFlag("runner.workers", runCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("runner.timeout", runCmd.Flags().Lookup("timeout"))
	rootCmd.AddCommand(runCmd)
}

// compileFilter turns a pattern into a scenario name filter. An empty
// pattern selects everything.
func compileFilter(pattern string) (func(string) (bool, error), error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}
	re.MatchTimeout = time.Second
	return re.MatchString, nil
}

func scenarioPaths(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}

func runScenarios(cmd *cobra.Command, args []string) error {
	filter, err := compileFilter(cfg.Runner.Filter)
	if err != nil {
		return usageError(cmd, "%v", err)
	}
	scenarios, err := script.Load(scenarioPaths(args)...)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return usageError(cmd, "no scenario files found")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	quiet, _ := cmd.Flags().GetBool("quiet")
	out := cmd.OutOrStdout()
	started := time.Now()
	report, err := runner.Run(ctx, scenarios, runner.Options{
		Workers: cfg.WorkerCount(),
		Engine:  cfg.EngineOptions(),
		Timeout: cfg.Runner.Timeout,
		Filter:  filter,
		OnResult: func(r *script.Result) {
			if !quiet && r.Passed {
				fmt.Fprintf(out, "ok   %s [%s] %v\n", r.Path, r.Mode(), r.Duration.Round(time.Microsecond))
			}
		},
	})
	if err != nil {
		return err
	}
	if err := report.Print(out); err != nil {
		return err
	}

	noRecord, _ := cmd.Flags().GetBool("no-record")
	if cfg.Profile.Enabled && !noRecord {
		if err := record(ctx, report, started); err != nil {
			// History is a convenience; a broken database must not fail the run.
			log.Errorf("recording run: %s", err)
		}
	}
	if !report.OK() {
		return errFailures
	}
	return nil
}

func record(ctx context.Context, report *runner.Report, started time.Time) error {
	if dir := filepath.Dir(cfg.Profile.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	store, err := profile.Open(ctx, cfg.Profile.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.Record(ctx, report, started)
	if err != nil {
		return err
	}
	log.Infof("stored run %d in %s", id, cfg.Profile.DBPath)
	return nil
}
