package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"structura/pkg/profile"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `History lists runs stored by 'structura run'. With --run it shows the
results of one run; with --scenario the recent results of one file.`,
	Args: cobra.NoArgs,
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 10, "number of entries to show")
	historyCmd.Flags().Int64("run", 0, "show the results of this run")
	historyCmd.Flags().String("scenario", "", "show recent results of this scenario file")
	historyCmd.Flags().Int("prune", 0, "delete all but the newest N runs")
	rootCmd.AddCommand(historyCmd)
}

func showHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := profile.Open(ctx, cfg.Profile.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	limit, _ := cmd.Flags().GetInt("limit")
	runID, _ := cmd.Flags().GetInt64("run")
	scenario, _ := cmd.Flags().GetString("scenario")
	prune, _ := cmd.Flags().GetInt("prune")

	switch {
	case prune > 0:
		n, err := store.Prune(ctx, prune)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %d runs\n", n)
		return nil
	case runID != 0:
		run, err := store.Get(ctx, runID)
		if err != nil {
			return err
		}
		printRuns(out, []profile.Run{run})
		results, err := store.Results(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		printResults(out, results)
		return nil
	case scenario != "":
		results, err := store.History(ctx, scenario, limit)
		if err != nil {
			return err
		}
		printResults(out, results)
		return nil
	}

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "no runs recorded in %s\n", cfg.Profile.DBPath)
		return nil
	}
	printRuns(out, runs)
	return nil
}

func printRuns(w io.Writer, runs []profile.Run) {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPASSED\tFAILED\tSKIPPED\tHIT RATE\tSHAPES\tDURATION")
	for _, r := range runs {
		p.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%.1f%%\t%d\t%v\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Passed, r.Failed, r.Skipped,
			r.Stats.HitRate(), r.Stats.ShapesCreated, r.Duration.Round(time.Millisecond))
	}
	tw.Flush()
}

func printResults(w io.Writer, results []profile.ScenarioResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSCENARIO\tMODE\tSTATUS\tSTEPS\tHIT RATE\tERROR")
	for _, r := range results {
		status := "ok"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%.1f%%\t%s\n", r.RunID, r.Path, r.Mode, status, r.Steps, r.HitRate, r.Error)
	}
	tw.Flush()
}
