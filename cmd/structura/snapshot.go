package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"structura/pkg/script"
	"structura/pkg/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot SCENARIO",
	Short: "Run one scenario and export its shape arena",
	Long: `Snapshot runs a single scenario file and writes the resulting shape
arena and counters as canonical CBOR. Identical runs produce identical
bytes, so snapshots can be diffed across engine changes.`,
	Args: cobra.ExactArgs(1),
	RunE: takeSnapshot,
}

func init() {
	snapshotCmd.Flags().StringP("output", "o", "", "write the CBOR snapshot to this file")
	snapshotCmd.Flags().Bool("strict", false, "run in strict mode")
	snapshotCmd.Flags().Bool("list", false, "print the shape listing")
	rootCmd.AddCommand(snapshotCmd)
}

func takeSnapshot(cmd *cobra.Command, args []string) error {
	s, err := script.LoadFile(args[0])
	if err != nil {
		return err
	}
	opts := s.Engine.Apply(cfg.EngineOptions())
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("%s: engine overrides: %w", s.Path, err)
	}
	strict, _ := cmd.Flags().GetBool("strict")

	in := script.NewInterpreter(opts, strict, cmd.OutOrStdout())
	if _, err := in.RunSource(s.Steps, s.StepsLine, s.Path); err != nil {
		// The arena is still worth exporting; it shows the state at the failure.
		log.Warningf("%s stopped early: %s", s.Path, err)
	}
	snap := snapshot.Take(in.Realm())

	if list, _ := cmd.Flags().GetBool("list"); list {
		if err := snap.Print(cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return nil
	}
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d shapes (%d bytes) to %s\n", len(snap.Shapes), len(data), output)
	return nil
}
