package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/induction/qa/scenarios"
)

var scenarioTimeout time.Duration

var scenarioCmd = &cobra.Command{
	Use:   "scenario FILE...",
	Short: "Replay planning scenarios and check their expected outcome",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	scenarioCmd.Flags().DurationVar(&scenarioTimeout, "timeout", 30*time.Second, "solver time limit per scenario")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		diffs := scenarios.Check(sc.Expected, scenarios.Run(cmd.Context(), sc, scenarioTimeout))
		if len(diffs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "PASS %s\n", sc.Name)
			continue
		}
		failed++
		fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", sc.Name)
		for _, d := range diffs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
	}
	return nil
}
