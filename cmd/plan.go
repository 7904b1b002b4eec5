package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/induction/app"
)

var (
	planDepot string
	planDate  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run the induction planning of a depot and store the draft",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planDepot, "depot", "", "depot id (defaults to every configured depot)")
	planCmd.Flags().StringVar(&planDate, "date", "", "operating day YYYY-MM-DD (defaults to the next operating day)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		if planDepot == "" && planDate == "" {
			errs := svc.PlanAll(ctx, time.Now())
			for depot, err := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", depot, err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d depots failed", len(errs))
			}
			return nil
		}
		if planDepot == "" {
			return fmt.Errorf("--depot is required with --date")
		}
		date := svc.NextOperatingDay(time.Now())
		if planDate != "" {
			d, err := time.Parse(time.DateOnly, planDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			date = d
		}
		res, err := svc.Planner.RunInductionPlanning(ctx, planDepot, date)
		if res != nil {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
		}
		return err
	})
}
