package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/induction/app"
	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/pkg/export"
)

var (
	scheduleID string
	operatorID string
	reason     string

	conflictID string
	action     string
	newState   string

	trainsetID string

	exportFormat string
	exportOut    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Accept or override a conflict of a draft schedule",
	RunE:  runResolve,
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Commit a draft schedule whose conflicts are resolved",
	RunE:  runFinalize,
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Move a trainset of a committed schedule",
	RunE:  runOverride,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a schedule as JSON or CSV",
	RunE:  runExport,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print the audit trail of a schedule",
	RunE:  runLedger,
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, finalizeCmd, overrideCmd, exportCmd, ledgerCmd} {
		c.Flags().StringVar(&scheduleID, "schedule", "", "schedule id")
		_ = c.MarkFlagRequired("schedule")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{resolveCmd, finalizeCmd, overrideCmd} {
		c.Flags().StringVar(&operatorID, "operator", "", "operator id")
		_ = c.MarkFlagRequired("operator")
	}
	for _, c := range []*cobra.Command{resolveCmd, overrideCmd} {
		c.Flags().StringVar(&reason, "reason", "", "justification recorded in the ledger")
	}
	resolveCmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	resolveCmd.Flags().StringVar(&action, "action", string(conflict.ActionAccept), "accept or override")
	resolveCmd.Flags().StringVar(&newState, "state", "", "category applied by an override")
	_ = resolveCmd.MarkFlagRequired("conflict")

	overrideCmd.Flags().StringVar(&trainsetID, "trainset", "", "trainset id")
	overrideCmd.Flags().StringVar(&newState, "to", "", "readyForService, onStandby, heldForMaintenance or removedFromService")
	_ = overrideCmd.MarkFlagRequired("trainset")
	_ = overrideCmd.MarkFlagRequired("to")

	exportCmd.Flags().StringVar(&exportFormat, "format", string(export.FormatJSON), "json or csv")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (defaults to stdout)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		r := conflict.Resolution{Action: conflict.Action(action), Reason: reason, OperatorID: operatorID}
		if newState != "" {
			c := model.Category(newState)
			r.NewState = &c
		}
		c, err := svc.Planner.ResolveConflict(ctx, scheduleID, conflictID, r)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	})
}

func runFinalize(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		s, err := svc.Planner.FinalizeSchedule(ctx, scheduleID, operatorID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	})
}

func runOverride(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		s, err := svc.Planner.ApplyOverride(ctx, scheduleID, schedule.OverrideRequest{
			TrainsetID:    trainsetID,
			NewAssignment: model.Category(newState),
			Reason:        reason,
			OperatorID:    operatorID,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		s, err := svc.Planner.Schedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if exportOut == "" {
			return export.Write(cmd.OutOrStdout(), export.Format(exportFormat), s)
		}
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		if err := export.Write(f, export.Format(exportFormat), s); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

func runLedger(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		entries, err := svc.Planner.Ledger(ctx, scheduleID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entries)
	})
}
