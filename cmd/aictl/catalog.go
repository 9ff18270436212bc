package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/auswanderer-plattform/backend/internal/app"
	"github.com/auswanderer-plattform/backend/internal/models"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Model catalog checks and proposals",
	}
	cmd.AddCommand(catalogCheckCmd(), catalogPendingCmd())
	return cmd
}

// cliActor is stored as triggered_by for manual checks run from the shell
var cliActor = "aictl"

func catalogCheckCmd() *cobra.Command {
	var cron bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a catalog check and store its proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger := models.TriggerManual
			by := &cliActor
			if cron {
				trigger, by = models.TriggerCron, nil
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				result, err := a.Agent.RunCatalogCheck(ctx, by, trigger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "check %s: %d update(s)\n", result.CheckID, result.UpdatesFound)
				if result.Summary != "" {
					fmt.Fprintln(cmd.OutOrStdout(), result.Summary)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cron, "cron", false, "record the check as scheduled, which also emails the admin")
	return cmd
}

func catalogPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending model updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				updates, err := a.Agent.PendingUpdates(ctx)
				if err != nil {
					return err
				}
				if len(updates) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending updates")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tPROVIDER\tMODEL\tCONFIDENCE\tSUMMARY")
				for _, u := range updates {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
						u.ID, u.UpdateType, u.Provider, u.ModelID, u.Confidence, u.ChangeSummary)
				}
				return w.Flush()
			})
		},
	}
}
