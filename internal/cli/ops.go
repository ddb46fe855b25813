package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/assistly/server/internal/app"
	"github.com/assistly/server/internal/module/reset"
	"github.com/assistly/server/internal/shared/database"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(e.op.DB, app.Models()...); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "migrations applied")
			return nil
		},
	}
}

func newResetUsageCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-usage",
		Short: "Reset the daily counters of free accounts",
		Long: `Reset the daily counters of every free account.
Running it more than once leaves the same end state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.op.Reset.Run(cmd.Context(), reset.TriggerCLI)
			if err != nil {
				return err
			}
			return e.print(res, func() *Table {
				t := NewTable("DAY", "ACCOUNTS RESET", "WEBHOOK EVENTS PURGED", "DURATION")
				t.AddRow(res.Day, strconv.FormatInt(res.Accounts, 10), strconv.FormatInt(res.Purged, 10), res.Duration.String())
				return t
			})
		},
	}
}

func newSubscriptionCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Query the billing provider",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <subscription-id>",
		Short: "Show a subscription as the provider reports it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := e.op.Gateway.GetSubscriptionDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.print(details, func() *Table {
				t := NewTable("ID", "STATUS", "PLAN", "SUBSCRIBER", "ACCOUNT")
				t.AddRow(details.ID, string(details.Status), orDash(details.PlanID), orDash(details.SubscriberEmail), orDash(details.AccountRef))
				return t
			})
		},
	})

	return cmd
}
