package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/assistly/server/internal/module/account"
)

func newAccountCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and change accounts",
	}

	cmd.AddCommand(newAccountCreateCmd(e))
	cmd.AddCommand(newAccountShowCmd(e))
	cmd.AddCommand(newAccountUpgradeCmd(e))
	cmd.AddCommand(newAccountDowngradeCmd(e))

	return cmd
}

func newAccountCreateCmd(e *env) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a free account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			acct := &account.Account{Email: email, Name: name}
			if err := e.op.Accounts.Create(cmd.Context(), acct); err != nil {
				return err
			}
			return e.printAccount(acct)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newAccountShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|email>",
		Short: "Show an account's plan and usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				acct *account.Account
				err  error
			)
			if id, parseErr := uuid.Parse(args[0]); parseErr == nil {
				acct, err = e.op.Accounts.GetByID(cmd.Context(), id)
			} else {
				acct, err = e.op.Accounts.GetByEmail(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return e.printAccount(acct)
		},
	}
}

func newAccountUpgradeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <id> <subscription-id>",
		Short: "Move an account to the paid tier without contacting the provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			if err := e.op.Lifecycle.Upgrade(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			return e.showByID(cmd, id)
		},
	}
}

func newAccountDowngradeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "downgrade <id>",
		Short: "Move an account to the free tier without contacting the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			if err := e.op.Lifecycle.Downgrade(cmd.Context(), id); err != nil {
				return err
			}
			return e.showByID(cmd, id)
		},
	}
}

func (e *env) showByID(cmd *cobra.Command, id uuid.UUID) error {
	acct, err := e.op.Accounts.GetByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	return e.printAccount(acct)
}

func (e *env) printAccount(acct *account.Account) error {
	return e.print(acct, func() *Table {
		day := "-"
		if d, ok := acct.UsageDay(); ok {
			day = d
		}
		t := NewTable("ID", "EMAIL", "TIER", "DAILY COUNT", "LAST USAGE", "SUBSCRIPTION")
		t.AddRow(acct.ID.String(), acct.Email, acct.Tier.String(), strconv.Itoa(acct.DailyCount), day, orDash(acct.SubscriptionID()))
		return t
	})
}
