// Package cli implements billingctl, the operator command line for accounts and subscriptions.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/assistly/server/internal/app"
	"github.com/assistly/server/internal/shared/config"
)

// env is shared by the subcommands of one invocation.
type env struct {
	cfgFile      string
	outputFormat string
	out          io.Writer

	op      *app.Operator
	cleanup func()
}

func newEnv() *env {
	return &env{out: os.Stdout, cleanup: func() {}}
}

// newRootCmd builds the billingctl command tree. The caller runs e.cleanup.
func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "billingctl",
		Short: "Operate Assistly accounts, subscriptions and usage counters",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.out = cmd.OutOrStdout()
			return e.init()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&e.cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&e.outputFormat, "output", "o", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(newMigrateCmd(e))
	rootCmd.AddCommand(newResetUsageCmd(e))
	rootCmd.AddCommand(newAccountCmd(e))
	rootCmd.AddCommand(newSubscriptionCmd(e))

	return rootCmd
}

// Execute runs billingctl with the process arguments.
func Execute() error {
	e := newEnv()
	defer func() { e.cleanup() }()
	return newRootCmd(e).ExecuteContext(context.Background())
}

func (e *env) init() error {
	cfg, err := config.LoadFile(e.cfgFile)
	if err != nil {
		return err
	}
	op, cleanup, err := app.InitializeOperator(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	e.op = op
	e.cleanup = cleanup
	return nil
}
