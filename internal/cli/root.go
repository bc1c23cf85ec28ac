package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txwrap",
		Short: "Run SQL inside a classified, retrying PostgreSQL transaction",
		Long: `txwrap runs a unit of SQL work inside a transaction (or under a row lock) and
classifies every error it raises. Retriable kinds are retried a bounded number of
times, reraisable kinds abort the run, and rescued kinds end in a failing result
recorded against the target.

Two contexts are configured independently: "outside" wraps opening the
transaction or taking the lock, "inside" wraps the SQL itself.

Exit Codes:
  0  - Success
  1  - General error (unclassified error raised by the work)
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Database connection failed
  13 - Work ended in a failing result`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", txwrap.ErrUsage, err)
	})

	cmd.AddCommand(newExecCmd(), newKindsCmd(), newVersionCmd())
	return cmd
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, newStyles(isTerminal(os.Stderr)).failure.Render("Error: "+err.Error()))
	}
	return err
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

// usageArgs rejects positional arguments as a usage error.
func usageArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s takes no arguments, got %q", txwrap.ErrUsage, cmd.Name(), args)
	}
	return nil
}
