package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the daemon to stop",
	RunE:  runShutdown,
}

func init() {
	rootCmd.AddCommand(shutdownCmd)
	shutdownCmd.Flags().String("reason", "", "Reason recorded in the daemon log")
}

func runShutdown(cmd *cobra.Command, _ []string) error {
	reason, _ := cmd.Flags().GetString("reason")

	c, err := dialFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.Shutdown(cmd.Context(), reason); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, "shutdown requested")
	return nil
}
