package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is reachable",
	RunE:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().Duration("timeout", 5*time.Second, "Give up after this long")
}

func runPing(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := dialFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := contextWithTimeout(cmd, timeout)
	defer cancel()

	start := time.Now()
	version, err := c.Ping(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "helixd %s (%.1fms)\n", version, float64(time.Since(start).Microseconds())/1000)
	return nil
}
