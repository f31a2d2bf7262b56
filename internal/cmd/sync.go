package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/helix-kb/helixd/pkg/client"
)

var syncCmd = &cobra.Command{
	Use:   "sync <directory>",
	Short: "Request a sync of a knowledge-base directory",
	Long: `Ask the daemon to sync a directory (relative to the repo
root). Concurrent requests for the same directory collapse onto one
job; use --force to supersede an in-flight job, and --wait to block
until the sync resolves.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("force", false, "Supersede any in-flight sync for this directory")
	syncCmd.Flags().Bool("wait", false, "Block until the sync resolves")
	syncCmd.Flags().Duration("timeout", 30*time.Second, "How long --wait may block")
}

func runSync(cmd *cobra.Command, args []string) error {
	directory := args[0]
	force, _ := cmd.Flags().GetBool("force")
	wait, _ := cmd.Flags().GetBool("wait")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := dialFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	enq, err := c.EnqueueSync(cmd.Context(), directory, force)
	if err != nil {
		return err
	}

	if enq.IsNew {
		_, _ = fmt.Fprintf(os.Stdout, "sync %s queued\n", enq.SyncID)
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "sync %s already in flight\n", enq.SyncID)
	}

	if !wait {
		return nil
	}

	res, err := c.WaitSync(cmd.Context(), enq.SyncID, timeout)
	if err != nil {
		if client.IsTimeout(err) {
			return fmt.Errorf("sync %s did not resolve within %s", enq.SyncID, timeout)
		}
		return err
	}

	if res.Stats != nil {
		_, _ = fmt.Fprintf(os.Stdout, "sync %s %s: scanned %d, indexed %d, removed %d, errors %d (%dms)\n",
			res.SyncID, res.State,
			res.Stats.FilesScanned, res.Stats.FilesIndexed, res.Stats.FilesRemoved,
			res.Stats.FileErrors, res.Stats.DurationMS)
	} else {
		_, _ = fmt.Fprintf(os.Stdout, "sync %s %s\n", res.SyncID, res.State)
	}
	if res.State == "failed" {
		return fmt.Errorf("sync %s failed", res.SyncID)
	}
	return nil
}

// contextWithTimeout bounds a verb with the given timeout, inheriting
// the command context.
func contextWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}
