package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's sync queue table",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	c, err := dialFromFlags(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	status, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	_, _ = fmt.Fprintf(os.Stdout, "uptime: %s\n", (time.Duration(status.UptimeMS) * time.Millisecond).Round(time.Second))
	if len(status.Queues) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No sync queues")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "REPO\tTOOL\tDIRECTORY\tSYNC ID\tSTATE\tAGE")
	for _, q := range status.Queues {
		age := (time.Duration(q.AgeMS) * time.Millisecond).Round(time.Second)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			q.RepoRoot, q.Tool, q.Directory, q.SyncID, q.State, age)
	}
	return nil
}
