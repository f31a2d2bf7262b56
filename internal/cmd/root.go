// Package cmd wires the helixd command-line verbs. serve runs the
// daemon; the remaining verbs are thin clients over the unix socket.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helix-kb/helixd/internal/config"
	"github.com/helix-kb/helixd/internal/observability"
	"github.com/helix-kb/helixd/pkg/client"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo is called from main with ldflags-injected build info.
func SetVersionInfo(version, commit, buildDate string) {
	if version != "" {
		versionInfo.Version = version
	}
	if commit != "" {
		versionInfo.Commit = commit
	}
	if buildDate != "" {
		versionInfo.BuildDate = buildDate
	}
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
}

var rootCmd = &cobra.Command{
	Use:   "helixd",
	Short: "Local sync coordination daemon for knowledge-base tools",
	Long: `helixd coordinates document sync jobs for tools that keep
markdown knowledge bases indexed. It listens on a unix domain socket,
deduplicates concurrent sync requests per (repo, tool, directory), and
lets callers wait for a sync to resolve.

Run 'helixd serve' to start the daemon; the other verbs talk to it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		observability.InitCLILogger(level, jsonLogs)
	},
}

func init() {
	rootCmd.PersistentFlags().String("socket", "", "Daemon socket path (default from config)")
	rootCmd.PersistentFlags().String("tool", "decisions", "Tool identity sent on every request")
	rootCmd.PersistentFlags().String("repo-root", "", "Repository root (default: current directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
}

// Execute runs the root command.
func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}

func socketFromFlags(cmd *cobra.Command) (string, error) {
	socket, _ := cmd.Flags().GetString("socket")
	if socket != "" {
		return socket, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.Socket, nil
}

// dialFromFlags opens a daemon connection using the persistent flags.
func dialFromFlags(cmd *cobra.Command) (*client.Client, error) {
	socket, err := socketFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	tool, _ := cmd.Flags().GetString("tool")
	repoRoot, _ := cmd.Flags().GetString("repo-root")
	if repoRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve current directory: %w", err)
		}
		repoRoot = cwd
	}
	return client.Dial(socket, tool, repoRoot)
}
