// worklogd - background work logger
//
// worklogd watches the focused window and records what is typed, clicked,
// shown and copied into one Markdown file per day:
//
//	worklogd                  Capture until interrupted (same as run)
//	worklogd stats [date]     Summarise a day's log
//	worklogd render [date]    Render a day's log as HTML
//	worklogd recover          Replay sections left in the spool by a crash
//	worklogd config show      Print the effective configuration
//	worklogd config init      Write a default configuration file
//	worklogd version          Print version information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worklogd/internal/config"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "worklogd:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "worklogd",
		Short:         "Record a Markdown log of what you work on",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"configuration file (default "+config.ConfigPath()+")")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newRenderCmd(opts))
	root.AddCommand(newRecoverCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}
