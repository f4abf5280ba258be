package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"worklogd/internal/journal"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var output string
	var fragment bool

	cmd := &cobra.Command{
		Use:   "render [date]",
		Short: "Render a day's log as HTML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, src, err := readDay(opts, args)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("open output: %w", err)
				}
				defer f.Close()
				w = f
			}

			if fragment {
				err = journal.Render(src, w)
			} else {
				title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				err = journal.RenderPage(title, src, w)
			}
			if err != nil {
				return err
			}
			if output != "" {
				cmd.PrintErrf("wrote %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write HTML to this file instead of stdout")
	cmd.Flags().BoolVar(&fragment, "fragment", false, "emit only the body fragment")
	return cmd
}
