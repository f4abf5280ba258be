package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"worklogd/internal/journal"
	"worklogd/internal/session"
)

// maxStatsApps caps the application list printed by stats.
const maxStatsApps = 10

// resolveDay turns an optional date argument into a day. "today" and
// "yesterday" are accepted besides YYYY-MM-DD.
func resolveDay(args []string, now time.Time) (time.Time, error) {
	if len(args) == 0 || args[0] == "today" {
		return now, nil
	}
	if args[0] == "yesterday" {
		return now.AddDate(0, 0, -1), nil
	}
	day, err := time.ParseInLocation(journal.DateLayout, args[0], now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
	}
	return day, nil
}

// readDay loads the log for the day named by args.
func readDay(opts *rootOptions, args []string) (string, []byte, error) {
	cfg, err := opts.load()
	if err != nil {
		return "", nil, err
	}
	day, err := resolveDay(args, time.Now())
	if err != nil {
		return "", nil, err
	}
	path := journal.NewWriter(cfg.Paths.LogDir).PathFor(day)
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return path, nil, fmt.Errorf("no log for %s (%s)", day.Format(journal.DateLayout), path)
	}
	if err != nil {
		return path, nil, err
	}
	return path, src, nil
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats [date]",
		Short: "Summarise a day's log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, src, err := readDay(opts, args)
			if err != nil {
				return err
			}
			doc, err := journal.Parse(src)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			summary := journal.Summarize(doc)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), renderSummary(cmd.OutOrStdout(), summary))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

// renderSummary lays out a summary for a terminal. Colours are dropped when
// w is not a terminal.
func renderSummary(w io.Writer, s journal.Summary) string {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	label := r.NewStyle().Width(14).Foreground(lipgloss.Color("245"))
	value := r.NewStyle().Bold(true)
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	row := func(k string, v any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, label.Render(k), value.Render(fmt.Sprint(v)))
	}

	span := "-"
	if s.First != "" {
		span = s.First + " to " + s.Last
	}
	overview := lipgloss.JoinVertical(lipgloss.Left,
		row("Starts", s.Starts),
		row("Sections", s.Sections),
		row("Secure", s.Secure),
		row("Active", span),
		"",
		row("Keystrokes", s.Keystrokes),
		row("Clicks", s.Events[session.KindClick]),
		row("Screens", s.Events[session.KindScreen]),
		row("Clipboard", s.Events[session.KindClipboard]),
	)

	var b strings.Builder
	b.WriteString(title.Render("Work Log — "+s.Date) + "\n")
	b.WriteString(box.Render(overview) + "\n")

	if len(s.Apps) > 0 {
		apps := make([]string, 0, maxStatsApps)
		for i, app := range s.Apps {
			if i == maxStatsApps {
				apps = append(apps, label.Render(fmt.Sprintf("+%d more", len(s.Apps)-i)))
				break
			}
			name := app.App
			if name == "" {
				name = "(unknown)"
			}
			apps = append(apps, value.Render(fmt.Sprintf("%4d", app.Sections))+"  "+name)
		}
		b.WriteString(title.Render("Applications") + "\n")
		b.WriteString(box.Render(lipgloss.JoinVertical(lipgloss.Left, apps...)) + "\n")
	}
	return b.String()
}
