package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"worklogd/internal/journal"
	"worklogd/internal/logging"
	"worklogd/internal/session"
	"worklogd/internal/wal"
)

func newRecoverCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Write sections left in the spool by an interrupted run",
		Long: `Replays batches that were drained from memory but never confirmed
written. Sections already present in their day file are skipped. The
running logger does this on startup; use this command when it is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !wal.Exists(cfg.SpoolPath()) {
				cmd.Println("nothing to recover")
				return nil
			}

			lock, err := journal.Lock(cfg.Paths.LogDir)
			if errors.Is(err, journal.ErrLocked) {
				return errors.New("worklogd is running; it recovers the spool itself")
			}
			if err != nil {
				return err
			}
			defer lock.Release()

			spool, err := journal.OpenSpool(cfg.SpoolPath(), uuid.New())
			if err != nil {
				return fmt.Errorf("open spool: %w", err)
			}
			defer spool.Close()

			lc := logging.DefaultConfig()
			lc.Level = logging.LevelWarn
			lc.Stderr = cmd.ErrOrStderr()
			logger, err := logging.New(lc)
			if err != nil {
				return err
			}
			defer logger.Close()

			flusher := journal.NewFlusher(session.NewBuffer(session.Options{}), journal.NewWriter(cfg.Paths.LogDir),
				logger.Logger, journal.WithSpool(spool), journal.WithStderr(cmd.ErrOrStderr()))
			n, err := flusher.Recover(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				cmd.Println("nothing to recover")
				return nil
			}
			cmd.Printf("recovered %d section(s) into %s\n", n, cfg.Paths.LogDir)
			return nil
		},
	}
}
