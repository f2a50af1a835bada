package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/models"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newBackupCmd(a *app) *cobra.Command {
	var (
		dest    string
		format  string
		workers int
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "backup [module...]",
		Short: "Back up modules into a single archive",
		Example: `  modbackup backup editor shell --dest ~/backups
  modbackup backup --all --format tar.gz`,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			ops, err := a.operations(ctx)
			if err != nil {
				return err
			}

			modules := args
			if all && len(args) > 0 {
				return errors.New("--all cannot be combined with module names")
			}
			if all {
				modules = a.registry.Current().Names()
			}
			if len(modules) == 0 {
				return errors.New("no modules given; pass module names or --all")
			}

			report, err := ops.Backup(ctx, &models.BackupRequest{
				Modules:     modules,
				Destination: dest,
				Format:      format,
				Workers:     workers,
			})
			if report == nil {
				return err
			}

			printBackupReport(cmd.OutOrStdout(), report)
			if err != nil {
				return &exitError{code: exitFailure}
			}
			if !report.OK() {
				return &exitError{code: exitPartial}
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination directory (default backup.destination)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "archive format: zip or tar.gz (default backup.format)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "modules backed up in parallel (default backup.workers)")
	cmd.Flags().BoolVar(&all, "all", false, "back up every registered module")

	return cmd
}
