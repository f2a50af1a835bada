package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/conflict"
	"github.com/pandeptwidyaop/modbackup/internal/models"
)

func newRestoreCmd(a *app) *cobra.Command {
	var (
		req       models.RestoreRequest
		overwrite bool
		skip      bool
	)

	cmd := &cobra.Command{
		Use:   "restore [archive]",
		Short: "Restore a module from an archive",
		Long: `Restore replays an archive against the module registered under the same
name. Without --profiles every declared path and profile is restored; with
--profiles only the selected profiles are.

Existing destinations are handled by --overwrite or --skip, or by
restore.conflict in the config (prompt asks for each one on a terminal).

The archive can be fetched first from a saved remote (--remote) or an ad hoc
server (--protocol, --server...), naming the file with --remote-file.`,
		Example: `  modbackup restore ~/backups/backup_20261019083000.zip
  modbackup restore backup.zip --profiles work,home --overwrite
  modbackup restore --remote nas --remote-file backup_20261019083000.zip
  modbackup restore --protocol ftp --server 192.168.1.10 --user u --password p --remote-file backup.zip`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				req.Archive = abs
			}
			if req.Archive == "" && req.RemoteFile == "" {
				return errors.New("give an archive path or --remote-file")
			}
			if req.Archive != "" && req.RemoteFile != "" {
				return errors.New("an archive path cannot be combined with --remote-file")
			}

			resolver, err := a.resolver(overwrite, skip)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			ops, err := a.operations(ctx)
			if err != nil {
				return err
			}

			report, err := ops.Restore(ctx, &req, resolver)
			if report == nil {
				return err
			}

			printRestoreReport(cmd.OutOrStdout(), report)
			if err != nil {
				return &exitError{code: exitFailure}
			}
			if !report.OK() {
				return &exitError{code: exitPartial}
			}
			return nil
		}),
	}

	cmd.Flags().StringSliceVarP(&req.Profiles, "profiles", "p", nil, "restore only these profiles (comma separated)")
	cmd.Flags().StringVarP(&req.Module, "module", "m", "", "module to restore from a multi-module archive")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing destinations")
	cmd.Flags().BoolVar(&skip, "skip", false, "leave existing destinations untouched")
	cmd.MarkFlagsMutuallyExclusive("overwrite", "skip")

	cmd.Flags().StringVar(&req.Remote, "remote", "", "saved remote to fetch the archive from")
	cmd.Flags().StringVar(&req.RemoteFile, "remote-file", "", "archive name or key on the remote")
	cmd.Flags().StringVar(&req.Protocol, "protocol", "", "ad hoc remote protocol: ftp, http, https, s3, gs")
	cmd.Flags().StringVar(&req.Server, "server", "", "ad hoc remote host or bucket")
	cmd.Flags().IntVar(&req.Port, "port", 0, "ad hoc remote port")
	cmd.Flags().StringVar(&req.Username, "user", "", "ad hoc remote username")
	cmd.Flags().StringVar(&req.Password, "password", "", "ad hoc remote password")
	cmd.MarkFlagsMutuallyExclusive("remote", "protocol")

	return cmd
}

// resolver picks how conflicts are decided: flags first, then
// restore.conflict. "prompt" asks on the terminal when stdin is one.
func (a *app) resolver(overwrite, skip bool) (conflict.Resolver, error) {
	switch {
	case overwrite:
		return conflict.AlwaysOverwrite, nil
	case skip:
		return conflict.AlwaysSkip, nil
	}

	if a.cfg.Restore.Conflict == "prompt" {
		return conflict.ForTerminal(os.Stdin, a.stderr), nil
	}
	d, err := conflict.ParseDecision(a.cfg.Restore.Conflict)
	if err != nil {
		return nil, fmt.Errorf("restore.conflict: %w", err)
	}
	return conflict.Static(d), nil
}
