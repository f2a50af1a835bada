package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "modbackup",
		Short: "Back up and restore application configuration, one module at a time",
		Long: `modbackup discovers modules (a directory with a module.yaml) and backs
up the paths and profiles they declare into a single zip or tar.gz archive.
Archives can be restored in full or per profile, from disk or a remote.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(
		newBackupCmd(a),
		newRestoreCmd(a),
		newModulesCmd(a),
		newHistoryCmd(a),
		newRemoteCmd(a),
		newServeCmd(a),
		newServiceCmd(a),
		newPasswdCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}
