package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/models"
)

func newRemoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage saved remotes archives can be restored from",
	}

	var req models.CreateRemoteRequest
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a remote; its password is stored encrypted",
		Example: `  modbackup remote add nas --protocol ftp --host 192.168.1.10 --user backup --password secret
  modbackup remote add offsite --protocol s3 --host my-bucket --region eu-west-1
  modbackup remote add gcs --protocol gs --host my-bucket --credentials-file ~/key.json`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.openDB(); err != nil {
				return err
			}
			req.Name = args[0]
			remote, err := a.remotes.Create(&req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Saved remote %s (%s://%s)\n", styleOK.Render("✓"), remote.Name, remote.Protocol, remote.Host)
			return nil
		}),
	}
	addCmd.Flags().StringVar(&req.Protocol, "protocol", "", "ftp, http, https, s3 or gs")
	addCmd.Flags().StringVar(&req.Host, "host", "", "server host, or bucket for s3 and gs")
	addCmd.Flags().IntVar(&req.Port, "port", 0, "server port")
	addCmd.Flags().StringVar(&req.Username, "user", "", "username, or access key id for s3")
	addCmd.Flags().StringVar(&req.Password, "password", "", "password, or secret access key for s3")
	addCmd.Flags().StringVar(&req.Region, "region", "", "s3 region")
	addCmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "s3 compatible endpoint URL")
	addCmd.Flags().StringVar(&req.CredentialsFile, "credentials-file", "", "gs service account key file")
	_ = addCmd.MarkFlagRequired("protocol")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved remotes",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.openDB(); err != nil {
				return err
			}
			remotes, err := a.remotes.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(remotes) == 0 {
				fmt.Fprintln(out, "No remotes saved.")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "NAME\tPROTOCOL\tHOST\tPORT\tUSER")
			for _, r := range remotes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Name, r.Protocol, r.Host, r.Port, r.Username)
			}
			return tw.Flush()
		}),
	}

	removeCmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved remote",
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.openDB(); err != nil {
				return err
			}
			if err := a.remotes.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed remote %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}
