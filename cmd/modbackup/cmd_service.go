package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/service"
)

func newServiceCmd(a *app) *cobra.Command {
	var system bool
	scope := func() service.Scope {
		if system {
			return service.SystemScope
		}
		return service.UserScope
	}

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the systemd unit running `modbackup serve`",
	}
	cmd.PersistentFlags().BoolVar(&system, "system", false, "use a system unit instead of a user unit")

	var user string
	var printOnly bool
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install, enable and start the unit",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			unit := service.DefaultUnit(scope(), a.configPath)
			if user != "" {
				unit.User = user
			}
			if printOnly {
				content, err := service.Render(unit)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}

			if err := service.Install(unit); err != nil {
				return err
			}
			path, _ := service.UnitPath(unit.Scope)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Installed %s\n", styleOK.Render("✓"), path)
			return nil
		}),
	}
	installCmd.Flags().StringVar(&user, "user", "", "account a system unit runs as")
	installCmd.Flags().BoolVar(&printOnly, "print", false, "print the unit file instead of installing it")

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop, disable and remove the unit",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := service.Uninstall(scope()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Service removed.")
			return nil
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the unit is installed and running",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			st, err := service.GetStatus(scope())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Unit:      %s (%s)\n", st.UnitPath, st.Scope)
			fmt.Fprintf(out, "Installed: %t\n", st.IsInstalled)
			fmt.Fprintf(out, "Enabled:   %t\n", st.IsEnabled)
			state := st.ActiveState
			if st.SubState != "" {
				state += " (" + st.SubState + ")"
			}
			if state == "" {
				state = styleMuted.Render("unknown")
			}
			fmt.Fprintf(out, "State:     %s\n", state)
			return nil
		}),
	}

	cmd.AddCommand(installCmd, uninstallCmd, statusCmd)
	return cmd
}
