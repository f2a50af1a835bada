package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newModulesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"ls"},
		Short:   "List registered modules",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			snap := a.loadRegistry(context.Background()).Current()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Modules())
			}

			if snap.Len() == 0 {
				fmt.Fprintf(out, "No modules found in %s\n", snap.Root())
			} else {
				tw := newTable(out)
				fmt.Fprintln(tw, "MODULE\tNAME\tVERSION\tDATA\tPROFILES\tMODE")
				for _, m := range snap.Modules() {
					data := styleMuted.Render("absent")
					if m.DataPresent {
						data = styleOK.Render("present")
					}
					mode := "paths"
					if m.Descriptor.BackupCommand != "" {
						mode = "script"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						m.ID, m.DisplayName(), m.Descriptor.Version, data, strings.Join(m.Profiles, ","), mode)
				}
				tw.Flush()
			}

			for _, f := range snap.Failures() {
				fmt.Fprintf(out, "%s %s\n", styleError.Render("✗"), f.Error())
			}
			for _, w := range snap.Warnings() {
				fmt.Fprintf(out, "%s %s\n", styleWarn.Render("•"), w.Error())
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print modules as JSON")
	return cmd
}
