package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/services"
	"github.com/pandeptwidyaop/modbackup/internal/validation"
)

func newPasswdCmd(a *app) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Hash a password for auth.password_hash",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var password string
			var err error
			if fromStdin || !isatty.IsTerminal(os.Stdin.Fd()) {
				password, err = readPasswordLine(cmd.InOrStdin())
			} else {
				password, err = promptPassword()
			}
			if err != nil {
				return err
			}

			if err := validation.ValidatePassword(password, validation.DefaultPasswordPolicy()); err != nil {
				return err
			}

			hash, err := services.NewAuthService(a.cfg).HashPassword(password)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Strength: %d/100\n\n", validation.PasswordStrength(password))
			fmt.Fprintln(out, "Add to your config:")
			fmt.Fprintf(out, "auth:\n  username: %q\n  password_hash: %q\n", a.cfg.Auth.Username, hash)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the password from standard input")
	return cmd
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptPassword() (string, error) {
	var password, confirm string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				return validation.ValidatePassword(s, validation.DefaultPasswordPolicy())
			}).
			Value(&password),
		huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if s != password {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}).
			Value(&confirm),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}
