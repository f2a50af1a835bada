// Package service installs `modbackup serve` as a systemd unit.
//
// Modules back up per-user configuration, so the default unit is a user
// unit under ~/.config/systemd/user managed with `systemctl --user`. A
// system unit is installed only when Scope is SystemScope.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const unitName = "modbackup.service"

// Scope selects between a per-user and a system-wide unit.
type Scope string

const (
	UserScope   Scope = "user"
	SystemScope Scope = "system"
)

var (
	ErrUnsupported  = errors.New("systemd units are only supported on Linux with systemctl")
	ErrRootRequired = errors.New("root privileges required for a system unit")
)

// Status represents the state of the installed unit.
type Status struct {
	Scope       Scope  `json:"scope"`
	UnitPath    string `json:"unit_path"`
	IsInstalled bool   `json:"is_installed"`
	IsEnabled   bool   `json:"is_enabled"`
	IsRunning   bool   `json:"is_running"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// Unit holds the values rendered into the unit file.
type Unit struct {
	Scope      Scope
	ExecPath   string
	ConfigPath string
	WorkingDir string
	// User runs a system unit as this account; ignored for user units.
	User string
}

const unitTemplate = `[Unit]
Description=modbackup - module based configuration backup API
After=network.target

[Service]
Type=simple
{{- if and (eq .Scope "system") .User}}
User={{.User}}
Group={{.User}}
{{- end}}
WorkingDirectory={{.WorkingDir}}
ExecStart={{.ExecPath}} serve --config {{.ConfigPath}}
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
NoNewPrivileges=true
PrivateTmp=true

[Install]
WantedBy={{if eq .Scope "system"}}multi-user.target{{else}}default.target{{end}}
`

// Supported reports whether this host can manage systemd units.
func Supported() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := exec.LookPath("systemctl")
	return err == nil
}

// DefaultUnit returns a unit for the running executable and configPath.
func DefaultUnit(scope Scope, configPath string) Unit {
	execPath, _ := os.Executable()
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	return Unit{
		Scope:      scope,
		ExecPath:   execPath,
		ConfigPath: configPath,
		WorkingDir: filepath.Dir(configPath),
		User:       "root",
	}
}

// Render returns the unit file content.
func Render(u Unit) (string, error) {
	if u.Scope == "" {
		u.Scope = UserScope
	}
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, u); err != nil {
		return "", fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.String(), nil
}

// UnitPath returns where the unit file for scope lives.
func UnitPath(scope Scope) (string, error) {
	if scope == SystemScope {
		return filepath.Join("/etc/systemd/system", unitName), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "systemd", "user", unitName), nil
}

// Install writes, enables and starts the unit.
func Install(u Unit) error {
	if err := preflight(u.Scope); err != nil {
		return err
	}

	content, err := Render(u)
	if err != nil {
		return err
	}
	path, err := UnitPath(u.Scope)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if err := systemctl(u.Scope, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := systemctl(u.Scope, "enable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to enable unit: %w", err)
	}
	return nil
}

// Uninstall stops, disables and removes the unit.
func Uninstall(scope Scope) error {
	if err := preflight(scope); err != nil {
		return err
	}

	_ = systemctl(scope, "disable", "--now", unitName)

	path, err := UnitPath(scope)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}

	if err := systemctl(scope, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}

// GetStatus reports the unit state. On hosts without systemd only Scope and
// UnitPath are filled in.
func GetStatus(scope Scope) (*Status, error) {
	path, err := UnitPath(scope)
	if err != nil {
		return nil, err
	}
	status := &Status{Scope: scope, UnitPath: path}

	if _, err := os.Stat(path); err == nil {
		status.IsInstalled = true
	}
	if !Supported() {
		return status, nil
	}

	if v, err := property(scope, "ActiveState"); err == nil {
		status.ActiveState = v
		status.IsRunning = v == "active"
	}
	if v, err := property(scope, "SubState"); err == nil {
		status.SubState = v
	}
	if out, err := exec.Command("systemctl", scopeArgs(scope, "is-enabled", unitName)...).Output(); err == nil {
		status.IsEnabled = strings.TrimSpace(string(out)) == "enabled"
	}

	return status, nil
}

// IsRunningAsService reports whether systemd started this process.
func IsRunningAsService() bool {
	return os.Getenv("INVOCATION_ID") != ""
}

func preflight(scope Scope) error {
	if !Supported() {
		return ErrUnsupported
	}
	if scope == SystemScope && os.Geteuid() != 0 {
		return ErrRootRequired
	}
	return nil
}

func scopeArgs(scope Scope, args ...string) []string {
	if scope == SystemScope {
		return args
	}
	return append([]string{"--user"}, args...)
}

func systemctl(scope Scope, args ...string) error {
	output, err := exec.Command("systemctl", scopeArgs(scope, args...)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func property(scope Scope, name string) (string, error) {
	out, err := exec.Command("systemctl", scopeArgs(scope, "show", unitName, "--property="+name, "--value")...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
