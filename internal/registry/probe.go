package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
)

// DetectData reports whether any declared backup path exists once "~" is
// expanded to home. It stops at the first hit.
func DetectData(desc models.Descriptor, home string) bool {
	for _, p := range desc.BackupPaths {
		if fsutil.Exists(fsutil.ExpandHome(p, home)) {
			return true
		}
	}
	return false
}

// DetectProfiles runs the profiles script with no arguments and returns its
// non-empty, trimmed output lines in order. Without a script the list is
// empty. A failing script yields an empty list and a ProbeWarning error.
func DetectProfiles(ctx context.Context, r runner.Runner, moduleID, moduleDir string, desc models.Descriptor, timeout time.Duration) ([]string, error) {
	if desc.ProfilesCommand == "" {
		return []string{}, nil
	}

	res, err := r.Run(ctx, runner.Command{
		Path:    desc.ProfilesCommand,
		Dir:     moduleDir,
		Timeout: timeout,
	})
	if err != nil {
		return []string{}, &ProbeWarning{Module: moduleID, Err: err}
	}

	profiles := []string{}
	var rejected []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if !fsutil.ValidName(name) {
			rejected = append(rejected, name)
			continue
		}
		profiles = append(profiles, name)
	}

	if len(rejected) > 0 {
		return profiles, &ProbeWarning{Module: moduleID, Err: fmt.Errorf("ignored invalid profile names %q", rejected)}
	}
	return profiles, nil
}
