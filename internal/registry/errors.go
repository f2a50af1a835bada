package registry

import (
	"errors"
	"fmt"
)

// ErrNoDescriptor indicates a module directory without a module.yaml/.yml.
var ErrNoDescriptor = errors.New("no descriptor file found")

// DescriptorError records a module candidate that failed to load. It is
// isolated: the candidate is skipped and loading continues.
type DescriptorError struct {
	Module string
	Path   string
	Err    error
}

func (e *DescriptorError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("module %s: %s: %v", e.Module, e.Path, e.Err)
	}
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *DescriptorError) Unwrap() error { return e.Err }

// ProbeWarning records a non-fatal probe failure, such as a profiles script
// exiting non-zero. The module still loads with an empty profile list.
type ProbeWarning struct {
	Module string
	Err    error
}

func (w *ProbeWarning) Error() string {
	return fmt.Sprintf("module %s: profile probe: %v", w.Module, w.Err)
}

func (w *ProbeWarning) Unwrap() error { return w.Err }
