// Package runner executes module scripts as trusted external commands.
//
// A script receives at most one directory argument and reports back through
// its exit status and, for profile probes, its standard output. Nothing else
// about a script's behaviour is assumed.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrScriptTimeout indicates a script exceeded its execution timeout.
	ErrScriptTimeout = errors.New("script timed out")
	// ErrNonZeroExit indicates a script exited with a non-zero status.
	ErrNonZeroExit = errors.New("script exited with non-zero status")
)

// ScriptError describes a failed script invocation: launch failure,
// non-zero exit or timeout.
type ScriptError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ScriptError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s: %v (exit code %d)", filepath.Base(e.Path), e.Err, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Command is a single script invocation.
type Command struct {
	Path string
	Args []string
	// Dir is the working directory, normally the module directory.
	Dir     string
	Timeout time.Duration
}

// Result is what a finished script reported.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner runs external commands. Implementations block until the command exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ShellRunner runs scripts through an interpreter such as bash, or directly
// when no shell is configured.
type ShellRunner struct {
	shell         string
	maxOutputSize int
}

// New creates a ShellRunner. maxOutputSize caps captured stdout/stderr per stream.
func New(shell string, maxOutputSize int) *ShellRunner {
	if maxOutputSize <= 0 {
		maxOutputSize = 1 << 20
	}
	return &ShellRunner{shell: shell, maxOutputSize: maxOutputSize}
}

// Run executes cmd and waits for it to exit. A non-zero exit, launch failure
// or timeout is returned as a *ScriptError alongside the partial Result.
func (r *ShellRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	// The command runs from cmd.Dir, so a relative script path is resolved
	// against the caller's working directory first.
	if cmd.Dir != "" && !filepath.IsAbs(cmd.Path) {
		if abs, err := filepath.Abs(cmd.Path); err == nil {
			cmd.Path = abs
		}
	}

	var c *exec.Cmd
	if r.shell != "" {
		c = exec.CommandContext(ctx, r.shell, append([]string{cmd.Path}, cmd.Args...)...)
	} else {
		c = exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	}
	c.Dir = cmd.Dir
	c.WaitDelay = 2 * time.Second

	outBuf := &cappedBuffer{limit: r.maxOutputSize}
	errBuf := &cappedBuffer{limit: r.maxOutputSize}
	c.Stdout = outBuf
	c.Stderr = &lineLogger{name: filepath.Base(cmd.Path), buf: errBuf}

	log.Printf("[Runner] Running %s %v", cmd.Path, cmd.Args)
	start := time.Now()

	if err := c.Start(); err != nil {
		log.Printf("[Runner] Error starting %s: %v", cmd.Path, err)
		return nil, &ScriptError{Path: cmd.Path, ExitCode: -1, Err: err}
	}

	// WaitDelay bounds how long Wait blocks on pipes held open by orphaned
	// grandchildren after the script itself was killed.
	err := c.Wait()

	res := &Result{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.ExitCode = -1
			log.Printf("[Runner] %s timed out after %v", cmd.Path, cmd.Timeout)
			return res, &ScriptError{Path: cmd.Path, ExitCode: -1, Stderr: res.Stderr, Err: ErrScriptTimeout}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			log.Printf("[Runner] %s exited with code %d", cmd.Path, res.ExitCode)
			return res, &ScriptError{Path: cmd.Path, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: ErrNonZeroExit}
		}
		res.ExitCode = -1
		return res, &ScriptError{Path: cmd.Path, ExitCode: -1, Stderr: res.Stderr, Err: err}
	}

	log.Printf("[Runner] Finished %s in %v", cmd.Path, res.Duration.Round(time.Millisecond))
	return res, nil
}

// lineLogger captures stderr and mirrors each complete line to the log.
type lineLogger struct {
	name    string
	buf     *cappedBuffer
	partial []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	_, _ = l.buf.Write(p)
	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		log.Printf("[Runner] %s: %s", l.name, l.partial[:i])
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

// cappedBuffer keeps the first limit bytes and silently discards the rest so
// a chatty script cannot exhaust memory.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
