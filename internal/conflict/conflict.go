// Package conflict decides what happens when a restore target already exists.
package conflict

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Decision is the outcome for one conflicting destination. The zero value
// is Skip, so an unresolved conflict never destroys data.
type Decision int

const (
	Skip Decision = iota
	Overwrite
)

func (d Decision) String() string {
	if d == Overwrite {
		return "overwrite"
	}
	return "skip"
}

// ParseDecision parses "overwrite" or "skip".
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return Overwrite, nil
	case "skip":
		return Skip, nil
	default:
		return Skip, fmt.Errorf("unknown conflict decision %q", s)
	}
}

// Resolver is asked once per existing destination, in restore order.
// Callers treat an error as Skip.
type Resolver interface {
	Resolve(ctx context.Context, destination string) (Decision, error)
}

// Func adapts a function to a Resolver.
type Func func(ctx context.Context, destination string) (Decision, error)

func (f Func) Resolve(ctx context.Context, destination string) (Decision, error) {
	return f(ctx, destination)
}

// Static always returns the same decision.
type Static Decision

func (s Static) Resolve(context.Context, string) (Decision, error) {
	return Decision(s), nil
}

var (
	AlwaysOverwrite Resolver = Static(Overwrite)
	AlwaysSkip      Resolver = Static(Skip)
)

// ErrNoAnswer is returned when the prompt input ends before an answer.
var ErrNoAnswer = errors.New("no answer")

// Prompt asks on Out and reads a y/N answer per line from In.
type Prompt struct {
	out io.Writer

	mu sync.Mutex
	in *bufio.Reader
}

// NewPrompt creates a line-based prompt.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

func (p *Prompt) Resolve(ctx context.Context, destination string) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Skip, err
	}

	fmt.Fprintf(p.out, "%s already exists. Overwrite? [y/N] ", destination)
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		fmt.Fprintln(p.out)
		if errors.Is(err, io.EOF) {
			return Skip, ErrNoAnswer
		}
		return Skip, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Overwrite, nil
	default:
		return Skip, nil
	}
}
