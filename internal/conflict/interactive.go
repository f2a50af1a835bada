package conflict

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Interactive asks through a terminal confirm form.
type Interactive struct{}

func (Interactive) Resolve(ctx context.Context, destination string) (Decision, error) {
	overwrite := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Destination already exists").
			Description(destination).
			Affirmative("Overwrite").
			Negative("Skip").
			Value(&overwrite),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return Skip, err
	}
	if overwrite {
		return Overwrite, nil
	}
	return Skip, nil
}

// ForTerminal returns the terminal form when in is a TTY and a line-based
// prompt otherwise.
func ForTerminal(in *os.File, out io.Writer) Resolver {
	if isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()) {
		return Interactive{}
	}
	return NewPrompt(in, out)
}
