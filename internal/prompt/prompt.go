// Package prompt asks the operator questions on the terminal.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrNotTerminal is returned when input is not an interactive terminal.
var ErrNotTerminal = errors.New("prompt: input is not a terminal")

// Confirm asks yes/no questions with a huh confirm field.
type Confirm struct {
	// Accessible switches huh to its plain-text mode (screen readers,
	// dumb terminals).
	Accessible bool
}

// Confirm shows question and waits for an answer.
func (c Confirm) Confirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).WithAccessible(c.Accessible)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirm: %w", err)
	}
	return ok, nil
}

// Fixed answers every question the same way; used with --yes and --no.
type Fixed bool

// Confirm returns the fixed answer.
func (f Fixed) Confirm(context.Context, string) (bool, error) {
	return bool(f), nil
}

// Password reads a secret without echo.
type Password struct {
	In    *os.File
	Out   io.Writer
	Label string
}

// NewPassword reads from stdin and prompts on stderr.
func NewPassword(label string) Password {
	return Password{In: os.Stdin, Out: os.Stderr, Label: label}
}

// Read prompts and returns the entered secret.
func (p Password) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotTerminal
	}
	fmt.Fprint(p.Out, p.Label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
