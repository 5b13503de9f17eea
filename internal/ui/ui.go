// Package ui provides formatted terminal output and line-based
// prompts for the recontext CLI.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	heading = color.New(color.Bold, color.Underline).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	blue    = color.New(color.FgBlue).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	banner  = color.New(color.BgYellow, color.FgBlack).SprintFunc()
)

// ErrNoInput is returned by prompts when input ends before a
// line is read.
var ErrNoInput = errors.New("no input")

// UI writes messages to Out and reads answers from In.
type UI struct {
	Out io.Writer
	In  *bufio.Reader
}

// New returns a UI over the given streams.
func New(out io.Writer, in io.Reader) *UI {
	return &UI{Out: out, In: bufio.NewReader(in)}
}

// Heading prints an underlined section title.
func (u *UI) Heading(format string, args ...any) {
	fmt.Fprintf(u.Out, "\n%s\n\n", heading(fmt.Sprintf(format, args...)))
}

// Info prints an informational message.
func (u *UI) Info(format string, args ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", blue("ℹ"), fmt.Sprintf(format, args...))
}

// Success prints a success message with a green checkmark.
func (u *UI) Success(format string, args ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", green("✔"), fmt.Sprintf(format, args...))
}

// Fail prints an error message in red.
func (u *UI) Fail(format string, args ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", red("✖"), red(fmt.Sprintf(format, args...)))
}

// Warn prints a warning in yellow.
func (u *UI) Warn(format string, args ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", yellow("⚠"), yellow(fmt.Sprintf(format, args...)))
}

// Bullet prints an indented warning marker before s.
func (u *UI) Bullet(s string) {
	fmt.Fprintf(u.Out, "  %s %s\n", yellow("⚠"), s)
}

// Migration prints a from -> to pair.
func (u *UI) Migration(from, to string) {
	fmt.Fprintf(u.Out, "  %s\n  %s %s\n", dim(from), cyan("→"), green(to))
}

// FileUpdated prints an indented, dimmed path with a checkmark.
func (u *UI) FileUpdated(path string) {
	fmt.Fprintf(u.Out, "  %s %s\n", green("✔"), dim(path))
}

// DryRunBanner announces that nothing will be written.
func (u *UI) DryRunBanner() {
	fmt.Fprintf(u.Out, "%s No changes will be made.\n\n", banner(" DRY RUN "))
}

// ProjectLine prints one numbered project in a listing. Paths
// that were only estimated are dimmed and marked.
func (u *UI) ProjectLine(idx, width int, path string, estimated bool) {
	label := path
	if estimated {
		label = dim(path + " (estimated)")
	}
	fmt.Fprintf(u.Out, "  %s. %s\n", cyan(fmt.Sprintf("%*d", width, idx)), label)
}

// Detail prints a dimmed line aligned under a ProjectLine.
func (u *UI) Detail(width int, s string) {
	fmt.Fprintf(u.Out, "  %s  %s\n", strings.Repeat(" ", width), dim(s))
}

// Blank prints an empty line.
func (u *UI) Blank() {
	fmt.Fprintln(u.Out)
}

// Prompt prints question and returns the trimmed answer.
func (u *UI) Prompt(question string) (string, error) {
	fmt.Fprint(u.Out, bold(question))
	line, err := u.In.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if err != nil && line == "" {
		return "", ErrNoInput
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. Only "y" or "yes" (any case)
// count as yes.
func (u *UI) Confirm(question string) (bool, error) {
	answer, err := u.Prompt(question + " (y/N): ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
