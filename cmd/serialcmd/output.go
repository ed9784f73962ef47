// cmd/serialcmd/output.go
package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"serial-commander/internal/executor"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("40")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// reportedError marks an error that was already shown to the user
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func printSuccess(w io.Writer, port, message, line string) {
	fmt.Fprintf(w, "%s Command sent to %s: [%s]\n", successStyle.Render("SUCCESS:"), port, message)
	fmt.Fprintf(w, "%s [%s]\n", labelStyle.Render("RESPONSE:"), line)
}

func printFailure(w io.Writer, port, message string, err error) {
	fmt.Fprintf(w, "%s Command failed to send to %s: '%s'\n", errorStyle.Render("ERROR:"), port, message)

	var execErr *executor.ExecutionError
	if errors.As(err, &execErr) {
		fmt.Fprintf(w, "%s\n", detailStyle.Render(fmt.Sprintf("  attempts: %d", execErr.Attempts)))
		fmt.Fprintf(w, "%s\n", detailStyle.Render(fmt.Sprintf("  last failure: %v", execErr.Last)))
		return
	}
	fmt.Fprintf(w, "%s\n", detailStyle.Render(fmt.Sprintf("  %v", err)))
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", errorStyle.Render("ERROR:"), err)
}
