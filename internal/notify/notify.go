// Package notify is the ambient notification capability: colorized
// progress and summary output, matching the teacher's cmd/vc console
// idiom (color.Green/Yellow/Red wrapping check/warn/fail prefixes).
package notify

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Notifier is the capability the Scheduler and Merge Pipeline depend on,
// so they are never coupled to a concrete writer.
type Notifier interface {
	Info(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Fail(format string, args ...interface{})
}

// Console writes colorized lines to an io.Writer (os.Stdout by default).
type Console struct {
	w io.Writer
}

// NewConsole returns a Console writing to os.Stdout.
func NewConsole() *Console {
	return &Console{w: os.Stdout}
}

func (c *Console) Info(format string, args ...interface{}) {
	fmt.Fprintf(c.w, "%s %s\n", color.CyanString("→"), fmt.Sprintf(format, args...))
}

func (c *Console) Success(format string, args ...interface{}) {
	fmt.Fprintf(c.w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func (c *Console) Warn(format string, args ...interface{}) {
	fmt.Fprintf(c.w, "%s %s\n", color.YellowString("⚠"), fmt.Sprintf(format, args...))
}

func (c *Console) Fail(format string, args ...interface{}) {
	fmt.Fprintf(c.w, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}

// Recording is a test double that records every call instead of writing
// to a stream.
type Recording struct {
	Lines []string
}

func (r *Recording) Info(format string, args ...interface{}) {
	r.Lines = append(r.Lines, "info: "+fmt.Sprintf(format, args...))
}

func (r *Recording) Success(format string, args ...interface{}) {
	r.Lines = append(r.Lines, "success: "+fmt.Sprintf(format, args...))
}

func (r *Recording) Warn(format string, args ...interface{}) {
	r.Lines = append(r.Lines, "warn: "+fmt.Sprintf(format, args...))
}

func (r *Recording) Fail(format string, args ...interface{}) {
	r.Lines = append(r.Lines, "fail: "+fmt.Sprintf(format, args...))
}
