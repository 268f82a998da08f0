package driver

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistsKnownCommand(t *testing.T) {
	d := New("orchestra")
	assert.True(t, d.Exists("go"))
	assert.False(t, d.Exists("definitely-not-a-real-command-xyz"))
}

func TestExecuteCapturesOutputAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-dependent test")
	}
	d := New("orchestra")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := d.Execute(ctx, "sh", []string{"-c", "echo hello; exit 3"}, ".", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "hello")
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecuteStreamingSplitsLines(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-dependent test")
	}
	d := New("orchestra")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	res, err := d.ExecuteStreaming(ctx, "sh", []string{"-c", "echo one; echo two"}, ".", func(l string) {
		lines = append(lines, l)
	}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.ElementsMatch(t, []string{"one", "two"}, lines)
}

func TestQuoteShellArgEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, quoteShellArg("it's"))
	assert.Equal(t, `'plain'`, quoteShellArg("plain"))
}
