package driver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// pollHz is the multiplexer's poll cadence, per spec §4.1.
const pollHz = 1.0

// metadataDir is the per-workspace directory name under which the
// multiplexer's temp files live: <workspace>/.orchestra/tmp/<session>.{out,exit}.
const metadataDir = ".orchestra"

var sessionNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9-]`)

// Multiplexer runs a command inside a detached tmux session and polls a
// pair of sibling files for progress and exit status, so a human can
// attach to a failing agent instead of only seeing a captured log.
type Multiplexer struct {
	prefix string
}

// NewMultiplexer returns a Multiplexer whose session names share prefix.
func NewMultiplexer(prefix string) *Multiplexer {
	return &Multiplexer{prefix: prefix}
}

// SessionName derives "<prefix>-<agentId>-<taskSlug>", lower-cased, with
// every character outside [A-Za-z0-9-] replaced by '-'.
func (m *Multiplexer) SessionName(agentID, taskSlug string) string {
	return SessionName(m.prefix, agentID, taskSlug)
}

// SessionName is the pure naming function, exported so the Agent Runtime
// can compute and record a session's name before the multiplexer itself
// starts the session — both sides must agree on the same formula.
func SessionName(prefix, agentID, taskSlug string) string {
	raw := fmt.Sprintf("%s-%s-%s", prefix, agentID, taskSlug)
	return strings.ToLower(sessionNameSanitizer.ReplaceAllString(raw, "-"))
}

// Run starts command under tmux, polls for output and exit status, and
// streams lines to onLine in the same split-at-newline fashion as direct
// streaming. opts.AgentID and opts.TaskSlug determine the session name;
// temp files live under <workDir>/.orchestra/tmp per spec §6.
func (m *Multiplexer) Run(ctx context.Context, command string, args []string, workDir string, onLine func(string), opts Options) (*StreamResult, error) {
	sessionName := SessionName(m.prefix, opts.AgentID, opts.TaskSlug)

	tmpDir := filepath.Join(workDir, metadataDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("create multiplexer tmp dir: %w", err)
	}
	outPath := filepath.Join(tmpDir, sessionName+".out")
	exitPath := filepath.Join(tmpDir, sessionName+".exit")

	if err := exec.CommandContext(ctx, "tmux", "has-session", "-t", sessionName).Run(); err == nil {
		return nil, fmt.Errorf("tmux session %s already exists", sessionName)
	}

	shellCmd := buildTmuxShellCommand(command, args, workDir, outPath, exitPath)
	startCmd := exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", sessionName, "bash", "-c", shellCmd)
	if err := startCmd.Run(); err != nil {
		return nil, fmt.Errorf("tmux new-session: %w", err)
	}

	return m.poll(ctx, sessionName, outPath, exitPath, onLine)
}

// buildTmuxShellCommand pipes the target command's merged output through
// tee into outPath, captures the exit status into exitPath, and — only if
// that status is non-zero — prints a debug banner and blocks so a human
// can attach.
func buildTmuxShellCommand(command string, args []string, workDir, outPath, exitPath string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteShellArg(command))
	for _, a := range args {
		parts = append(parts, quoteShellArg(a))
	}
	inner := strings.Join(parts, " ")

	return fmt.Sprintf(
		`cd %s && (%s) 2>&1 | tee %s; status=${PIPESTATUS[0]:-$?}; echo $status > %s; `+
			`if [ "$status" != "0" ]; then echo; echo '--- agent exited non-zero, attach to inspect ---'; `+
			`echo "exit status: $status"; exec bash; fi`,
		quoteShellArg(workDir), inner, quoteShellArg(outPath), quoteShellArg(exitPath),
	)
}

// poll reads new bytes from outPath at pollHz, streaming them to onLine
// line by line, until exitPath exists and parses as an integer, or the
// session disappears without an exit file (exit code 1).
func (m *Multiplexer) poll(ctx context.Context, sessionName, outPath, exitPath string, onLine func(string)) (*StreamResult, error) {
	limiter := rate.NewLimiter(rate.Limit(pollHz), 1)
	var offset int64
	var pending strings.Builder

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("poll wait: %w", err)
		}

		newOffset, err := readNewLines(outPath, offset, &pending, onLine)
		if err == nil {
			offset = newOffset
		}

		if code, ok := readExitCode(exitPath); ok {
			// Drain any trailing partial line without a terminating newline.
			if pending.Len() > 0 {
				onLine(strings.TrimSpace(pending.String()))
				pending.Reset()
			}
			return &StreamResult{ExitCode: code, Stdout: readFullOutput(outPath)}, nil
		}

		if !sessionAlive(ctx, sessionName) {
			if code, ok := readExitCode(exitPath); ok {
				return &StreamResult{ExitCode: code, Stdout: readFullOutput(outPath)}, nil
			}
			return &StreamResult{ExitCode: 1, Stdout: readFullOutput(outPath)}, nil
		}
	}
}

// readNewLines reads bytes appended to path since offset, feeding
// complete lines to onLine and buffering any trailing partial line in
// pending across calls. Returns the new read offset.
func readNewLines(path string, offset int64, pending *strings.Builder, onLine func(string)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return offset, err
	}

	reader := bufio.NewReader(f)
	var read int64
	for {
		chunk, err := reader.ReadString('\n')
		read += int64(len(chunk))
		if strings.HasSuffix(chunk, "\n") {
			pending.WriteString(chunk)
			line := strings.TrimSpace(pending.String())
			pending.Reset()
			if line != "" {
				onLine(line)
			}
		} else if chunk != "" {
			pending.WriteString(chunk)
		}
		if err != nil {
			break
		}
	}

	return offset + read, nil
}

// readFullOutput returns the full contents of the multiplexer's output
// file at termination, or empty string if it cannot be read.
func readFullOutput(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// readExitCode reads and parses the exit file, if present.
func readExitCode(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return code, true
}

// sessionAlive reports whether the named tmux session still exists.
func sessionAlive(ctx context.Context, sessionName string) bool {
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", sessionName)
	return cmd.Run() == nil
}

// Kill best-effort terminates a named tmux session.
func (m *Multiplexer) Kill(ctx context.Context, sessionName string) error {
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", sessionName)
	return cmd.Run()
}
