// Package runner executes the external tools sittr drives.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes one external process invocation.
type Cmd struct {
	Name string
	Args []string
	// Elevate runs the command through sudo unless already root.
	Elevate bool
}

// Command returns a Cmd for name and args.
func Command(name string, args ...string) Cmd {
	return Cmd{Name: name, Args: args}
}

// Sudo returns a Cmd that requires superuser privileges.
func Sudo(name string, args ...string) Cmd {
	return Cmd{Name: name, Args: args, Elevate: true}
}

// Argv returns the full argument vector, including the sudo prefix when
// elevation is required and the current user is not root.
func (c Cmd) Argv() []string {
	argv := make([]string, 0, len(c.Args)+2)
	if c.Elevate && !isRoot() {
		argv = append(argv, "sudo")
	}
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

// String returns the command line as it would be typed in a shell.
func (c Cmd) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner runs external processes.
type Runner interface {
	// Run runs the command to completion, connecting it to the operator's terminal.
	Run(ctx context.Context, cmd Cmd) error

	// Output runs the command and returns its standard output.
	Output(ctx context.Context, cmd Cmd) ([]byte, error)

	// Start runs the command with stdin as its standard input and waits for
	// the launched process to exit. Processes it forks keep running in their
	// own session.
	Start(ctx context.Context, cmd Cmd, stdin io.Reader) error

	// LookPath reports whether an executable is on PATH.
	LookPath(name string) (string, error)
}

// Exec is the os/exec backed Runner.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
}

// New returns an Exec that writes tool output to stdout and stderr.
func New(stdout, stderr io.Writer) *Exec {
	return &Exec{Stdout: stdout, Stderr: stderr}
}

func (e *Exec) command(ctx context.Context, cmd Cmd) *exec.Cmd {
	argv := cmd.Argv()
	return exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // G204: argv is built from fixed tool names and config values
}

// Run runs the command with its output forwarded.
func (e *Exec) Run(ctx context.Context, cmd Cmd) error {
	c := e.command(ctx, cmd)
	c.Stdout = e.Stdout
	var stderr bytes.Buffer
	if e.Stderr != nil {
		c.Stderr = io.MultiWriter(e.Stderr, &stderr)
	} else {
		c.Stderr = &stderr
	}
	// sudo may prompt for a password.
	c.Stdin = os.Stdin
	if err := c.Run(); err != nil {
		return wrapErr(cmd, err, stderr.Bytes())
	}
	return nil
}

// Output runs the command and captures its stdout.
func (e *Exec) Output(ctx context.Context, cmd Cmd) ([]byte, error) {
	c := e.command(ctx, cmd)
	var stderr bytes.Buffer
	c.Stderr = &stderr
	out, err := c.Output()
	if err != nil {
		return out, wrapErr(cmd, err, stderr.Bytes())
	}
	return out, nil
}

// Start launches the command in a new session with stdin attached.
func (e *Exec) Start(ctx context.Context, cmd Cmd, stdin io.Reader) error {
	c := e.command(ctx, cmd)
	c.Stdin = stdin
	c.Stdout = e.Stdout
	var stderr bytes.Buffer
	if e.Stderr != nil {
		c.Stderr = io.MultiWriter(e.Stderr, &stderr)
	} else {
		c.Stderr = &stderr
	}
	setSysProcAttr(c)
	if err := c.Run(); err != nil {
		return wrapErr(cmd, err, stderr.Bytes())
	}
	return nil
}

// LookPath searches PATH for name.
func (e *Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func wrapErr(cmd Cmd, err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg != "" {
		return fmt.Errorf("%s: %s: %w", cmd, msg, err)
	}
	return fmt.Errorf("%s: %w", cmd, err)
}
