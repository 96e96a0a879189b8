package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Call is one invocation observed by a Recorder.
type Call struct {
	Cmd   Cmd
	Stdin string
}

// Result is the scripted outcome of a command.
type Result struct {
	Output []byte
	Err    error
}

// Recorder is an in-memory Runner that records every invocation in order and
// answers with scripted results. Commands without a scripted result succeed
// with empty output.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	results map[string]Result
	// Paths lists the executables LookPath should find.
	Paths map[string]bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		results: make(map[string]Result),
		Paths:   make(map[string]bool),
	}
}

// On scripts the result for the command whose name and args join to key,
// for example "certutil -L -d sql:/tmp/nssdb".
func (r *Recorder) On(key string, res Result) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[key] = res
	return r
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns the recorded commands as "name args..." strings. Elevated
// commands are prefixed with "sudo " regardless of the current user.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		line := key(c.Cmd)
		if c.Cmd.Elevate {
			line = "sudo " + line
		}
		lines = append(lines, line)
	}
	return lines
}

func key(cmd Cmd) string {
	return strings.TrimSpace(cmd.Name + " " + strings.Join(cmd.Args, " "))
}

func (r *Recorder) record(cmd Cmd, stdin string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Cmd: cmd, Stdin: stdin})
	return r.results[key(cmd)]
}

// Run records the call.
func (r *Recorder) Run(_ context.Context, cmd Cmd) error {
	return r.record(cmd, "").Err
}

// Output records the call and returns the scripted output.
func (r *Recorder) Output(_ context.Context, cmd Cmd) ([]byte, error) {
	res := r.record(cmd, "")
	return res.Output, res.Err
}

// Start records the call together with everything read from stdin.
func (r *Recorder) Start(_ context.Context, cmd Cmd, stdin io.Reader) error {
	var in string
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		in = string(data)
	}
	return r.record(cmd, in).Err
}

// LookPath reports the executables listed in Paths.
func (r *Recorder) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}
