// Package execcmdtest provides a scripted execcmd.Runner for tests.
package execcmdtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetdm/munki-conditions/pkg/execcmd"
)

// Response is one canned result for a command line.
type Response struct {
	Output string
	Err    error
}

// Runner replays responses registered with On. Each call to a command line
// consumes the next response; the last one repeats. Unregistered command
// lines fail, which keeps tests honest about every tool a reporter invokes.
type Runner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []string
}

func New() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On registers the responses for the command line name + args, joined by
// single spaces.
func (r *Runner) On(cmdline string, responses ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(responses) == 0 {
		responses = []Response{{}}
	}
	r.responses[cmdline] = append(r.responses[cmdline], responses...)
	return r
}

func (r *Runner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmdline := execcmd.CommandLine(name, args...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmdline)

	queue, ok := r.responses[cmdline]
	if !ok || len(queue) == 0 {
		return nil, fmt.Errorf("unexpected command: %s", cmdline)
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[cmdline] = queue[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return []byte(resp.Output), nil
}

func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.Output(ctx, name, args...)
	return err
}

// Calls returns every command line run so far, in order.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how many times cmdline was run.
func (r *Runner) Count(cmdline string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, c := range r.calls {
		if c == cmdline {
			n++
		}
	}
	return n
}
