package runner

import (
	"context"
	"fmt"
	"strings"
)

// Fake is a deterministic Runner for tests: it matches invocations by the
// joined command line and returns the canned Result (or error) registered
// for it. Unmatched invocations fail loudly rather than falling back to a
// real exec, so a test's expectations stay explicit.
type Fake struct {
	Responses map[string]FakeResponse
	Calls     []FakeCall
}

// FakeResponse is the canned outcome for one command line.
type FakeResponse struct {
	Result Result
	Err    error
}

// FakeCall records one invocation observed by Fake.Run.
type FakeCall struct {
	Name string
	Args []string
	Opts Options
}

// NewFake returns an empty Fake ready for Responses to be populated.
func NewFake() *Fake {
	return &Fake{Responses: map[string]FakeResponse{}}
}

func key(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// On registers the response for the given command line.
func (f *Fake) On(name string, args []string, result Result, err error) {
	f.Responses[key(name, args)] = FakeResponse{Result: result, Err: err}
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	f.Calls = append(f.Calls, FakeCall{Name: name, Args: args, Opts: opts})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	resp, ok := f.Responses[key(name, args)]
	if !ok {
		return Result{}, fmt.Errorf("runner: fake has no response registered for %q", key(name, args))
	}
	return resp.Result, resp.Err
}
