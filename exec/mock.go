package exec

import (
	"context"
	"slices"
	"sync"
)

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(dir, name string, args []string) bool

// MockRule defines a matching rule and its response. A rule with Times > 0
// is consumed after that many matches.
type MockRule struct {
	Match    CommandMatcher
	Response MockResponse
	Times    int
}

// MockExecutor returns pre-recorded responses for commands.
// Commands are matched in order of rule registration.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []*MockRule
	calls    []MockCall
	fallback CommandExecutor
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir  string
	Name string
	Args []string
	Env  map[string]string
}

// NewMockExecutor creates a new MockExecutor.
// If fallback is provided, unmatched commands will be delegated to it.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{
		fallback: fallback,
	}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &MockRule{Match: match, Response: response})
}

// AddRuleOnce adds a rule that answers a single matching call and is then
// removed, so a later rule can answer the retry.
func (e *MockExecutor) AddRuleOnce(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &MockRule{Match: match, Response: response, Times: 1})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(ExactMatcher(name, args), response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(PrefixMatcher(name, prefixArgs), response)
}

// ExactMatcher matches name with exactly args.
func ExactMatcher(name string, args []string) CommandMatcher {
	return func(_, n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}
}

// PrefixMatcher matches name whose arguments start with prefixArgs.
func PrefixMatcher(name string, prefixArgs []string) CommandMatcher {
	return func(_, n string, a []string) bool {
		return n == name && len(a) >= len(prefixArgs) && slices.Equal(a[:len(prefixArgs)], prefixArgs)
	}
}

// ContainsArgMatcher matches name when any argument equals arg.
func ContainsArgMatcher(name, arg string) CommandMatcher {
	return func(_, n string, a []string) bool {
		return n == name && slices.Contains(a, arg)
	}
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]MockCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// ClearCalls clears the recorded command invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// respond records the call and returns the first matching response.
func (e *MockExecutor) respond(call MockCall) (MockResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, call)
	for i, rule := range e.rules {
		if !rule.Match(call.Dir, call.Name, call.Args) {
			continue
		}
		resp := rule.Response
		if rule.Times > 0 {
			rule.Times--
			if rule.Times == 0 {
				e.rules = slices.Delete(e.rules, i, i+1)
			}
		}
		return resp, true
	}
	return MockResponse{}, false
}

// Run executes a mocked command.
func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	if resp, ok := e.respond(MockCall{Dir: dir, Name: name, Args: args}); ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}
	if e.fallback != nil {
		return e.fallback.Run(ctx, dir, name, args...)
	}
	// Default: return empty success
	return nil, nil, nil
}

// Output executes a mocked command.
func (e *MockExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	if resp, ok := e.respond(MockCall{Dir: dir, Name: name, Args: args}); ok {
		return resp.Stdout, resp.Err
	}
	if e.fallback != nil {
		return e.fallback.Output(ctx, dir, name, args...)
	}
	return nil, nil
}

// RunBatch returns the matched response as a Result.
func (e *MockExecutor) RunBatch(ctx context.Context, spec Spec) (Result, error) {
	resp, ok := e.respond(specCall(spec))
	if !ok {
		if e.fallback != nil {
			return e.fallback.RunBatch(ctx, spec)
		}
		return Result{}, nil
	}
	if resp.Err != nil {
		return Result{ExitCode: -1}, resp.Err
	}
	return Result{Stdout: string(resp.Stdout), Stderr: string(resp.Stderr), ExitCode: resp.ExitCode}, nil
}

// RunStreaming replays the matched response through handler: stdout lines
// first, then stderr lines, with the same splitting rules as RealExecutor.
func (e *MockExecutor) RunStreaming(ctx context.Context, spec Spec, handler LineHandler) (Result, error) {
	resp, ok := e.respond(specCall(spec))
	if !ok {
		if e.fallback != nil {
			return e.fallback.RunStreaming(ctx, spec, handler)
		}
		return Result{}, nil
	}
	if resp.Err != nil {
		return Result{ExitCode: -1}, resp.Err
	}

	var s lineSplitter
	events := s.feed(Stdout, resp.Stdout)
	events = append(events, s.feed(Stderr, resp.Stderr)...)
	events = append(events, s.flush()...)
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		if handler != nil {
			handler(ev)
		}
	}
	return Result{Stdout: s.stdout(), Stderr: s.stderr(), ExitCode: resp.ExitCode}, nil
}

func specCall(spec Spec) MockCall {
	return MockCall{Dir: spec.Dir, Name: spec.Program, Args: slices.Clone(spec.Args), Env: spec.Env}
}
