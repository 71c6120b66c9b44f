package agent

import (
	"context"
	"sync"
)

// StubInvoker is a deterministic Invoker for tests. Each call pops the
// next scripted response; when the script is exhausted it repeats the
// last entry.
type StubInvoker struct {
	mu        sync.Mutex
	responses []StubResponse
	calls     []Request
}

// StubResponse is one scripted invocation outcome.
type StubResponse struct {
	Result *Result
	Err    error
}

// NewStubInvoker creates a stub with the given scripted responses.
func NewStubInvoker(responses ...StubResponse) *StubInvoker {
	return &StubInvoker{responses: responses}
}

// Invoke returns the next scripted response and records the request.
func (s *StubInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)

	if len(s.responses) == 0 {
		return &Result{Summary: "stub"}, nil
	}

	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp.Result, resp.Err
}

// Calls returns the requests received so far.
func (s *StubInvoker) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of invocations so far.
func (s *StubInvoker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
