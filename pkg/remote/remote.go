// Package remote is the task-execution boundary used to run named counting
// functions on other processes or machines.
//
// A worker exposes a Registry of named functions. A client submits
// (function name, arguments) through an Executor and receives a Future that
// resolves to the integer result or to an error. The same JSON Request and
// Response types are used by the HTTP and NATS transports.
package remote

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownFunction is returned when a request names a function the
	// worker never registered.
	ErrUnknownFunction = errors.New("unknown remote function")
	// ErrUnavailable is returned when no worker can accept a request.
	ErrUnavailable = errors.New("remote executor unavailable")
	// ErrRemote wraps failures reported by the remote function itself.
	ErrRemote = errors.New("remote function failed")
)

// Args are the arguments of a counting function invocation.
type Args struct {
	SampleCount uint64 `json:"sample_count"`
	Seed        uint64 `json:"seed"`
	RNG         string `json:"rng,omitempty"`
}

// Request names the function to run and its arguments.
type Request struct {
	Function string `json:"function"`
	Args     Args   `json:"args"`
}

// Response carries either a result or an error message.
type Response struct {
	Result uint64 `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Func is a registered pure counting function.
type Func func(ctx context.Context, args Args) (uint64, error)

// Registry maps function names to implementations. It is safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds name to fn, replacing any previous binding.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the function named by req.
func (r *Registry) Invoke(ctx context.Context, req Request) (uint64, error) {
	r.mu.RLock()
	fn, ok := r.funcs[req.Function]
	r.mu.RUnlock()
	if !ok {
		return 0, errors.Wrapf(ErrUnknownFunction, "%q", req.Function)
	}
	return fn(ctx, req.Args)
}

// Handle runs req and encodes the outcome as a Response.
func (r *Registry) Handle(ctx context.Context, req Request) Response {
	res, err := r.Invoke(ctx, req)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Result: res}
}

// Executor submits function invocations for asynchronous execution.
type Executor interface {
	Submit(ctx context.Context, function string, args Args) *Future
}

// reply is the client-side view of a Response. Result is a pointer so a
// reply without a result is not mistaken for a zero count.
type reply struct {
	Result *uint64 `json:"result"`
	Error  string  `json:"error"`
}

// decode converts an encoded Response back into a result or an error.
func decode(data []byte) (uint64, error) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, errors.Wrapf(ErrRemote, "invalid JSON reply %q: %v", truncate(data), err)
	}
	if r.Error != "" {
		return 0, errors.Wrap(ErrRemote, r.Error)
	}
	if r.Result == nil {
		return 0, errors.Wrapf(ErrRemote, "reply %q carries no result", truncate(data))
	}
	return *r.Result, nil
}

func truncate(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
