// Package serve runs an HTTP compute node that executes registered counting
// functions on behalf of remote estimators.
package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	logger "github.com/chi-middleware/logrus-logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/qcserestipy/gompi/pkg/remote"
	"github.com/qcserestipy/gompi/pkg/sysinfo"
)

// DefaultTaskHistory is how many finished invocations a node remembers.
const DefaultTaskHistory = 1024

// StatusError carries the HTTP status a route handler wants to answer with.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

type ComputeServer struct {
	NumWorkers int
	Router     *chi.Mux
	Registry   *remote.Registry

	sem     *semaphore.Weighted
	tasks   *taskStore
	metrics *metrics
}

// Option configures a ComputeServer.
type Option func(*ComputeServer)

// WithWorkers bounds how many invocations run at once.
func WithWorkers(n int) Option {
	return func(s *ComputeServer) {
		if n > 0 {
			s.NumWorkers = n
		}
	}
}

// WithTaskHistory sets how many invocations GET /tasks reports.
func WithTaskHistory(n int) Option {
	return func(s *ComputeServer) {
		if n > 0 {
			s.tasks = newTaskStore(n)
		}
	}
}

// New builds a compute node serving the functions in reg. The node runs up
// to NumWorkers invocations concurrently, defaulting to the available
// parallelism; further requests wait for a free slot.
func New(reg *remote.Registry, opts ...Option) *ComputeServer {
	s := &ComputeServer{
		NumWorkers: sysinfo.AvailableParallelism(),
		Registry:   reg,
		tasks:      newTaskStore(DefaultTaskHistory),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(int64(s.NumWorkers))

	promReg := prometheus.NewRegistry()
	s.metrics = newMetrics(promReg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Logger("router", log.StandardLogger()))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"workers":   s.NumWorkers,
			"functions": s.Registry.Names(),
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	CreateRoutes[remote.Request, remote.Response](r, remote.InvokePath, s.invoke)
	createTaskRoutes(r, s.tasks)

	s.Router = r
	return s
}

// invoke runs one function call within the node's concurrency bound.
func (s *ComputeServer) invoke(ctx context.Context, req remote.Request) (remote.Response, error) {
	task := s.tasks.add(req)
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.tasks.finish(task, 0, err)
		return remote.Response{}, &StatusError{Code: http.StatusServiceUnavailable, Err: errors.Wrap(err, "waiting for a worker")}
	}
	defer s.sem.Release(1)

	s.tasks.start(task)
	s.metrics.inFlight.Inc()
	start := time.Now()
	resp := s.Registry.Handle(ctx, req)
	elapsed := time.Since(start)
	s.metrics.inFlight.Dec()

	var err error
	if resp.Error != "" {
		err = errors.New(resp.Error)
	}
	s.tasks.finish(task, resp.Result, err)
	s.metrics.observe(req, resp, elapsed)

	log.WithFields(log.Fields{
		"task":     task,
		"function": req.Function,
		"samples":  req.Args.SampleCount,
		"seed":     req.Args.Seed,
		"result":   resp.Result,
		"error":    resp.Error,
		"duration": elapsed,
	}).Debug("Invocation finished")
	return resp, nil
}

// Launch serves s on targetPort until ctx is cancelled or the listener fails.
func Launch(ctx context.Context, s *ComputeServer, targetPort int) error {
	addr := fmt.Sprintf(":%d", targetPort)
	srv := &http.Server{Addr: addr, Handler: s.Router}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s with %d workers", addr, s.NumWorkers)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "server on %s failed", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("Shutting down server on %s", addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	}
}

// CreateRoutes registers a JSON POST endpoint on path that decodes a T,
// calls fn and encodes the R it returns.
func CreateRoutes[T any, R any](
	r chi.Router,
	path string,
	fn func(context.Context, T) (R, error),
) {
	r.Post(path, func(w http.ResponseWriter, r *http.Request) {
		var req T
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			http.Error(w, "invalid JSON or schema mismatch: "+err.Error(), http.StatusBadRequest)
			return
		}

		res, err := fn(r.Context(), req)
		if err != nil {
			code := http.StatusInternalServerError
			var se *StatusError
			if errors.As(err, &se) {
				code = se.Code
			}
			http.Error(w, "processing error: "+err.Error(), code)
			return
		}

		writeJSON(w, http.StatusOK, res)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode error: %v", err)
	}
}
