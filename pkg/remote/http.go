package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// InvokePath is the route compute nodes serve invocations on.
const InvokePath = "/invoke"

// HTTPExecutor posts invocations to compute nodes, spreading submissions over
// the configured endpoints round-robin.
type HTTPExecutor struct {
	Endpoints []string
	Client    *http.Client

	next atomic.Uint64
}

// NewHTTPExecutor returns an executor for the given base URLs, e.g.
// "http://localhost:3000".
func NewHTTPExecutor(endpoints []string, timeout time.Duration) *HTTPExecutor {
	eps := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimRight(strings.TrimSpace(ep), "/")
		if ep != "" {
			eps = append(eps, ep)
		}
	}
	return &HTTPExecutor{
		Endpoints: eps,
		Client:    &http.Client{Timeout: timeout},
	}
}

// Submit implements Executor.
func (e *HTTPExecutor) Submit(ctx context.Context, function string, args Args) *Future {
	if len(e.Endpoints) == 0 {
		return Failed(errors.Wrap(ErrUnavailable, "no compute endpoints configured"))
	}
	idx := e.next.Add(1) - 1
	endpoint := e.Endpoints[idx%uint64(len(e.Endpoints))]
	return Go(func() (uint64, error) {
		return e.invoke(ctx, endpoint, Request{Function: function, Args: args})
	})
}

func (e *HTTPExecutor) invoke(ctx context.Context, endpoint string, req Request) (uint64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, errors.Wrap(err, "encode request")
	}

	url := endpoint + InvokePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrapf(err, "build request for %s", url)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.Wrapf(ErrUnavailable, "POST %s: %v", url, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, errors.Wrapf(err, "read response from %s", url)
	}

	switch httpResp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return 0, errors.Wrapf(ErrUnavailable, "%s: %s", url, truncate(bytes.TrimSpace(data)))
	default:
		// A non-200 reply never carries a usable count, even when its body is
		// a JSON Response.
		var r reply
		if json.Unmarshal(data, &r) == nil && r.Error != "" {
			return 0, errors.Wrapf(ErrRemote, "POST %s: status %d: %s", url, httpResp.StatusCode, r.Error)
		}
		return 0, errors.Wrapf(ErrRemote, "POST %s: status %d: %s",
			url, httpResp.StatusCode, truncate(bytes.TrimSpace(data)))
	}

	inside, err := decode(data)
	if err != nil {
		return 0, errors.Wrapf(err, "POST %s", url)
	}
	log.WithFields(log.Fields{
		"endpoint": endpoint,
		"function": req.Function,
		"samples":  req.Args.SampleCount,
	}).Debug("Remote invocation returned")
	return inside, nil
}
