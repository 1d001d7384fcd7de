package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultSubject is the NATS subject invocations are published on.
	DefaultSubject = "mcpi.invoke"
	// DefaultQueue is the queue group workers share so each request is
	// handled once.
	DefaultQueue = "mcpi-workers"
)

// NATSExecutor sends invocations as NATS requests and waits for the reply.
type NATSExecutor struct {
	Conn    *nats.Conn
	Subject string
	// Timeout bounds each request when the submitting context has no
	// deadline. Zero means no bound.
	Timeout time.Duration
}

// NewNATSExecutor returns an executor publishing on subject over nc.
func NewNATSExecutor(nc *nats.Conn, subject string, timeout time.Duration) *NATSExecutor {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSExecutor{Conn: nc, Subject: subject, Timeout: timeout}
}

// Submit implements Executor.
func (e *NATSExecutor) Submit(ctx context.Context, function string, args Args) *Future {
	if e.Conn == nil || e.Conn.IsClosed() {
		return Failed(errors.Wrap(ErrUnavailable, "NATS connection is closed"))
	}
	data, err := json.Marshal(Request{Function: function, Args: args})
	if err != nil {
		return Failed(errors.Wrap(err, "encode request"))
	}
	return Go(func() (uint64, error) {
		reqCtx := ctx
		if _, ok := ctx.Deadline(); !ok && e.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, e.Timeout)
			defer cancel()
		}

		msg, err := e.Conn.RequestWithContext(reqCtx, e.Subject, data)
		if err != nil {
			if errors.Is(err, nats.ErrNoResponders) {
				return 0, errors.Wrapf(ErrUnavailable, "no workers on %s", e.Subject)
			}
			return 0, errors.Wrapf(err, "request on %s", e.Subject)
		}

		inside, err := decode(msg.Data)
		if err != nil {
			return 0, errors.Wrapf(err, "reply on %s", e.Subject)
		}
		return inside, nil
	})
}

// ServeNATS subscribes reg to subject in the given queue group, replying to
// each request with a JSON Response. Handlers run on the subscription's
// goroutine, so a worker process handles one invocation at a time per
// subscription; start several workers to scale out.
func ServeNATS(ctx context.Context, nc *nats.Conn, subject, queue string, reg *Registry) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if queue == "" {
		queue = DefaultQueue
	}
	sub, err := nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var req Request
		var resp Response
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			resp = Response{Error: "invalid JSON: " + err.Error()}
		} else {
			start := time.Now()
			resp = reg.Handle(ctx, req)
			log.WithFields(log.Fields{
				"function": req.Function,
				"samples":  req.Args.SampleCount,
				"seed":     req.Args.Seed,
				"error":    resp.Error,
				"duration": time.Since(start),
			}).Debug("Handled NATS invocation")
		}

		data, err := json.Marshal(resp)
		if err != nil {
			log.Errorf("encode NATS reply: %v", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Errorf("respond on %s: %v", msg.Reply, err)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe to %s", subject)
	}
	log.Infof("Serving %v on NATS subject %s (queue %s)", reg.Names(), subject, queue)
	return sub, nil
}
