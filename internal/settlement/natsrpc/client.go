// Package natsrpc talks to the production oracle, ledger and minter services
// over NATS request/reply with JSON payloads and a per-call deadline.
package natsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultTimeout = 5 * time.Second

type client struct {
	nc      *nats.Conn
	timeout time.Duration
}

// errEnvelope is the error half of every reply. Kind names match the
// services' published variants.
type errEnvelope struct {
	Kind        string `json:"kind"`
	Message     string `json:"message,omitempty"`
	DuplicateOf uint64 `json:"duplicate_of,omitempty"`
}

type envelope struct {
	Ok  json.RawMessage `json:"ok,omitempty"`
	Err *errEnvelope    `json:"err,omitempty"`
}

// call issues one request and decodes the Ok payload into out. A non-nil
// *errEnvelope return means the service rejected the request; a plain error
// means the transport failed.
func (c *client) call(ctx context.Context, subject string, req, out any) (*errEnvelope, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	msg, err := c.nc.Request(subject, payload, timeout)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}

	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", subject, err)
	}
	if env.Err != nil {
		return env.Err, nil
	}
	if out != nil {
		if err := json.Unmarshal(env.Ok, out); err != nil {
			return nil, fmt.Errorf("decode %s ok payload: %w", subject, err)
		}
	}
	return nil, nil
}
