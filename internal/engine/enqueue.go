package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/ir"
)

// Request is one import fact to queue: the target kind, the payload
// describing it and its ancestors, and the owner that submitted it.
type Request struct {
	Owner   string    `json:"owner" yaml:"owner"`
	Kind    string    `json:"kind" yaml:"kind"`
	Batch   string    `json:"batch,omitempty" yaml:"batch,omitempty"`
	Payload ir.Object `json:"payload" yaml:"-"`
}

// Enqueue validates one request and queues it.
//
// Returns the record ID. An identical request (same owner, kind and
// payload) already in the queue yields the existing record's ID.
// Malformed requests are rejected with a MALFORMED_PAYLOAD or UNKNOWN_KIND
// RuntimeError and nothing is written.
func (e *Engine) Enqueue(ctx context.Context, req Request) (string, error) {
	ids, err := e.enqueue(ctx, []Request{req}, false)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// EnqueueBatch validates and queues several related requests in one
// transaction, such as a relay result and its relay swimmers.
//
// Every request is validated before anything is written. Requests without
// a batch key share one generated key, so siblings can be listed together.
func (e *Engine) EnqueueBatch(ctx context.Context, reqs []Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	return e.enqueue(ctx, reqs, true)
}

func (e *Engine) enqueue(ctx context.Context, reqs []Request, batched bool) ([]string, error) {
	for i, req := range reqs {
		if err := e.Validate(req); err != nil {
			if batched {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			return nil, err
		}
	}

	var batch string
	now := e.clock.Now()
	mts := make([]ir.Microtransaction, len(reqs))
	for i, req := range reqs {
		hash, err := ir.RequestHash(req.Owner, req.Kind, req.Payload)
		if err != nil {
			return nil, NewMalformedError(req.Kind, err)
		}
		depth, _ := e.graph.Depth(req.Kind)

		key := req.Batch
		if batched && key == "" {
			if batch == "" {
				batch = e.ids.Generate()
			}
			key = batch
		}

		mts[i] = ir.Microtransaction{
			ID:             e.ids.Generate(),
			Owner:          req.Owner,
			Batch:          key,
			Kind:           req.Kind,
			RequestHash:    hash,
			RequestPayload: req.Payload.Clone(),
			Progress:       ir.Progress{Requested: depth},
			CreatedAt:      now,
		}
	}

	results, err := e.store.EnqueueMicrotransactions(ctx, mts)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
		if res.Inserted {
			e.log.Debug("microtransaction enqueued",
				"record", res.ID,
				"kind", mts[i].Kind,
				"requested_depth", mts[i].Progress.Requested,
				"batch", mts[i].Batch,
			)
		} else {
			e.log.Debug("duplicate request, reusing record",
				"record", res.ID,
				"kind", mts[i].Kind,
			)
		}
	}
	return ids, nil
}

// Validate checks a request without queueing it.
func (e *Engine) Validate(req Request) error {
	if _, ok := e.graph.Depth(req.Kind); !ok {
		return NewUnknownKindError("", req.Kind)
	}
	if req.Owner == "" {
		return NewMalformedError(req.Kind, errors.New("owner is required"))
	}
	if err := e.graph.ValidatePayload(req.Kind, req.Payload); err != nil {
		if errors.Is(err, depgraph.ErrUnknownKind) {
			return NewUnknownKindError("", req.Kind)
		}
		return NewMalformedError(req.Kind, err)
	}
	return nil
}
