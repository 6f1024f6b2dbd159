// Package service runs one query end to end: load the dataset, execute the
// pipeline on the bounded queue, audit the run.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/conversation"
	"hermes/internal/dataset"
	"hermes/internal/pipeline"
	"hermes/internal/store"
	"hermes/queue"
)

// ErrBusy means the executor queue rejected the run.
var ErrBusy = errors.New("query executor is at capacity")

// Service is shared by every transport.
type Service struct {
	source   dataset.Source
	pipeline *pipeline.Pipeline
	queue    *queue.Queue
	store    *store.Store
	timeout  time.Duration
	logger   zerolog.Logger
}

// New builds a Service. store may be nil, in which case runs are not audited.
func New(source dataset.Source, p *pipeline.Pipeline, q *queue.Queue, st *store.Store, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		pipeline: p,
		queue:    q,
		store:    st,
		timeout:  timeout,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Dataset loads the current shipment table.
func (s *Service) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	data, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return data, nil
}

// Ask answers query given the caller's history. The caller owns history and
// appends pipeline.TurnFromState(st) itself.
func (s *Service) Ask(ctx context.Context, origin, query string, history []conversation.Turn) (*pipeline.State, error) {
	data, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var st *pipeline.State
	ok, err := s.queue.Submit(ctx, fmt.Sprintf("%s-%d", origin, start.UnixNano()), origin, func(jobCtx context.Context) error {
		st = s.pipeline.Run(jobCtx, query, history, data)
		return nil
	})
	if !ok {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	s.audit(ctx, st, time.Since(start))
	return st, nil
}

func (s *Service) audit(ctx context.Context, st *pipeline.State, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	run := &store.Run{
		ID:         st.RunID,
		Query:      st.Query,
		Intent:     st.Intent.String(),
		Steps:      st.Steps,
		DurationMS: elapsed.Milliseconds(),
	}
	if st.Result != nil {
		run.Summary = st.Result.Summary
	}
	if err := s.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error().Err(err).Str("run_id", st.RunID).Msg("record run")
	}
}
