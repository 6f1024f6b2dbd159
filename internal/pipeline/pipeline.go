// Package pipeline runs the five ordered stages that turn one query into a
// response payload.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/analytics"
	"hermes/internal/conversation"
	"hermes/internal/dataset"
	"hermes/internal/llm"
	"hermes/internal/metrics"
)

// StageName identifies a pipeline phase.
type StageName string

const (
	StageClassify  StageName = "CLASSIFY_INTENT"
	StageTimeframe StageName = "AUGMENT_TIMEFRAME"
	StageFilters   StageName = "AUGMENT_FILTERS"
	StageDispatch  StageName = "RUN_INTENT"
	StageRespond   StageName = "FORMAT_RESPONSE"
)

// StageFunc reads and extends the state. Stages never fail; every problem
// degrades to a fallback recorded in the trace.
type StageFunc func(ctx context.Context, st *State)

// Stage is one named step of the run.
type Stage struct {
	Name StageName
	Run  StageFunc
}

// Pipeline executes its stages strictly in order, once per query.
type Pipeline struct {
	capability llm.Capability
	engine     *analytics.Engine
	logger     zerolog.Logger
	stages     []Stage
}

// New wires the stages. A nil capability behaves as unavailable.
func New(capability llm.Capability, logger zerolog.Logger) *Pipeline {
	if capability == nil {
		capability = llm.Disabled{}
	}
	p := &Pipeline{
		capability: capability,
		engine:     analytics.NewEngine(capability, logger),
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
	p.stages = []Stage{
		{Name: StageClassify, Run: p.classifyIntent},
		{Name: StageTimeframe, Run: p.augmentTimeframe},
		{Name: StageFilters, Run: p.augmentFilters},
		{Name: StageDispatch, Run: p.runIntent},
		{Name: StageRespond, Run: p.formatResponse},
	}
	return p
}

// Stages returns the stage order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Run executes one pass over a fresh state.
func (p *Pipeline) Run(ctx context.Context, query string, history []conversation.Turn, data *dataset.Dataset) *State {
	start := time.Now()
	st := NewState(query, history, data)
	for _, stage := range p.stages {
		stage.Run(ctx, st)
	}
	elapsed := time.Since(start)

	metrics.PipelineRuns.WithLabelValues(st.Intent.String()).Inc()
	metrics.PipelineDuration.Observe(elapsed.Seconds())
	p.logger.Info().
		Str("run_id", st.RunID).
		Str("intent", st.Intent.String()).
		Int("rows", st.Data.Len()).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("pipeline run complete")
	return st
}
