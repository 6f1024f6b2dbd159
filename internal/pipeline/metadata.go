package pipeline

import (
	"context"

	"hermes/internal/conversation"
	"hermes/internal/llm"
)

const metadataHistoryTurns = 2

// metadata asks the capability for structured hints once per run and
// caches the answer, including the empty answer on failure.
func (p *Pipeline) metadata(ctx context.Context, st *State) llm.Metadata {
	if st.metadata != nil {
		return *st.metadata
	}
	options := map[string][]string{}
	for _, col := range st.Data.Columns() {
		options[col] = st.Data.Distinct(col)
	}

	md, err := p.capability.ExtractMetadata(ctx, st.Query, options, conversation.Recent(st.History, metadataHistoryTurns))
	if err != nil {
		st.Trace("LLM metadata unavailable: %v", err)
		md = llm.Metadata{}
	} else if !md.Empty() {
		st.Trace("Loaded LLM metadata for query interpretation")
	}
	st.metadata = &md
	return md
}
