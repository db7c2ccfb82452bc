package engine

import (
	"context"
	"fmt"

	"github.com/helix-research/litgraph/internal/util"
	"github.com/helix-research/litgraph/pkg/ai"
	"github.com/helix-research/litgraph/pkg/assemble"
	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/logger"
)

// QueryParams describes one query against a project.
type QueryParams struct {
	Text         string        `json:"text"`
	Seeds        []string      `json:"seeds,omitempty"`
	TopK         int           `json:"top_k,omitempty"`
	Task         assemble.Task `json:"task"`
	IncludeGraph bool          `json:"include_graph,omitempty"`
}

// QueryResult carries the retrieval context, the assembled prompt and, when
// a generator is available, the generated answer with its citations. The
// hypothesis task additionally yields the structured hypothesis.
type QueryResult struct {
	Answer     string                     `json:"answer,omitempty"`
	Citations  []string                   `json:"citations,omitempty"`
	Hypothesis *assemble.Hypothesis       `json:"hypothesis,omitempty"`
	Prompt     *assemble.StructuredPrompt `json:"prompt"`
	Context    *common.RetrievalContext   `json:"context"`
	Generated  bool                       `json:"generated"`
}

// Query retrieves context for the query, assembles the task-shaped prompt
// and generates an answer when a generator is configured. An empty
// retrieval context short-circuits generation and is not an error.
func (e *Engine) Query(ctx context.Context, projectID string, params QueryParams) (*QueryResult, error) {
	state := e.project(projectID)
	// The indexes are each synchronized on their own; capture them under
	// the project lock but run retrieval without it, so the semantic
	// pass's embedding call never blocks writers.
	state.mu.RLock()
	retriever, err := e.retriever(state)
	state.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	rc, err := retriever.Retrieve(ctx, params.Text, params.Seeds, params.TopK, params.IncludeGraph)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	prompt, err := e.assembler.Assemble(rc, params.Text, params.Task)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	result := &QueryResult{
		Prompt:    prompt,
		Context:   rc,
		Citations: prompt.Citations,
	}

	if rc.Empty() || e.aiClient == nil || !e.aiClient.Available() {
		return result, nil
	}

	// The hypothesis task asks for structured output so confidence and
	// evidence gaps come back machine-readable.
	if params.Task == assemble.TaskHypothesis {
		var hyp assemble.Hypothesis
		err := e.aiClient.GenerateCompletionWithFormat(ctx, "hypothesis",
			"A candidate biomedical hypothesis grounded in the supplied excerpts, with confidence and evidence gaps.",
			prompt.User, &hyp, ai.WithSystemPrompts(prompt.System))
		if err != nil {
			logger.Error("[Engine] Hypothesis generation failed", "project", projectID, "err", err)
			return result, nil
		}
		result.Hypothesis = &hyp
		result.Answer = hyp.Title
		if hyp.Explanation != "" {
			result.Answer = hyp.Title + "\n\n" + hyp.Explanation
		}
		result.Generated = true
		if len(hyp.Citations) > 0 {
			result.Citations = hyp.Citations
		} else if cited := util.ExtractCitations(hyp.Explanation); len(cited) > 0 {
			result.Citations = cited
		}
		return result, nil
	}

	answer, err := e.aiClient.GenerateCompletion(ctx, prompt.User,
		ai.WithSystemPrompts(prompt.System))
	if err != nil {
		// Retrieval succeeded; surface the context even when generation
		// fails so the caller can fall back to raw excerpts.
		logger.Error("[Engine] Generation failed", "project", projectID, "err", err)
		return result, nil
	}

	result.Answer = answer
	result.Generated = true
	if cited := util.ExtractCitations(answer); len(cited) > 0 {
		result.Citations = cited
	}
	return result, nil
}
