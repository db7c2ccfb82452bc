package assemble

import "fmt"

// Task selects the prompt-shaping strategy for a query. The set is closed:
// parsing anything else fails instead of falling back.
type Task int

const (
	// TaskAnswer shapes the prompt for a grounded, cited answer.
	TaskAnswer Task = iota
	// TaskHypothesis shapes the prompt for mechanistic hypothesis generation.
	TaskHypothesis
	// TaskSummary shapes the prompt for an evidence summary.
	TaskSummary
)

var taskNames = map[Task]string{
	TaskAnswer:     "answer",
	TaskHypothesis: "hypothesis",
	TaskSummary:    "summary",
}

func (t Task) String() string {
	if name, ok := taskNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Task(%d)", int(t))
}

// ParseTask maps a wire-format task name onto its Task. Unknown names are an
// error, never a silent default.
func ParseTask(name string) (Task, error) {
	for task, taskName := range taskNames {
		if taskName == name {
			return task, nil
		}
	}
	return 0, fmt.Errorf("unknown task %q", name)
}

// Hypothesis is the structured output of the hypothesis task: a candidate
// mechanism grounded in the retrieved evidence, with the model's confidence
// and the gaps new experiments would have to close.
type Hypothesis struct {
	Title        string   `json:"title"`
	Explanation  string   `json:"explanation"`
	Entities     []string `json:"entities,omitempty"`
	Confidence   float64  `json:"confidence"`
	EvidenceGaps []string `json:"evidence_gaps,omitempty"`
	Citations    []string `json:"citations,omitempty"`
}

// strategy holds the per-task prompt shape. Dispatch goes through the
// strategies table, never through string comparison.
type strategy struct {
	system      string
	instruction string
}

var strategies = map[Task]strategy{
	TaskAnswer: {
		system: "You are a biomedical research assistant. Answer strictly from the " +
			"provided excerpts and relationships. Cite every claim with the excerpt's " +
			"chunk id in double brackets, like [[doc1_chunk_3]]. If the context does " +
			"not contain the answer, say so.",
		instruction: "Answer the question using only the context above.",
	},
	TaskHypothesis: {
		system: "You are a biomedical research assistant generating mechanistic " +
			"hypotheses. Ground every hypothesis in the provided excerpts and entity " +
			"relationships, cite supporting chunk ids in double brackets, and state " +
			"the confidence and the evidence gap for each hypothesis.",
		instruction: "Propose plausible, testable hypotheses addressing the question, " +
			"grounded in the context above.",
	},
	TaskSummary: {
		system: "You are a biomedical research assistant. Produce a concise, faithful " +
			"summary of the provided excerpts, preserving quantitative findings and " +
			"citing chunk ids in double brackets.",
		instruction: "Summarize the key findings in the context above as they relate " +
			"to the question.",
	},
}
