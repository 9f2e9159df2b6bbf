package models

// ActionType is the closed set of action-step kinds an analysis can propose.
type ActionType string

const (
	ActionRespond  ActionType = "respond"
	ActionSchedule ActionType = "schedule"
	ActionTodo     ActionType = "todo"
	ActionPostpone ActionType = "postpone"
	ActionResearch ActionType = "research"
	ActionFollowUp ActionType = "follow-up"
	ActionArchive  ActionType = "archive"
)

// ValidActionType reports whether t is a member of the closed action-type set.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionRespond, ActionSchedule, ActionTodo, ActionPostpone,
		ActionResearch, ActionFollowUp, ActionArchive:
		return true
	}
	return false
}

// ActionStep is one suggested follow-up from an AI analysis.
type ActionStep struct {
	Type          ActionType `json:"type"`
	Description   string     `json:"description"`
	Timeline      string     `json:"timeline,omitempty"`
	Deadline      string     `json:"deadline,omitempty"`
	EstimatedTime string     `json:"estimated_time,omitempty"`
}

// AnalysisResult is the structured output of the AI capability for one
// message (or thread). The engine stores it verbatim; only the action steps
// are interpreted further, by the action extractor.
type AnalysisResult struct {
	Summary     string       `json:"summary"`
	Category    string       `json:"category,omitempty"`
	Sentiment   string       `json:"sentiment,omitempty"`
	Importance  string       `json:"importance,omitempty"`
	Confidence  float64      `json:"confidence,omitempty"`
	ActionSteps []ActionStep `json:"action_steps"`
}

// AnalysisUsage is the token/cost accounting for one AI invocation.
type AnalysisUsage struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	CostMicroUSD     int64 `json:"cost_micro_usd"`
}
