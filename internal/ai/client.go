// Package ai contains the AI capability boundary: the analyzer client, the
// token-budget estimator, and the processing-queue workers. The engine is
// responsible only for invocation, budgeting, retry, and result storage; the
// analysis itself is a black box behind the Analyzer interface.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// Analyzer is the AI capability boundary: given message content and the
// user's goals, return a structured analysis or fail.
type Analyzer interface {
	Analyze(ctx context.Context, content string, userGoals []string) (*models.AnalysisResult, *models.AnalysisUsage, error)
}

const analysisSystemPrompt = `You are an assistant that analyzes messages from a user's inbox.
Respond with a single JSON object with these fields:
  "summary": one-sentence summary of the message,
  "category": short category slug,
  "sentiment": "positive", "neutral" or "negative",
  "importance": "low", "medium", "high" or "critical",
  "confidence": number between 0 and 1,
  "action_steps": ordered array of suggested follow-ups, each with
    "type" (one of: respond, schedule, todo, postpone, research, follow-up, archive),
    "description", and optional "timeline", "deadline", "estimated_time".
Return only the JSON object, no prose.`

// Cost per million tokens in micro-USD, by request side. Rough gpt-4o-mini
// pricing; accounting only, never used for budgeting decisions.
const (
	promptCostPerMTokMicroUSD     = 150_000
	completionCostPerMTokMicroUSD = 600_000
)

// Client wraps the OpenAI chat-completions API behind the Analyzer interface.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates an OpenAI-backed analyzer.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{api: openai.NewClient(apiKey), model: model}, nil
}

// Analyze sends the message content to the model and parses the structured
// result.
func (c *Client) Analyze(ctx context.Context, content string, userGoals []string) (*models.AnalysisResult, *models.AnalysisUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	userPrompt := content
	if len(userGoals) > 0 {
		userPrompt = fmt.Sprintf("User goals: %s\n\nMessage:\n%s", strings.Join(userGoals, "; "), content)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature:    0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("analysis request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, nil, fmt.Errorf("analysis returned no choices")
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return nil, nil, fmt.Errorf("failed to parse analysis result: %w", err)
	}

	// Drop steps outside the closed action-type set rather than storing
	// values the extractor cannot map.
	valid := result.ActionSteps[:0]
	for _, step := range result.ActionSteps {
		if models.ValidActionType(step.Type) {
			valid = append(valid, step)
		}
	}
	result.ActionSteps = valid

	usage := &models.AnalysisUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostMicroUSD: int64(resp.Usage.PromptTokens)*promptCostPerMTokMicroUSD/1_000_000 +
			int64(resp.Usage.CompletionTokens)*completionCostPerMTokMicroUSD/1_000_000,
	}

	return &result, usage, nil
}
