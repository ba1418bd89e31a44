package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/rahul/cookframe/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// Recorder stores agent transcripts. The run store implements it.
type Recorder interface {
	AddMessage(ctx context.Context, runID, agent, role, content string) error
}

type runIDKey struct{}

// WithRunID attaches a run id to ctx so agent exchanges can be attributed.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Agent is a model bound to one role: a fixed system prompt and call options.
type Agent struct {
	Name         string
	SystemPrompt string
	Model        llms.Model
	ModelName    string
	Options      []llms.CallOption
	Logger       *observability.Logger
	Recorder     Recorder
}

func NewAgent(name, systemPrompt string, model llms.Model, opts ...llms.CallOption) *Agent {
	return &Agent{
		Name:         name,
		SystemPrompt: systemPrompt,
		Model:        model,
		Options:      opts,
	}
}

// Invoke sends one human message under the agent's system prompt and returns
// the text of the first choice.
func (a *Agent) Invoke(ctx context.Context, input string) (string, error) {
	var messages []llms.MessageContent
	if a.SystemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(a.SystemPrompt)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(input)},
	})

	resp, err := a.Model.GenerateContent(ctx, messages, a.Options...)
	if err != nil {
		return "", fmt.Errorf("%s: model call failed: %w", a.Name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New(a.Name + ": empty response from model")
	}
	choice := resp.Choices[0]

	runID := RunIDFrom(ctx)
	if a.Logger != nil {
		a.Logger.LogLLM(runID, a.Name, input, choice.Content)
		if in, out, ok := tokenCounts(choice.GenerationInfo); ok {
			a.Logger.LogCost(runID, a.Name, in, out, a.ModelName)
		}
	}
	if a.Recorder != nil && runID != "" {
		for _, m := range [][2]string{{"human", input}, {"ai", choice.Content}} {
			if err := a.Recorder.AddMessage(ctx, runID, a.Name, m[0], m[1]); err != nil {
				log.Printf("[%s] failed to record transcript: %v", a.Name, err)
			}
		}
	}

	return choice.Content, nil
}

// tokenCounts reads usage from generation info. Providers name the fields
// differently.
func tokenCounts(info map[string]any) (int, int, bool) {
	if info == nil {
		return 0, 0, false
	}
	for _, keys := range [][2]string{{"InputTokens", "OutputTokens"}, {"PromptTokens", "CompletionTokens"}} {
		in, okIn := asInt(info[keys[0]])
		out, okOut := asInt(info[keys[1]])
		if okIn || okOut {
			return in, out, true
		}
	}
	return 0, 0, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
