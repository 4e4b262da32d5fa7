package hub

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

// Model is an entry of the hub model catalogue.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// Completions runs a chat completion. The request is always sent with
// streaming disabled.
func (a *Adapter) Completions(ctx context.Context, req agentenv.CompletionRequest) (*agentenv.Completion, error) {
	if req.Stream {
		a.log.Debug("streaming requested but not supported; sending a blocking request")
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	resp, err := a.llm.CreateChatCompletion(withOperation(ctx, "completions"), chatReq)
	if err != nil {
		return nil, sdkError("completions", err)
	}

	out := &agentenv.Completion{ID: resp.ID, Model: resp.Model}
	for _, choice := range resp.Choices {
		c := agentenv.CompletionChoice{
			Index:        choice.Index,
			Message:      agentenv.ChatMessage{Role: choice.Message.Role, Content: choice.Message.Content},
			FinishReason: string(choice.FinishReason),
		}
		for _, call := range choice.Message.ToolCalls {
			c.ToolCalls = append(c.ToolCalls, agentenv.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
		out.Choices = append(out.Choices, c)
	}
	return out, nil
}

// ListModels returns the models the hub can serve.
func (a *Adapter) ListModels(ctx context.Context) ([]Model, error) {
	list, err := a.llm.ListModels(withOperation(ctx, "list_models"))
	if err != nil {
		return nil, sdkError("list_models", err)
	}
	models := make([]Model, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, Model{ID: m.ID, OwnedBy: m.OwnedBy, Created: m.CreatedAt})
	}
	return models, nil
}
