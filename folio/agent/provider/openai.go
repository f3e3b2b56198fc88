// Package provider implements reasoning backends for the orchestrator.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/chat"
	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4oMini

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// OpenAI calls an OpenAI-compatible chat completions endpoint with tool support.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a provider. baseURL may be empty for the public API.
func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai provider requires an api key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *OpenAI) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toMessages(in),
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
	}
	if opts.Seed != 0 {
		seed := opts.Seed
		req.Seed = &seed
	}
	if len(in.Tools) > 0 {
		req.Tools = toTools(in.Tools)
		req.ToolChoice = toolChoice(opts.ToolChoice)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, errors.New("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := ports.Completion{
		Text: msg.Content,
		Raw:  resp,
		Usage: &ports.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

func toMessages(in ports.PromptInput) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: in.System})
	}
	for _, e := range in.Messages {
		switch e.Role {
		case chat.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    e.Content,
				ToolCallID: e.CallID,
			})
		case chat.RoleAssistant:
			m := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: e.Content}
			for _, c := range e.ToolCalls {
				args := string(c.Arguments)
				if args == "" {
					args = "{}"
				}
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:       c.CallID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: c.Tool, Arguments: args},
				})
			}
			msgs = append(msgs, m)
		case chat.RoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.Content})
		default:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: e.Content})
		}
	}
	return msgs
}

func toTools(specs []ports.ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		params := json.RawMessage(s.JSONSchema)
		if len(params) == 0 {
			params = emptySchema
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func toolChoice(choice string) any {
	switch choice {
	case "", "auto":
		return "auto"
	case "none":
		return "none"
	default:
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: choice}}
	}
}

var _ ports.Provider = (*OpenAI)(nil)
