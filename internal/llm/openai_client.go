package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4.1"

// OpenAIClient implements the Client interface using the official OpenAI SDK.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient constructs a client that talks to the OpenAI chat API.
func NewOpenAIClient(apiKey, modelName string) (Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(key)),
		model:  model,
	}, nil
}

func (c *OpenAIClient) GetModelName() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.CompleteWithRequest(ctx, &CompletionRequest{
		Messages: []*Message{
			{Role: "user", Content: prompt},
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *OpenAIClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	params, err := c.buildChatParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return &CompletionResponse{StopReason: "stop"}, nil
	}

	choice := completion.Choices[0]
	stopReason := choice.FinishReason
	if strings.TrimSpace(stopReason) == "" {
		stopReason = "stop"
	}

	return &CompletionResponse{
		Content:    choice.Message.Content,
		ToolCalls:  convertOpenAIToolCalls(choice.Message.ToolCalls),
		StopReason: stopReason,
		Usage: Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req *CompletionRequest, callback func(chunk string) error) error {
	params, err := c.buildChatParams(req)
	if err != nil {
		return err
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := callback(delta); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}

	return nil
}

func (c *OpenAIClient) buildChatParams(req *CompletionRequest) (openai.ChatCompletionNewParams, error) {
	if req == nil {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai completion request cannot be nil")
	}

	messages, err := convertMessagesToOpenAI(req.SystemPrompt, req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("openai completion requires at least one message")
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertOpenAITools(req.Tools)
	}

	return params, nil
}

func convertMessagesToOpenAI(systemPrompt string, messages []*Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		result = append(result, openai.SystemMessage(sys))
	}

	for idx, msg := range messages {
		if msg == nil {
			continue
		}

		switch normalizeRole(msg.Role) {
		case "system":
			if text := strings.TrimSpace(msg.Content); text != "" {
				result = append(result, openai.SystemMessage(text))
			}
		case "assistant":
			result = append(result, buildOpenAIAssistantMessage(msg))
		case "tool":
			if strings.TrimSpace(msg.ToolID) == "" {
				return nil, fmt.Errorf("tool message at index %d is missing its call id", idx)
			}
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolID))
		default:
			if msg.Content == "" {
				continue
			}
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result, nil
}

func buildOpenAIAssistantMessage(msg *Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}

	for idx, call := range msg.ToolCalls {
		callID := strings.TrimSpace(call.ID)
		if callID == "" {
			callID = fmt.Sprintf("tool_call_%d", idx)
		}

		arguments := "{}"
		if len(call.Arguments) > 0 {
			if data, err := json.Marshal(call.Arguments); err == nil {
				arguments = string(data)
			}
		}

		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: callID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: arguments,
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, def := range tools {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}

		fn := shared.FunctionDefinitionParam{Name: name}
		if desc := strings.TrimSpace(def.Description); desc != "" {
			fn.Description = openai.String(desc)
		}
		if def.Parameters != nil {
			fn.Parameters = shared.FunctionParameters(def.Parameters)
		}

		result = append(result, openai.ChatCompletionToolParam{Function: fn})
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func convertOpenAIToolCalls(calls []openai.ChatCompletionMessageToolCall) []ToolCall {
	var result []ToolCall
	for _, call := range calls {
		fn := call.Function
		if fn.Name == "" {
			continue
		}
		result = append(result, ToolCall{
			ID:        call.ID,
			Name:      fn.Name,
			Arguments: decodeArguments(fn.Arguments),
		})
	}
	return result
}

// decodeArguments parses a JSON argument payload into a map. Invalid or
// non-object payloads are preserved under a "raw" key so the executor can
// still surface them to the model.
func decodeArguments(raw string) map[string]interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]interface{}{}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		if decoded == nil {
			return map[string]interface{}{}
		}
		return decoded
	}

	return map[string]interface{}{"raw": raw}
}
