package llm

import (
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageAdd(t *testing.T) {
	total := Usage{InputTokens: 10, OutputTokens: 5}
	total.Add(Usage{InputTokens: 3, OutputTokens: 7})

	assert.Equal(t, int64(13), total.InputTokens)
	assert.Equal(t, int64(12), total.OutputTokens)
	assert.Equal(t, int64(25), total.Total())
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient("mystery", "key", "model")
	assert.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("anthropic", " ", "model")
	assert.Error(t, err)

	_, err = NewClient("openai", "", "model")
	assert.Error(t, err)
}

func TestDecodeArguments(t *testing.T) {
	args := decodeArguments(`{"path": "/a", "count": 2}`)
	assert.Equal(t, "/a", args["path"])
	assert.Equal(t, float64(2), args["count"])

	assert.Empty(t, decodeArguments(""))
	assert.Empty(t, decodeArguments("null"))

	broken := decodeArguments("{not json")
	assert.Equal(t, "{not json", broken["raw"])
}

func TestConvertMessagesToAnthropicRoles(t *testing.T) {
	system, chat, err := convertMessagesToAnthropic("be brief", []*Message{
		{Role: "system", Content: "extra system"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi", ToolCalls: []ToolCall{{ID: "c1", Name: "read_file"}}},
		{Role: "tool", ToolID: "c1", Content: "result"},
		nil,
	})
	require.NoError(t, err)

	assert.Len(t, system, 2)
	// user, assistant, tool-result-as-user
	assert.Len(t, chat, 3)
}

func TestConvertOpenAIToolsAndCalls(t *testing.T) {
	params := convertOpenAITools([]ToolDefinition{
		{Name: "read_file", Description: "read a file", Parameters: map[string]interface{}{"type": "object"}},
		{Name: "  "},
	})
	require.Len(t, params, 1)
	assert.Equal(t, "read_file", params[0].Function.Name)

	calls := convertOpenAIToolCalls([]openai.ChatCompletionMessageToolCall{
		{ID: "c1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "read_file", Arguments: `{"path":"/a"}`}},
		{ID: "c2"},
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "/a", calls[0].Arguments["path"])
}

func TestBuildOpenAIAssistantMessage(t *testing.T) {
	msg := buildOpenAIAssistantMessage(&Message{
		Role:    "assistant",
		Content: "working on it",
		ToolCalls: []ToolCall{
			{Name: "stat", Arguments: map[string]interface{}{"path": "/"}},
		},
	})
	require.NotNil(t, msg.OfAssistant)
	require.Len(t, msg.OfAssistant.ToolCalls, 1)

	call := msg.OfAssistant.ToolCalls[0]
	assert.Equal(t, "tool_call_0", call.ID)
	assert.Equal(t, "stat", call.Function.Name)
	assert.JSONEq(t, `{"path":"/"}`, call.Function.Arguments)
}

func TestEstimateTokensFallback(t *testing.T) {
	assert.Zero(t, EstimateTokens("gpt-4", ""))
	assert.Positive(t, EstimateTokens("gpt-4", "some words to count"))

	messages := []*Message{
		{Role: "user", Content: "hello there"},
		{Role: "assistant", Content: "reply", ToolCalls: []ToolCall{{ID: "1", Name: "stat"}}},
	}
	assert.Positive(t, EstimateMessageTokens("gpt-4", messages))
}
