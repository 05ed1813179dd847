package llm

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const perMessageOverhead = 4

// EstimateTokens approximates the token count of a text for the given model.
// Falls back to a bytes/4 heuristic when no encoding is available.
func EstimateTokens(modelID, text string) int {
	if text == "" {
		return 0
	}
	if encoder := encodingForModel(modelID); encoder != nil {
		return len(encoder.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// EstimateMessageTokens approximates the prompt cost of a message list,
// including tool call payloads and per-message framing overhead.
func EstimateMessageTokens(modelID string, messages []*Message) int {
	total := 0
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		total += EstimateTokens(modelID, msg.Content) + perMessageOverhead
		if len(msg.ToolCalls) > 0 {
			if data, err := json.Marshal(msg.ToolCalls); err == nil {
				total += EstimateTokens(modelID, string(data))
			}
		}
	}
	return total
}

func encodingForModel(modelID string) *tiktoken.Tiktoken {
	if encoder, err := tiktoken.EncodingForModel(modelID); err == nil {
		return encoder
	}
	if fallback, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		return fallback
	}
	return nil
}
