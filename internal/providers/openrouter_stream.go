package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// ChatStream streams a chat completion through the OpenAI SDK. Usage is
// requested in the final chunk.
func (c *OpenRouterClient) ChatStream(ctx context.Context, req *ChatRequest, onChunk func(StreamChunk) error) (*StreamSummary, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model(req)),
		Messages:    toSDKMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	summary := &StreamSummary{}
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Model != "" {
			summary.ModelUsed = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			summary.Usage = Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			summary.FinishReason = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		summary.Chunks++
		if err := onChunk(StreamChunk{Delta: choice.Delta.Content}); err != nil {
			return summary, err
		}
	}
	if err := stream.Err(); err != nil {
		return summary, mapOpenAIError(err)
	}
	return summary, nil
}

func toSDKMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// mapOpenAIError turns SDK API errors into plain errors with the status code
// and upstream message. Context errors pass through unchanged.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("OpenRouter stream error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenRouter stream error (status %d)", apiErr.StatusCode)
	}
	return err
}
