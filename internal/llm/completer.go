package llm

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Completer adapts an eino chat model to the completion service boundary:
// (messages, temperature, max-token budget) -> generated text.
type Completer struct {
	model       model.BaseChatModel
	temperature float32
	maxTokens   int
}

func NewCompleter(m model.BaseChatModel, temperature float32, maxTokens int) *Completer {
	return &Completer{model: m, temperature: temperature, maxTokens: maxTokens}
}

// Complete sends a plain text prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, schema.UserMessage(prompt))
}

// CompleteWithImage sends instruction text plus an inline base64 image in one user message.
func (c *Completer) CompleteWithImage(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: instruction},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: DataURL(image, mimeType)}},
		},
	}
	return c.generate(ctx, msg)
}

func (c *Completer) generate(ctx context.Context, msgs ...*schema.Message) (string, error) {
	resp, err := c.model.Generate(ctx, msgs,
		model.WithTemperature(c.temperature),
		model.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("model returned nil response")
	}
	return resp.Content, nil
}

// DataURL encodes image bytes as a data URL.
func DataURL(image []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}
