package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"ecommate/internal/domain"
	"ecommate/internal/logger"
)

const (
	module = "generation"

	// DefaultLength replaces an empty length hint.
	DefaultLength = "moderate"

	Temperature = 0.7
	MaxTokens   = 500
)

// ErrGeneration wraps every failure of the completion service.
var ErrGeneration = errors.New("generation failed")

type Input struct {
	Attributes domain.VisualAttributes
	Style      string
	LengthHint string
	Note       string
	References []string
}

// BuildPrompt renders the single instruction sent to the completion service.
func BuildPrompt(in Input) string {
	length := strings.TrimSpace(in.LengthHint)
	if length == "" {
		length = DefaultLength
	}
	colors := "none identified"
	if len(in.Attributes.ColorPalette) > 0 {
		colors = strings.Join(in.Attributes.ColorPalette, ", ")
	}

	var b strings.Builder
	b.WriteString("You are an award-winning e-commerce copywriter. Write an engaging marketing text for the product below.\n\n")
	b.WriteString("[Product visual attributes]\n")
	fmt.Fprintf(&b, "description: %s\n", in.Attributes.Description)
	fmt.Fprintf(&b, "style: %s\n", in.Attributes.Style)
	fmt.Fprintf(&b, "colors: %s\n", colors)
	fmt.Fprintf(&b, "material: %s\n", in.Attributes.Material)
	fmt.Fprintf(&b, "target audience: %s\n\n", in.Attributes.TargetAudience)
	fmt.Fprintf(&b, "[Requested style]\n%s\n\n", in.Style)
	fmt.Fprintf(&b, "[Length]\n%s\n\n", length)
	if note := strings.TrimSpace(in.Note); note != "" {
		fmt.Fprintf(&b, "[Extra requirements from the user]\n%s\n\n", note)
	}
	b.WriteString("[High-scoring reference examples] (learn their tone and structure, do not copy them)\n")
	for _, ref := range in.References {
		fmt.Fprintf(&b, "- %s\n", ref)
	}
	b.WriteString("\n[Rules]\n")
	fmt.Fprintf(&b, "1. The text must match the \"%s\" style.\n", in.Style)
	b.WriteString("2. Highlight the visual selling points such as color and material.\n")
	b.WriteString("3. Avoid overused hype slang.\n")
	b.WriteString("4. Output only the copy itself, with no preamble such as \"Based on the information above\".\n")
	return b.String()
}

type Writer struct {
	client domain.Completer
	log    logger.Logger
}

func NewWriter(client domain.Completer, log logger.Logger) *Writer {
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{client: client, log: log}
}

// Write returns the model text verbatim. Failures are not replaced with
// placeholder copy.
func (w *Writer) Write(ctx context.Context, in Input) (string, error) {
	prompt := BuildPrompt(in)
	text, err := w.client.Complete(ctx, prompt)
	if err != nil {
		w.log.Error(module, "completion failed", map[string]any{"error": err, "style": in.Style})
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	w.log.Info(module, "copy generated", map[string]any{"style": in.Style, "chars": len([]rune(text))})
	return text, nil
}
