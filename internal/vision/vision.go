package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"

	"ecommate/internal/domain"
	"ecommate/internal/logger"
)

const (
	module = "vision"

	// Placeholder marks attributes produced without a usable model answer.
	Placeholder = "unrecognized product"
	Unknown     = "unknown"

	Temperature = 0.01
	MaxTokens   = 1024
)

var (
	ErrEmptyResponse = errors.New("vision: empty model response")
	ErrInvalidJSON   = errors.New("vision: response is not a JSON object")
)

const instruction = `You are a senior e-commerce merchandising expert. Examine the product in this image carefully.
Extract its key visual attributes and answer with a single JSON object only, no prose:
{
  "description": "detailed appearance of the product: cut, pattern, notable details",
  "style": "overall style, e.g. retro, minimalist, sporty, business, streetwear",
  "color_palette": ["up to 3 dominant colors"],
  "material": "likely material, e.g. cotton, leather, silk, denim",
  "target_audience": "who it suits, e.g. young professionals, outdoor enthusiasts, students"
}`

// Result is the tagged outcome of one analysis. Attributes are always usable.
type Result struct {
	Attributes domain.VisualAttributes
	Outcome    domain.Outcome
	Err        error
	Raw        string
}

type Analyzer struct {
	client domain.ImageCompleter
	log    logger.Logger
}

func NewAnalyzer(client domain.ImageCompleter, log logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{client: client, log: log}
}

// Analyze reads the image at path and extracts its attributes.
// Every failure degrades to Fallback.
func (a *Analyzer) Analyze(ctx context.Context, path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return a.degrade(errors.Wrapf(err, "read image %s", path), "", map[string]any{"path": path})
	}
	return a.AnalyzeBytes(ctx, data)
}

// AnalyzeBytes runs the analysis on an image already in memory.
func (a *Analyzer) AnalyzeBytes(ctx context.Context, image []byte) Result {
	if len(image) == 0 {
		return a.degrade(errors.New("vision: empty image"), "", nil)
	}
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	raw, err := a.client.CompleteWithImage(ctx, instruction, image, mime)
	if err != nil {
		return a.degrade(errors.Wrap(err, "vision model call"), "", nil)
	}

	attrs, err := Parse(raw)
	if err != nil {
		return a.degrade(err, raw, nil)
	}
	return Result{Attributes: attrs, Outcome: domain.OutcomeOK, Raw: raw}
}

func (a *Analyzer) degrade(err error, raw string, details map[string]any) Result {
	if details == nil {
		details = map[string]any{}
	}
	details["error"] = err
	if raw != "" {
		details["raw"] = raw
	}
	a.log.Warn(module, "falling back to placeholder attributes", details)
	return Result{Attributes: Fallback(), Outcome: domain.OutcomeDegraded, Err: err, Raw: raw}
}

// Parse decodes a model answer into normalized attributes.
func Parse(raw string) (domain.VisualAttributes, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return domain.VisualAttributes{}, ErrEmptyResponse
	}
	var attrs domain.VisualAttributes
	if err := json.Unmarshal([]byte(cleaned), &attrs); err != nil {
		return domain.VisualAttributes{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return Normalize(attrs), nil
}

// cleanJSON removes markdown code fences and any prose around the object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// Normalize fills blank fields with "unknown" and caps the palette.
func Normalize(a domain.VisualAttributes) domain.VisualAttributes {
	a.Description = orUnknown(a.Description)
	a.Style = orUnknown(a.Style)
	a.Material = orUnknown(a.Material)
	a.TargetAudience = orUnknown(a.TargetAudience)

	palette := make([]string, 0, domain.MaxColors)
	for _, c := range a.ColorPalette {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(palette) == domain.MaxColors {
			break
		}
		palette = append(palette, c)
	}
	a.ColorPalette = palette
	return a
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

// Fallback is the placeholder record used whenever analysis fails.
func Fallback() domain.VisualAttributes {
	return domain.VisualAttributes{
		Description:    Placeholder,
		Style:          Unknown,
		ColorPalette:   []string{},
		Material:       Unknown,
		TargetAudience: Unknown,
	}
}

// IsUnrecognized reports whether attrs carry the placeholder description.
func IsUnrecognized(a domain.VisualAttributes) bool {
	return strings.Contains(a.Description, Placeholder)
}
