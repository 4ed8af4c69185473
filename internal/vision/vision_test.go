package vision

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ecommate/internal/domain"
	"ecommate/internal/logger"
)

type stubClient struct {
	reply string
	err   error

	gotMime string
	calls   int
}

func (s *stubClient) CompleteWithImage(_ context.Context, _ string, _ []byte, mime string) (string, error) {
	s.calls++
	s.gotMime = mime
	return s.reply, s.err
}

// 1x1 PNG header is enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestAnalyzeBytes_Success(t *testing.T) {
	client := &stubClient{reply: "```json\n" + `{"description":"linen shirt","style":"minimalist","color_palette":["white","beige","grey","black"],"material":"linen","target_audience":""}` + "\n```"}
	res := NewAnalyzer(client, nil).AnalyzeBytes(context.Background(), pngBytes)

	require.NoError(t, res.Err)
	assert.Equal(t, domain.OutcomeOK, res.Outcome)
	assert.Equal(t, "image/png", client.gotMime)
	assert.Equal(t, domain.VisualAttributes{
		Description:    "linen shirt",
		Style:          "minimalist",
		ColorPalette:   []string{"white", "beige", "grey"},
		Material:       "linen",
		TargetAudience: "unknown",
	}, res.Attributes)
	assert.False(t, IsUnrecognized(res.Attributes))
}

func TestAnalyzeBytes_NonJSONFallsBack(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	client := &stubClient{reply: "I cannot see any product here."}
	res := NewAnalyzer(client, logger.FromZap(zap.New(core))).AnalyzeBytes(context.Background(), pngBytes)

	assert.Equal(t, domain.OutcomeDegraded, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrInvalidJSON)
	assert.Equal(t, Fallback(), res.Attributes)
	assert.Equal(t, "I cannot see any product here.", res.Raw)
	assert.True(t, IsUnrecognized(res.Attributes))
	assert.Equal(t, 1, logs.FilterMessage("falling back to placeholder attributes").Len())
}

func TestAnalyzeBytes_ServiceErrorFallsBack(t *testing.T) {
	res := NewAnalyzer(&stubClient{err: errors.New("503")}, nil).AnalyzeBytes(context.Background(), pngBytes)
	assert.Equal(t, domain.OutcomeDegraded, res.Outcome)
	assert.Error(t, res.Err)
	assert.Equal(t, Fallback(), res.Attributes)
}

func TestAnalyzeBytes_EmptyResponse(t *testing.T) {
	res := NewAnalyzer(&stubClient{reply: "  "}, nil).AnalyzeBytes(context.Background(), pngBytes)
	assert.ErrorIs(t, res.Err, ErrEmptyResponse)
	assert.Equal(t, domain.OutcomeDegraded, res.Outcome)
}

func TestAnalyze_MissingFileNeverCallsModel(t *testing.T) {
	client := &stubClient{reply: `{}`}
	res := NewAnalyzer(client, nil).Analyze(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	assert.Equal(t, domain.OutcomeDegraded, res.Outcome)
	assert.Equal(t, Fallback(), res.Attributes)
	assert.Zero(t, client.calls)
}

func TestAnalyze_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shirt.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o644))

	client := &stubClient{reply: `{"description":"tee","style":"sporty","color_palette":null,"material":"cotton","target_audience":"students"}`}
	res := NewAnalyzer(client, nil).Analyze(context.Background(), path)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{}, res.Attributes.ColorPalette)
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("Sure! {\"a\":1} hope this helps"))
	assert.Equal(t, "", cleanJSON("```"))
}

func TestFallback_IsFreshCopy(t *testing.T) {
	a := Fallback()
	a.ColorPalette = append(a.ColorPalette, "red")
	assert.Empty(t, Fallback().ColorPalette)
	assert.NotNil(t, Fallback().ColorPalette)
}

func TestParse_InvalidJSONKeepsDecoderError(t *testing.T) {
	_, err := Parse(`{"description": 42}`)
	assert.ErrorIs(t, err, ErrInvalidJSON)
	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &typeErr)
}
