package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommate/internal/config"
	"ecommate/internal/domain"
	"ecommate/internal/pipeline"
	"ecommate/internal/session"
	"ecommate/internal/vision"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeRunner struct {
	inputs    []pipeline.Input
	imageSeen []byte
	attrs     domain.VisualAttributes
	err       error
}

func (f *fakeRunner) Run(_ context.Context, in pipeline.Input) (*pipeline.State, error) {
	f.inputs = append(f.inputs, in)
	f.imageSeen, _ = os.ReadFile(in.Image.Path)
	attrs := f.attrs
	st := &pipeline.State{
		RunID:      "run-1",
		Input:      in,
		Attributes: &attrs,
		References: []string{"ref"},
		Phase:      pipeline.PhaseRetrievalDone,
	}
	if f.err != nil {
		st.Phase = pipeline.PhaseFailed
		return st, f.err
	}
	text := "great copy"
	st.FinalText = &text
	st.Phase = pipeline.PhaseGenerationDone
	return st, nil
}

func newTestServer(t *testing.T, runner Runner, reject bool) (*Server, *session.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := session.NewStore(time.Minute)
	srv := New(runner, store, Options{
		TempDir:            dir,
		MaxUploadBytes:     1 << 20,
		RejectUnrecognized: reject,
		Styles:             []config.StylePreset{{Name: "bold", Tip: "loud"}},
	}, nil, prometheus.NewRegistry())
	return srv, store, dir
}

func do(t *testing.T, h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) string {
	rec := do(t, h, http.MethodPost, "/api/v1/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out["id"]
}

func upload(t *testing.T, h http.Handler, id, name string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return do(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/image", &buf, mw.FormDataContentType())
}

func generate(t *testing.T, h http.Handler, id, body string) *httptest.ResponseRecorder {
	return do(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/generate", bytes.NewBufferString(body), "application/json")
}

func TestGenerate_FullFlow(t *testing.T) {
	runner := &fakeRunner{attrs: domain.VisualAttributes{Description: "shirt"}}
	srv, store, _ := newTestServer(t, runner, false)
	h := srv.Handler()
	id := createSession(t, h)

	rec := upload(t, h, id, "../shirt photo.png", pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = generate(t, h, id, `{"style":"bold","length":"short","note":"free shipping"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "great copy", resp.Text)
	require.NotNil(t, resp.Debug)
	assert.Equal(t, []string{"ref"}, resp.Debug.References)

	require.Len(t, runner.inputs, 1)
	assert.Equal(t, "bold", runner.inputs[0].Style)
	assert.Equal(t, "short", runner.inputs[0].LengthHint)
	assert.Equal(t, "free shipping", runner.inputs[0].Note)
	assert.Equal(t, pngBytes, runner.imageSeen)
	assert.True(t, strings.HasSuffix(runner.inputs[0].Image.Path, "shirt_photo.png"))

	_, err := os.Stat(runner.inputs[0].Image.Path)
	assert.True(t, os.IsNotExist(err), "temp image removed after run")

	sess, _ := store.Get(id)
	kinds := []session.Kind{}
	for _, m := range sess.View().Messages {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []session.Kind{session.KindImage, session.KindText, session.KindResult}, kinds)
	assert.False(t, sess.View().Generating)
}

func TestGenerate_RestoresTempImageFromHistory(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, _ := newTestServer(t, runner, false)
	h := srv.Handler()
	id := createSession(t, h)
	require.Equal(t, http.StatusCreated, upload(t, h, id, "a.png", pngBytes).Code)

	require.Equal(t, http.StatusOK, generate(t, h, id, `{"style":"bold"}`).Code)
	require.Equal(t, http.StatusOK, generate(t, h, id, `{"style":"bold"}`).Code)
	assert.Equal(t, pngBytes, runner.imageSeen)
}

func TestGenerate_FailureIs502AndKeepsHistoryClean(t *testing.T) {
	runner := &fakeRunner{err: errors.New("generation failed: timeout")}
	srv, store, _ := newTestServer(t, runner, false)
	h := srv.Handler()
	id := createSession(t, h)
	upload(t, h, id, "a.png", pngBytes)

	rec := generate(t, h, id, `{"style":"bold"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "try again")

	sess, _ := store.Get(id)
	for _, m := range sess.View().Messages {
		assert.NotEqual(t, session.KindResult, m.Kind)
	}
	assert.False(t, sess.View().Generating)
}

func TestGenerate_RejectUnrecognized(t *testing.T) {
	runner := &fakeRunner{attrs: vision.Fallback()}
	srv, _, _ := newTestServer(t, runner, true)
	h := srv.Handler()
	id := createSession(t, h)
	upload(t, h, id, "a.png", pngBytes)

	assert.Equal(t, http.StatusUnprocessableEntity, generate(t, h, id, `{"style":"bold"}`).Code)
}

func TestGenerate_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeRunner{}, false)
	h := srv.Handler()
	id := createSession(t, h)

	assert.Equal(t, http.StatusBadRequest, generate(t, h, id, `{"style":"bold"}`).Code, "no image yet")
	assert.Equal(t, http.StatusBadRequest, generate(t, h, id, `{"style":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, generate(t, h, id, `not json`).Code)
	assert.Equal(t, http.StatusNotFound, generate(t, h, "missing", `{"style":"bold"}`).Code)
}

func TestUpload_RejectsNonImage(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeRunner{}, false)
	h := srv.Handler()
	id := createSession(t, h)
	assert.Equal(t, http.StatusUnsupportedMediaType, upload(t, h, id, "a.txt", []byte("hello there")).Code)
}

func TestClearSession(t *testing.T) {
	srv, store, _ := newTestServer(t, &fakeRunner{}, false)
	h := srv.Handler()
	id := createSession(t, h)
	upload(t, h, id, "a.png", pngBytes)
	sess, _ := store.Get(id)
	path := sess.TempImagePath()

	rec := do(t, h, http.MethodDelete, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sess.View().Messages)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStylesHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeRunner{}, false)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/styles", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"bold","tip":"loud"}]`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil, "").Code)

	rec = do(t, h, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ecommate_http_requests_total")
}
