package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"ecommate/internal/pipeline"
	"ecommate/internal/session"
	"ecommate/internal/vision"
)

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

type generateRequest struct {
	Style  string `json:"style"`
	Length string `json:"length"`
	Note   string `json:"note"`
}

type generateResponse struct {
	RunID string         `json:"run_id"`
	Text  string         `json:"text"`
	Debug *session.Debug `json:"debug"`
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.log.Info(module, "session created", map[string]any{"session": sess.ID})
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Clear(); err != nil {
		s.log.Warn(module, "temp image not removed", map[string]any{"session": sess.ID, "error": err})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "upload is not an image")
		return
	}

	name := safeName(header.Filename)
	path, err := s.writeTemp(sess.ID, name, data)
	if err != nil {
		s.log.Error(module, "temp image not written", map[string]any{"session": sess.ID, "error": err})
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	sess.SetImage(path, name, data)
	s.log.Info(module, "image uploaded", map[string]any{"session": sess.ID, "name": name, "bytes": len(data)})
	writeJSON(w, http.StatusCreated, map[string]any{"name": name, "size": len(data)})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Style = strings.TrimSpace(req.Style)
	if req.Style == "" {
		writeError(w, http.StatusBadRequest, "style is required")
		return
	}
	if !sess.BeginGenerate() {
		writeError(w, http.StatusConflict, "a generation is already running for this session")
		return
	}
	defer sess.EndGenerate()

	path, err := s.ensureTempImage(sess)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	note := strings.TrimSpace(req.Note)
	sess.SetNote(note)
	sess.Append(session.Message{Role: session.RoleUser, Kind: session.KindText, Text: requestSummary(req.Style, req.Length, note)})

	st, runErr := s.runner.Run(r.Context(), pipeline.Input{
		Image:      pipeline.ImageRef{Path: path},
		Style:      req.Style,
		LengthHint: req.Length,
		Note:       note,
	})
	debug := debugOf(st)
	if runErr != nil {
		s.log.Error(module, "generation failed", map[string]any{"session": sess.ID, "error": runErr})
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": "copy generation failed, please try again",
			"debug": debug,
		})
		return
	}
	if s.opts.RejectUnrecognized && vision.IsUnrecognized(*st.Attributes) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "the product in the image could not be recognized",
			"debug": debug,
		})
		return
	}

	sess.Append(session.Message{Role: session.RoleAssistant, Kind: session.KindResult, Text: *st.FinalText, Debug: debug})
	writeJSON(w, http.StatusOK, generateResponse{RunID: st.RunID, Text: *st.FinalText, Debug: debug})
}

// ensureTempImage returns a path holding the session's latest image, restoring
// it from history if the temp file was removed after an earlier run.
func (s *Server) ensureTempImage(sess *session.Session) (string, error) {
	name, data, ok := sess.LastImage()
	if !ok {
		return "", fmt.Errorf("upload an image first")
	}
	path := sess.TempImagePath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	path, err := s.writeTemp(sess.ID, name, data)
	if err != nil {
		return "", fmt.Errorf("restore image: %w", err)
	}
	return path, nil
}

func (s *Server) writeTemp(sessionID, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.opts.TempDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.opts.TempDir, sessionID+"-"+name)
	return path, os.WriteFile(path, data, 0o600)
}

func safeName(name string) string {
	name = unsafeName.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." || name == "_" {
		return "upload"
	}
	return name
}

func requestSummary(style, length, note string) string {
	if length == "" {
		length = "moderate"
	}
	if note == "" {
		note = "none"
	}
	return fmt.Sprintf("Style: %s, length: %s. Note: %s", style, length, note)
}

func debugOf(st *pipeline.State) *session.Debug {
	if st == nil || st.Attributes == nil {
		return nil
	}
	return &session.Debug{
		Attributes:       *st.Attributes,
		References:       st.References,
		VisionOutcome:    st.VisionOutcome,
		RetrievalOutcome: st.RetrievalOutcome,
	}
}
