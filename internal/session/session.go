package session

import (
	"os"
	"sync"
	"time"

	"ecommate/internal/domain"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind says how a message renders.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindResult Kind = "result"
)

// Debug is the diagnostic payload attached to a result message.
type Debug struct {
	Attributes       domain.VisualAttributes `json:"attributes"`
	References       []string                `json:"references"`
	VisionOutcome    domain.Outcome          `json:"vision_outcome"`
	RetrievalOutcome domain.Outcome          `json:"retrieval_outcome"`
}

type Message struct {
	Role      Role      `json:"role"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	ImageName string    `json:"image_name,omitempty"`
	Image     []byte    `json:"image,omitempty"`
	Debug     *Debug    `json:"debug,omitempty"`
	Time      time.Time `json:"time"`
}

// Session is the per-user front-end state: chat history, the in-progress
// flag and the temp copy of the latest upload. Handlers receive it
// explicitly; it is safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu            sync.Mutex
	messages      []Message
	generating    bool
	tempImagePath string
	note          string
}

// View is a read-only copy of a session.
type View struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Messages      []Message `json:"messages"`
	Generating    bool      `json:"generating"`
	TempImagePath string    `json:"-"`
	Note          string    `json:"note,omitempty"`
}

func newSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now(), messages: []Message{}}
}

func (s *Session) Append(m Message) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return View{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		Messages:      msgs,
		Generating:    s.generating,
		TempImagePath: s.tempImagePath,
		Note:          s.note,
	}
}

// SetImage records a new upload: the temp file path plus a history entry
// holding the bytes, so the upload survives removal of the temp file.
func (s *Session) SetImage(path, name string, data []byte) {
	s.mu.Lock()
	if s.tempImagePath != "" && s.tempImagePath != path {
		_ = os.Remove(s.tempImagePath)
	}
	s.tempImagePath = path
	s.messages = append(s.messages, Message{
		Role: RoleUser, Kind: KindImage, ImageName: name, Image: data, Time: time.Now(),
	})
	s.mu.Unlock()
}

// TempImagePath is the path of the latest upload, or "" if none.
func (s *Session) TempImagePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempImagePath
}

// LastImage returns the most recent uploaded image from history.
func (s *Session) LastImage() (name string, data []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if m := s.messages[i]; m.Kind == KindImage && len(m.Image) > 0 {
			return m.ImageName, m.Image, true
		}
	}
	return "", nil, false
}

func (s *Session) SetNote(note string) {
	s.mu.Lock()
	s.note = note
	s.mu.Unlock()
}

// BeginGenerate marks a run in progress. It reports false if one already is.
func (s *Session) BeginGenerate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating {
		return false
	}
	s.generating = true
	return true
}

func (s *Session) EndGenerate() {
	s.mu.Lock()
	s.generating = false
	s.mu.Unlock()
}

// Clear empties the history and removes the temp image.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []Message{}
	s.note = ""
	path := s.tempImagePath
	s.tempImagePath = ""
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
