package relay

import (
	"sync"
	"time"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Transcript is one finalized transcript observed on a session.
type Transcript struct {
	ItemID    string    `json:"item_id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the bookkeeping record for one connection id. The relay
// never alters relayed frames based on it; it only feeds the REST surface.
type Session struct {
	ID            string
	StartTime     time.Time
	EndTime       *time.Time
	AudioDuration float64
	Transcripts   []Transcript
	Status        string
	ErrorMessage  string

	mu sync.RWMutex
}

// Snapshot is a marshal-safe copy of a Session at one point in time.
type Snapshot struct {
	ID            string       `json:"id"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	AudioDuration float64      `json:"audio_duration_seconds"`
	Transcripts   []Transcript `json:"transcripts"`
	Status        string       `json:"status"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// AppendTranscript records a finalized transcript.
func (s *Session) AppendTranscript(itemID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transcripts = append(s.Transcripts, Transcript{
		ItemID:    itemID,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// AddAudio accumulates synthesized audio duration in seconds.
func (s *Session) AddAudio(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioDuration += seconds
}

// Complete marks the session finished if it is still active.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusActive {
		return
	}
	s.Status = StatusCompleted
	now := time.Now()
	s.EndTime = &now
}

// Fail marks the session errored with the given message.
func (s *Session) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusError
	s.ErrorMessage = message
	now := time.Now()
	s.EndTime = &now
}

// Snapshot returns a copy safe to marshal without holding the lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:            s.ID,
		StartTime:     s.StartTime,
		AudioDuration: s.AudioDuration,
		Status:        s.Status,
		ErrorMessage:  s.ErrorMessage,
	}
	if s.EndTime != nil {
		end := *s.EndTime
		snap.EndTime = &end
	}
	snap.Transcripts = make([]Transcript, len(s.Transcripts))
	copy(snap.Transcripts, s.Transcripts)
	return snap
}

// Store keeps session records across reconnects, keyed by connection id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it when absent. A
// finished session is resumed: status resets to active, historical
// transcripts are kept.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.mu.Lock()
		if s.Status == StatusCompleted || s.Status == StatusError {
			s.Status = StatusActive
			s.EndTime = nil
			s.ErrorMessage = ""
			s.AudioDuration = 0
		}
		s.mu.Unlock()
		return s
	}

	s := &Session{
		ID:          id,
		StartTime:   time.Now(),
		Status:      StatusActive,
		Transcripts: make([]Transcript, 0),
	}
	st.sessions[id] = s
	return s
}

// Get returns the session for id, if any.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}
