package zpt

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session groups the views of one logical caller.
type Session struct {
	ID        string
	ClientID  string
	CreatedAt time.Time
	ViewIDs   []string
}

// View is the immutable record of one navigation call.
type View struct {
	ID        string
	SessionID string
	Request   Request

	// ElementIDs and Scores record the selection, aligned by index.
	ElementIDs []string
	Scores     []float64

	// TimingsMS holds elapsed milliseconds per pipeline stage.
	TimingsMS map[string]int64

	// Mode is "live" or "fallback".
	Mode string

	// CommunityMethod names the detection algorithm behind community data.
	CommunityMethod string

	// Warnings lists degraded strategies.
	Warnings []string

	// ErrCode is the taxonomy code when the call failed, empty on success.
	ErrCode string

	CreatedAt time.Time
}

// SessionStore is the append-only session and view log.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // by client id
	views     map[string]View
	viewOrder []string

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		views:    make(map[string]View),
		now:      time.Now,
	}
}

// Begin returns the client's session, creating it on first use.
func (s *SessionStore) Begin(clientID string) Session {
	if clientID == "" {
		clientID = "anonymous"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[clientID]
	if !ok {
		sess = &Session{
			ID:        uuid.NewString(),
			ClientID:  clientID,
			CreatedAt: s.now(),
		}
		s.sessions[clientID] = sess
	}
	return *sess
}

// Append records one view under its session and returns it with identifiers
// and timestamp filled in.
func (s *SessionStore) Append(view View) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view.ID = uuid.NewString()
	view.CreatedAt = s.now()
	s.views[view.ID] = view
	s.viewOrder = append(s.viewOrder, view.ID)

	if sess, ok := s.sessions[clientOf(view)]; ok && sess.ID == view.SessionID {
		sess.ViewIDs = append(sess.ViewIDs, view.ID)
	}
	return view
}

func clientOf(view View) string {
	if view.Request.ClientID == "" {
		return "anonymous"
	}
	return view.Request.ClientID
}

// View returns one view by id.
func (s *SessionStore) View(id string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	return v, ok
}

// Views returns every view in append order.
func (s *SessionStore) Views() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]View, 0, len(s.viewOrder))
	for _, id := range s.viewOrder {
		out = append(out, s.views[id])
	}
	return out
}

// Session returns the session for one client.
func (s *SessionStore) Session(clientID string) (Session, bool) {
	if clientID == "" {
		clientID = "anonymous"
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[clientID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}
