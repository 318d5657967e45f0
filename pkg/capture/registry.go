// Package capture keeps track of media URLs observed while a page session
// is open.
package capture

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
)

var ErrUnknownSession = errors.New("unknown session")

// EntryKind is a file-name guess of a playlist's role, made before the
// playlist is fetched.
type EntryKind string

const (
	EntryMaster  EntryKind = "master"
	EntryVariant EntryKind = "variant"
	EntryAudio   EntryKind = "audio"
	EntryUnknown EntryKind = "unknown"
)

// Entry is one captured media URL.
type Entry struct {
	URL        string         `json:"url"`
	CapturedAt time.Time      `json:"captured_at"`
	Kind       EntryKind      `json:"kind"`
	Media      m3u8.MediaKind `json:"media"`
	// Ext is the file extension of direct video entries.
	Ext string `json:"ext,omitempty"`
}

type session struct {
	openedAt time.Time
	entries  []Entry
	seen     map[string]struct{}
	parsed   map[string]*m3u8.Document
}

// Registry holds the captured entries of every open session. Its lifetime
// is owned by whoever opens and closes sessions; it is safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Open starts tracking sessionID. Opening an open session is a no-op.
func (r *Registry) Open(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		return
	}
	r.sessions[sessionID] = &session{
		openedAt: time.Now(),
		seen:     make(map[string]struct{}),
		parsed:   make(map[string]*m3u8.Document),
	}
}

// Record adds e to the session. It reports false when an entry with the
// same URL was already recorded.
func (r *Registry) Record(sessionID string, e Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false, ErrUnknownSession
	}
	if _, dup := s.seen[e.URL]; dup {
		return false, nil
	}
	s.seen[e.URL] = struct{}{}
	s.entries = append(s.entries, e)
	return true, nil
}

// Entries returns a copy of the session's entries in capture order.
func (r *Registry) Entries(sessionID string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return append([]Entry(nil), s.entries...), nil
}

// StoreDocument caches a parsed playlist for the session.
func (r *Registry) StoreDocument(sessionID string, doc *m3u8.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	s.parsed[doc.URL] = doc
	return nil
}

// Document returns a cached playlist.
func (r *Registry) Document(sessionID, url string) (*m3u8.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	doc, ok := s.parsed[url]
	return doc, ok
}

// Close forgets the session and everything recorded for it.
func (r *Registry) Close(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// Sessions lists open session IDs, oldest first.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.sessions[ids[i]], r.sessions[ids[j]]
		if a.openedAt.Equal(b.openedAt) {
			return ids[i] < ids[j]
		}
		return a.openedAt.Before(b.openedAt)
	})
	return ids
}
