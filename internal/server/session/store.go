package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the session store.
var (
	ErrNotFound      = errors.New("upload session not found")
	ErrBadChunkIndex = errors.New("chunk index out of range")
	ErrIncomplete    = errors.New("upload is missing chunks")
	ErrCountMismatch = errors.New("chunk count does not match session")
)

// Session tracks in-progress chunked reassembly of one file. Chunk bytes
// live as indexed part files in a private temp directory until Assemble,
// so arrival order and duplicates never matter.
type Session struct {
	ID          string
	Filename    string
	FileSize    int64
	TotalChunks int

	dir        string
	mu         sync.Mutex
	received   map[int]int64
	lastActive time.Time
}

// Received returns how many distinct chunks have arrived.
func (s *Session) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Store is an in-memory registry of upload sessions, keyed by opaque id.
// Session state is process-local and does not survive restarts; the sweeper
// reclaims sessions abandoned mid-upload.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	tmpRoot  string
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a session store. Part files are kept under tmpRoot,
// which must not be publicly served. Sessions idle longer than ttl are
// eligible for sweeping.
func NewStore(tmpRoot string, ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		tmpRoot:  tmpRoot,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create allocates a new session and its private chunk directory.
func (st *Store) Create(filename string, fileSize int64, totalChunks int) (*Session, error) {
	id := uuid.NewString()

	dir := filepath.Join(st.tmpRoot, "session-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Session{
		ID:          id,
		Filename:    filename,
		FileSize:    fileSize,
		TotalChunks: totalChunks,
		dir:         dir,
		received:    make(map[int]int64),
		lastActive:  st.now(),
	}

	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()

	return s, nil
}

// Get returns the session for an id, or ErrNotFound.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// WriteChunk stores one chunk's bytes under its index. A duplicate index
// overwrites the previous part file, so retries are idempotent.
func (st *Store) WriteChunk(id string, index int, data io.Reader) (int64, error) {
	s, err := st.Get(id)
	if err != nil {
		return 0, err
	}

	if index < 0 || index >= s.TotalChunks {
		return 0, fmt.Errorf("%w: %d of %d", ErrBadChunkIndex, index, s.TotalChunks)
	}

	part, err := os.Create(s.partPath(index))
	if err != nil {
		return 0, fmt.Errorf("failed to create part file: %w", err)
	}

	n, err := io.Copy(part, data)
	if err != nil {
		part.Close()
		os.Remove(part.Name())
		return 0, fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	if err := part.Close(); err != nil {
		os.Remove(part.Name())
		return 0, fmt.Errorf("failed to close part file: %w", err)
	}

	s.mu.Lock()
	s.received[index] = n
	s.lastActive = st.now()
	s.mu.Unlock()

	return n, nil
}

// Assemble verifies every chunk is present and concatenates the parts in
// index order into one file inside the session directory. The session is
// kept on failure so a client can resend what is missing.
func (st *Store) Assemble(id string, totalChunks int) (string, error) {
	s, err := st.Get(id)
	if err != nil {
		return "", err
	}

	if totalChunks != s.TotalChunks {
		return "", fmt.Errorf("%w: declared %d, session has %d", ErrCountMismatch, totalChunks, s.TotalChunks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := s.received[i]; !ok {
			return "", fmt.Errorf("%w: chunk %d never arrived", ErrIncomplete, i)
		}
	}

	assembled := filepath.Join(s.dir, "assembled")
	out, err := os.Create(assembled)
	if err != nil {
		return "", fmt.Errorf("failed to create assembly target: %w", err)
	}

	for i := 0; i < s.TotalChunks; i++ {
		if err := appendPart(out, s.partPath(i)); err != nil {
			out.Close()
			os.Remove(assembled)
			return "", err
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(assembled)
		return "", fmt.Errorf("failed to close assembled file: %w", err)
	}

	s.lastActive = st.now()
	return assembled, nil
}

// Remove discards a session's record and temp directory.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		os.RemoveAll(s.dir)
	}
}

// SweepExpired removes every session idle longer than the store's ttl and
// returns how many were reclaimed.
func (st *Store) SweepExpired() int {
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		os.RemoveAll(s.dir)
	}

	return len(expired)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (s *Session) partPath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("chunk-%06d", index))
}

func appendPart(dst *os.File, partPath string) error {
	part, err := os.Open(partPath)
	if err != nil {
		return fmt.Errorf("failed to open part file: %w", err)
	}
	defer part.Close()

	if _, err := io.Copy(dst, part); err != nil {
		return fmt.Errorf("failed to append part: %w", err)
	}
	return nil
}
