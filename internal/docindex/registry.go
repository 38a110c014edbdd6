package docindex

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNoHandle    = errors.New("no index handle")
	ErrStaleHandle = errors.New("index handle is stale or unknown")
)

// Handle identifies one registered index generation.
type Handle struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
}

func (h Handle) IsZero() bool { return h.SessionID == "" }

// SessionHandle builds a handle from a stored index reference. Generation
// zero matches whatever generation the session was registered under.
func SessionHandle(sessionID string) Handle {
	return Handle{SessionID: sessionID}
}

// Registry holds the live index. Registering a new index replaces the
// previous one; handles to earlier generations no longer resolve.
type Registry struct {
	mu         sync.RWMutex
	generation uint64
	current    Handle
	index      *Index
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs idx as the live index and returns its handle.
func (r *Registry) Register(idx *Index) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.current = Handle{SessionID: uuid.NewString(), Generation: r.generation}
	r.index = idx
	return r.current
}

// Lookup resolves a handle to the live index.
func (r *Registry) Lookup(h Handle) (*Index, error) {
	if h.IsZero() {
		return nil, ErrNoHandle
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil || h.SessionID != r.current.SessionID {
		return nil, ErrStaleHandle
	}
	if h.Generation != 0 && h.Generation != r.current.Generation {
		return nil, ErrStaleHandle
	}
	return r.index, nil
}

// Current returns the live handle, if any.
func (r *Registry) Current() (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.index != nil
}
