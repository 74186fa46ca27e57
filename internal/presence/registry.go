// Package presence tracks which users are actively viewing which chats.
// This is distinct from broadcast subscription: the hub decides who
// receives an event, the registry decides read-receipt semantics.
package presence

import "sync"

// Registry is a concurrency-safe map from chat ID to the set of user IDs
// currently viewing that chat. A chat entry exists only while its member
// set is non-empty; the last Leave deletes it atomically.
type Registry struct {
	mu    sync.RWMutex
	chats map[string]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{chats: make(map[string]map[string]struct{})}
}

// Join marks userID as actively viewing chatID. Idempotent.
func (r *Registry) Join(chatID, userID string) {
	if chatID == "" || userID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.chats[chatID]
	if !ok {
		members = make(map[string]struct{})
		r.chats[chatID] = members
	}
	members[userID] = struct{}{}
}

// Leave removes userID from chatID's member set. The chat entry is
// deleted in the same critical section when the set becomes empty.
func (r *Registry) Leave(chatID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.chats[chatID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.chats, chatID)
	}
}

// IsMember reports whether userID is actively viewing chatID.
// Unknown chats return false.
func (r *Registry) IsMember(chatID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.chats[chatID]
	if !ok {
		return false
	}
	_, ok = members[userID]
	return ok
}

// Members returns a snapshot of the user IDs viewing chatID.
func (r *Registry) Members(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Len returns the number of chats with at least one active viewer.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chats)
}
