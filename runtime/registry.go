package runtime

import (
	"sync"

	"secret-santa/domain"
	"secret-santa/runtime/conversation"
)

var _ conversation.SessionStore = (*Registry)(nil)

// Registry keeps the conversation state of every user.
// States are values: a Save replaces the whole state, so a half written draft is never observed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]conversation.State
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.UserID]conversation.State),
	}
}

// Load returns the state of a user, the main menu for users never seen before.
func (r *Registry) Load(userID domain.UserID) conversation.State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if state, ok := r.sessions[userID]; ok {
		return state
	}
	return conversation.MainMenu{}
}

// Save stores the state of a user. Going back to the main menu frees the entry.
func (r *Registry) Save(userID domain.UserID, state conversation.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state == nil || state.Kind() == conversation.KindMainMenu {
		delete(r.sessions, userID)
		return
	}
	r.sessions[userID] = state
}

// Counts reports how many users are in each state, main menu excluded.
func (r *Registry) Counts() map[conversation.Kind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[conversation.Kind]int)
	for _, state := range r.sessions {
		counts[state.Kind()]++
	}
	return counts
}
