// Package trigger implements the one-shot trigger-callback registry used to
// script an interactive login.
//
// A trigger is a literal substring. Decoded text is fed into the registry,
// which accumulates it; as soon as a registered trigger appears in the
// accumulated text its action is handed back to the caller, the entry is
// removed and the whole buffer is cleared. One match consumes the buffer:
// this is a deliberate simplification, not a general parser.
//
// The registry is safe for concurrent use. Actions are never invoked while
// the registry lock is held, so an action may register or remove triggers.
package trigger

import (
	"strings"
	"sync"
)

// DefaultMaxBuffer bounds the accumulated text kept while no trigger matches.
// Only the most recent bytes are retained.
const DefaultMaxBuffer = 8192

// Action is run when its trigger is seen.
type Action func()

// Match is a trigger that fired.
type Match struct {
	Trigger string
	Action  Action
}

type entry struct {
	trigger string
	action  Action
}

// Registry maps triggers to actions and owns the accumulation buffer.
type Registry struct {
	mu        sync.Mutex
	entries   []entry // registration order decides which trigger wins
	buf       strings.Builder
	maxBuffer int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{maxBuffer: DefaultMaxBuffer}
}

// Register adds or replaces the action for trigger.
// A registry holds at most one entry per distinct trigger.
func (r *Registry) Register(trigger string, action Action) {
	if trigger == "" || action == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].trigger == trigger {
			r.entries[i].action = action
			return
		}
	}
	r.entries = append(r.entries, entry{trigger: trigger, action: action})
}

// Remove deletes trigger if present.
func (r *Registry) Remove(trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(trigger)
}

// Clear removes every trigger and empties the buffer.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.buf.Reset()
}

// Len returns the number of registered triggers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Buffered returns the text accumulated since the last match.
func (r *Registry) Buffered() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// Feed appends text to the buffer and checks every trigger against it.
// On the first match the entry is removed, the buffer is cleared and the
// match is returned; the caller runs the action.
func (r *Registry) Feed(text string) (Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf.WriteString(text)
	accumulated := r.buf.String()

	for _, e := range r.entries {
		if strings.Contains(accumulated, e.trigger) {
			r.removeLocked(e.trigger)
			r.buf.Reset()
			return Match{Trigger: e.trigger, Action: e.action}, true
		}
	}

	if len(accumulated) > r.maxBuffer {
		tail := accumulated[len(accumulated)-r.maxBuffer:]
		r.buf.Reset()
		r.buf.WriteString(tail)
	}
	return Match{}, false
}

func (r *Registry) removeLocked(trigger string) {
	for i := range r.entries {
		if r.entries[i].trigger == trigger {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}
