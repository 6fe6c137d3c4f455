package realtime

import (
	"sync"

	"github.com/yeremiapane/table-order/utils"
)

type client struct {
	role   string
	sender Sender
}

// Registry tracks which identities are online and partitions them by
// role for broadcast. It holds at most one handle per identity: a new
// registration for the same identity silently supersedes the previous
// handle without closing it. All methods are safe for concurrent use;
// handlers must never touch the maps directly.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]client
	roles   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]client),
		roles:   make(map[string]map[string]struct{}),
	}
}

// Register stores the handle under identity and indexes it in the
// role's broadcast set, replacing any previous handle for the same
// identity.
func (r *Registry) Register(identity, role string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.clients[identity]; ok && prev.role != role {
		delete(r.roles[prev.role], identity)
	}
	r.clients[identity] = client{role: role, sender: s}
	if r.roles[role] == nil {
		r.roles[role] = make(map[string]struct{})
	}
	r.roles[role][identity] = struct{}{}

	utils.InfoLogger.Printf("Registered %s connection for %s (%d online)", role, identity, len(r.clients))
}

// Deregister removes identity from both maps, but only while s still
// owns the slot. A superseded handle's close event must not tear down
// the registration that replaced it.
func (r *Registry) Deregister(identity string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.clients[identity]
	if !ok || cur.sender != s {
		return
	}
	delete(r.clients, identity)
	delete(r.roles[cur.role], identity)

	utils.InfoLogger.Printf("Deregistered %s connection for %s (%d online)", cur.role, identity, len(r.clients))
}

// Get returns the handle registered under identity.
func (r *Registry) Get(identity string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[identity]
	if !ok {
		return nil, false
	}
	return c.sender, true
}

// CountByRole returns how many connections of role are registered.
func (r *Registry) CountByRole(role string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles[role])
}

// Broadcast sends v to every registered connection of role. Each send
// is independent: a dead handle is logged and skipped, never reported
// to the caller. Cleanup of dead handles happens only through that
// handle's own close event.
func (r *Registry) Broadcast(role string, v interface{}) {
	r.mu.RLock()
	senders := make(map[string]Sender, len(r.roles[role]))
	for identity := range r.roles[role] {
		if c, ok := r.clients[identity]; ok {
			senders[identity] = c.sender
		}
	}
	r.mu.RUnlock()

	for identity, s := range senders {
		if err := s.Send(v); err != nil {
			utils.ErrorLogger.Printf("Broadcast to %s (%s) failed: %v", identity, role, err)
		}
	}
}
