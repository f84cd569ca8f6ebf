// Package hub implements the server half of the system: the UDP forwarder
// (§4.12), the control-plane registry and command server (§4.11), and the
// discovery broadcaster (§6). Grounded on
// _examples/original_source/server/server.py, generalized from its
// ad-hoc dict-of-dicts state to the richer per-client record spec.md §3
// specifies.
package hub

import (
	"crypto/md5"
	"fmt"
	"sort"
	"sync"
	"time"
)

// clientEntry is one ClientRegistry row (spec.md §3).
type clientEntry struct {
	id            string
	ip            string
	audioPort     int
	secret        string
	room          string
	targets       map[string]struct{}
	lastHeartbeat time.Time
}

// Registry is the Hub's single coarse-locked table of
// {clients, rooms} per spec.md §9 ("Global mutable client registry...
// do not expose it as module-level state" — so it is instantiated at Hub
// start and owned by the Hub, never a package-level var).
type Registry struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rooms   map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*clientEntry),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register implements REGISTER:<id>:<audio_port>[:<secret>]. It returns
// taken=true (and does not mutate state) if id is already registered, per
// spec.md §3 ("One ClientId may be registered to at most one endpoint at a
// time") and the end-to-end scenario in spec.md §8 ("Takeover rejection").
func (r *Registry) Register(id, ip string, audioPort int, secret string) (taken bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; exists {
		return true
	}
	r.clients[id] = &clientEntry{
		id:            id,
		ip:            ip,
		audioPort:     audioPort,
		secret:        secret,
		targets:       make(map[string]struct{}),
		lastHeartbeat: time.Now(),
	}
	return false
}

// errNotRegistered is returned by operations that require a prior REGISTER.
var errNotRegistered = fmt.Errorf("hub: client not registered")

// Join implements JOIN:<id>:<room>, moving id into room (leaving any prior
// room) and returns the room's derived multicast address.
func (r *Registry) Join(id, room string) (multicastAddr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return "", errNotRegistered
	}

	if c.room != "" {
		r.removeFromRoomLocked(c.room, id)
	}
	c.room = room
	c.lastHeartbeat = time.Now()
	if room != "" {
		members := r.rooms[room]
		if members == nil {
			members = make(map[string]struct{})
			r.rooms[room] = members
		}
		members[id] = struct{}{}
	}
	return MulticastGroupForRoom(room), nil
}

func (r *Registry) removeFromRoomLocked(room, id string) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// SetTargets implements TARGETS/TALK:<id>:<csv>.
func (r *Registry) SetTargets(id string, targets []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return errNotRegistered
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	c.targets = set
	c.lastHeartbeat = time.Now()
	return nil
}

// Heartbeat implements PING:<id>.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return errNotRegistered
	}
	c.lastHeartbeat = time.Now()
	return nil
}

// Unregister implements UNREGISTER:<id>.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) {
	c, ok := r.clients[id]
	if !ok {
		return
	}
	if c.room != "" {
		r.removeFromRoomLocked(c.room, id)
	}
	delete(r.clients, id)
}

// List implements LIST: comma-separated sorted ids.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Endpoint is a snapshot of one registered client's routing-relevant state,
// used by the forwarder without holding the registry lock across a send.
type Endpoint struct {
	ID        string
	IP        string
	AudioPort int
	Room      string
	Targets   map[string]struct{}
}

// Lookup returns a snapshot of id's endpoint, or ok=false if unregistered.
func (r *Registry) Lookup(id string) (Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return Endpoint{}, false
	}
	return snapshotLocked(c), true
}

// RoomMembers returns a snapshot of every registered endpoint currently in
// room (excluding none; callers exclude the sender themselves).
func (r *Registry) RoomMembers(room string) []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.rooms[room]
	out := make([]Endpoint, 0, len(ids))
	for id := range ids {
		if c, ok := r.clients[id]; ok {
			out = append(out, snapshotLocked(c))
		}
	}
	return out
}

// AllTargets returns a snapshot of every endpoint in id's target set.
func (r *Registry) AllTargets(id string) []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	out := make([]Endpoint, 0, len(c.targets))
	for t := range c.targets {
		if other, ok := r.clients[t]; ok {
			out = append(out, snapshotLocked(other))
		}
	}
	return out
}

func snapshotLocked(c *clientEntry) Endpoint {
	targets := make(map[string]struct{}, len(c.targets))
	for t := range c.targets {
		targets[t] = struct{}{}
	}
	return Endpoint{ID: c.id, IP: c.ip, AudioPort: c.audioPort, Room: c.room, Targets: targets}
}

// Reap removes every client whose last heartbeat is older than timeout and
// returns their ids, per spec.md §3 (CLIENT_TIMEOUT_SEC) and §7 ("client
// reaper: on heartbeat age exceeding CLIENT_TIMEOUT_SEC, removed silently").
func (r *Registry) Reap(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, c := range r.clients {
		if now.Sub(c.lastHeartbeat) > timeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.removeLocked(id)
	}
	return expired
}

// MulticastGroupForRoom derives a room's multicast address per spec.md
// §4.12: 239.0.0.<h> where h = (md5(room) mod 255) + 1.
func MulticastGroupForRoom(room string) string {
	sum := md5.Sum([]byte(room))
	// Treat the digest as a big-endian integer mod 255, matching
	// Python's int(hashlib.md5(...).hexdigest(), 16) % 255 semantics: fold
	// the digest bytes through a running mod-255 accumulator.
	var acc int
	for _, b := range sum {
		acc = (acc*256 + int(b)) % 255
	}
	h := acc + 1
	return fmt.Sprintf("239.0.0.%d", h)
}
