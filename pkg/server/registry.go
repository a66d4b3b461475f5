package server

import (
	"errors"
	"sort"
	"sync"
)

// ErrNameTaken is returned by Insert when the name is already registered.
// Insertion is the single authoritative uniqueness check; handlers must not
// rely on a lookup done before Insert.
var ErrNameTaken = errors.New("name already registered")

// Totals are the server-wide command counters, one increment per protocol
// event.
type Totals struct {
	Auth  uint64
	Name  uint64
	Say   uint64
	Kick  uint64
	List  uint64
	Leave uint64
}

// Registry is the shared collection of connected clients, kept sorted by
// name, plus the server-wide counters. Every operation runs under one
// exclusive lock: membership changes, broadcasts, list snapshots and the
// statistics snapshot are all mutually exclusive, so enumeration never
// observes the registry mid-mutation. Client counts are small and
// interactive, which makes the coarse lock the simple correct choice.
type Registry struct {
	mu      sync.Mutex
	clients []*Client
	totals  Totals
	metrics *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetMetrics attaches metrics to the registry.
func (r *Registry) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Insert adds a client at its lexicographic position. Returns ErrNameTaken
// if a client with the same name is already registered.
func (r *Registry) Insert(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.clients), func(i int) bool {
		return r.clients[i].Name >= c.Name
	})
	if i < len(r.clients) && r.clients[i].Name == c.Name {
		return ErrNameTaken
	}

	r.clients = append(r.clients, nil)
	copy(r.clients[i+1:], r.clients[i:])
	r.clients[i] = c

	if r.metrics != nil {
		r.metrics.RecordActiveClients(len(r.clients))
		r.metrics.RecordClientRegistered()
	}
	return nil
}

// Remove deletes the named client and closes its connection. A no-op when
// the name is absent, which defends against double-removal races between
// the leave path and the disconnect path.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.find(name)
	if !ok {
		return
	}
	c := r.clients[i]
	r.clients = append(r.clients[:i], r.clients[i+1:]...)
	c.Conn.Close()

	if r.metrics != nil {
		r.metrics.RecordActiveClients(len(r.clients))
	}
}

// Lookup returns the client registered under name.
func (r *Registry) Lookup(name string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.find(name)
	if !ok {
		return nil, false
	}
	return r.clients[i], true
}

// Names returns the registered names in ascending order at a consistent
// instant.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.clients))
	for i, c := range r.clients {
		names[i] = c.Name
	}
	return names
}

// ForEach applies visit to every client in ascending name order, inside the
// registry's critical section. visit must not call back into the registry:
// the lock is not re-entrant.
func (r *Registry) ForEach(visit func(*Client)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clients {
		visit(c)
	}
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Snapshot copies every client's counters in registry order together with
// the server totals, for the statistics report. Never mutates.
func (r *Registry) Snapshot() ([]ClientStats, Totals) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]ClientStats, len(r.clients))
	for i, c := range r.clients {
		stats[i] = ClientStats{Name: c.Name, Say: c.say, Kick: c.kick, List: c.list}
	}
	return stats, r.totals
}

// CloseAll closes every registered client connection and empties the
// registry. Used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clients {
		c.Conn.Close()
	}
	r.clients = nil

	if r.metrics != nil {
		r.metrics.RecordActiveClients(0)
	}
}

// BumpAuth counts one received AUTH line.
func (r *Registry) BumpAuth() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Auth++
	r.record("AUTH")
}

// BumpName counts one received NAME line, accepted or not.
func (r *Registry) BumpName() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Name++
	r.record("NAME")
}

// BumpSay counts one SAY for the client and the server totals.
func (r *Registry) BumpSay(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.say++
	r.totals.Say++
	r.record("SAY")
}

// BumpKick counts one KICK for the client and the server totals.
func (r *Registry) BumpKick(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.kick++
	r.totals.Kick++
	r.record("KICK")
}

// BumpList counts one LIST for the client and the server totals.
func (r *Registry) BumpList(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.list++
	r.totals.List++
	r.record("LIST")
}

// BumpLeave counts one explicit LEAVE. Disconnects are not counted.
func (r *Registry) BumpLeave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Leave++
	r.record("LEAVE")
}

// find locates name in the sorted slice. Caller holds the lock.
func (r *Registry) find(name string) (int, bool) {
	i := sort.Search(len(r.clients), func(i int) bool {
		return r.clients[i].Name >= name
	})
	return i, i < len(r.clients) && r.clients[i].Name == name
}

// record forwards a command to metrics. Caller holds the lock.
func (r *Registry) record(command string) {
	if r.metrics != nil {
		r.metrics.RecordCommand(command)
	}
}
