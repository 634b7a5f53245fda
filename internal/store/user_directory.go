package store

import (
	"sync"
	"time"

	"meview/internal/mewe"
)

// UserDirectory remembers feed participants across requests. Upstream only
// returns the users referenced by the current page, so names of authors from
// earlier pages (or of reply authors omitted from comment fetches) would be
// lost without it. Entries expire after a TTL to pick up renames.
type UserDirectory struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	users map[string]entry
}

type entry struct {
	user     mewe.User
	storedAt time.Time
}

// NewUserDirectory creates a directory whose entries live for ttl.
func NewUserDirectory(ttl time.Duration) *UserDirectory {
	return &UserDirectory{
		ttl:   ttl,
		now:   time.Now,
		users: make(map[string]entry),
	}
}

// Put records a single user.
func (d *UserDirectory) Put(u mewe.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = entry{user: u, storedAt: d.now()}
}

// PutAll records every user of a page-level user list. Expired entries are
// evicted on the way, keeping the map bounded on long-running processes.
func (d *UserDirectory) PutAll(users map[string]mewe.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, u := range users {
		d.users[id] = entry{user: u, storedAt: now}
	}
	d.prune()
}

// Get returns a remembered user. Expired entries count as misses.
func (d *UserDirectory) Get(id string) (mewe.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.users[id]
	if !ok || d.expired(e) {
		return mewe.User{}, false
	}
	return e.user, true
}

// Fill adds remembered users to a page's user list without overwriting the
// fresher entries the page itself carries. The map is modified in place.
func (d *UserDirectory) Fill(users map[string]mewe.User) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for id, e := range d.users {
		if d.expired(e) {
			continue
		}
		if _, ok := users[id]; !ok {
			users[id] = e.user
		}
	}
}

// Prune drops expired entries and reports how many were removed.
func (d *UserDirectory) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prune()
}

func (d *UserDirectory) prune() int {
	removed := 0
	for id, e := range d.users {
		if d.expired(e) {
			delete(d.users, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

func (d *UserDirectory) expired(e entry) bool {
	return d.ttl > 0 && d.now().Sub(e.storedAt) > d.ttl
}
