// Package usercache keeps the last consumed copy of every user, fed by user lifecycle events.
package usercache

import (
	"sync"
	"sync/atomic"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/user"
	"github.com/corray333/backend-labs/usersync/pkg/events"
)

// Cache maps user ids to the payload of the most recently applied event for that id.
// Entries never expire. Reads do not block the writer.
type Cache struct {
	entries sync.Map
	size    atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{}
}

// Apply overwrites the entry of the event's user with the payload for user.created
// and user.updated; any other routing key is ignored and reported as not applied.
// Applying the same event again leaves the cache unchanged.
func (c *Cache) Apply(key events.RoutingKey, u user.User) (bool, error) {
	if !key.IsUserLifecycle() {
		return false, nil
	}
	if err := u.Validate(); err != nil {
		return false, err
	}

	if _, loaded := c.entries.Swap(u.ID, u); !loaded {
		c.size.Add(1)
	}

	return true, nil
}

// Get returns the cached copy of the user.
func (c *Cache) Get(id string) (user.User, bool) {
	v, ok := c.entries.Load(id)
	if !ok {
		return user.User{}, false
	}

	return v.(user.User), true
}

// Has reports whether the user was ever seen in an event.
func (c *Cache) Has(id string) bool {
	_, ok := c.entries.Load(id)

	return ok
}

// Len returns the number of cached users.
func (c *Cache) Len() int {
	return int(c.size.Load())
}
