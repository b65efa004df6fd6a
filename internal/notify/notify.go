package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification is one user-facing error message.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Center holds at most one notification. A new one replaces the current
// one; each is dismissed automatically after the configured timeout.
type Center struct {
	mu      sync.Mutex
	current *Notification
	timer   *time.Timer
	timeout time.Duration
	now     func() time.Time
}

// NewCenter creates a Center. A timeout <= 0 disables auto-dismiss.
func NewCenter(timeout time.Duration) *Center {
	return &Center{timeout: timeout, now: time.Now}
}

// Notify replaces the current notification.
func (c *Center) Notify(kind, message string) {
	n := &Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: c.now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = n
	if c.timeout > 0 {
		id := n.ID
		c.timer = time.AfterFunc(c.timeout, func() { c.Dismiss(id) })
	}
}

// Current returns the active notification, if any.
func (c *Center) Current() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notification{}, false
	}
	return *c.current, true
}

// Dismiss clears the notification with the given id. It reports false when
// that notification is no longer current.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.ID != id {
		return false
	}
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return true
}
