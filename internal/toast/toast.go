// Package toast holds short-lived notices shown to a user after an action.
package toast

import (
	"fmt"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

// Kind is the visual flavor of a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

const (
	// DefaultDuration applies when a notice is pushed without a duration.
	DefaultDuration = 5 * time.Second
	// ErrorDuration is used for failures so they stay readable a little longer.
	ErrorDuration = 8 * time.Second

	idLength = 12
)

// Notice is a single toast.
type Notice struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Kind      Kind          `json:"type"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// ExpiresAt is the instant the notice disappears unless dismissed earlier.
func (n Notice) ExpiresAt() time.Time {
	return n.CreatedAt.Add(n.Duration)
}

// Expired reports whether the notice is gone at now.
func (n Notice) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt())
}

// Center keeps notices in creation order. It is safe for concurrent use.
type Center struct {
	mu      sync.Mutex
	notices []Notice
	newID   func() string
}

// NewCenter creates an empty center.
func NewCenter() (*Center, error) {
	gen, err := nanoid.Standard(idLength)
	if err != nil {
		return nil, fmt.Errorf("create id generator: %w", err)
	}
	return &Center{newID: gen}, nil
}

// Push adds a notice. A non-positive duration means DefaultDuration.
func (c *Center) Push(kind Kind, message string, duration time.Duration, now time.Time) Notice {
	if duration <= 0 {
		duration = DefaultDuration
	}
	n := Notice{
		ID:        c.newID(),
		Message:   message,
		Kind:      kind,
		Duration:  duration,
		CreatedAt: now,
	}
	c.mu.Lock()
	c.notices = append(c.notices, n)
	c.mu.Unlock()
	return n
}

func (c *Center) Success(message string, now time.Time) Notice {
	return c.Push(KindSuccess, message, DefaultDuration, now)
}

func (c *Center) Error(message string, now time.Time) Notice {
	return c.Push(KindError, message, ErrorDuration, now)
}

func (c *Center) Info(message string, now time.Time) Notice {
	return c.Push(KindInfo, message, DefaultDuration, now)
}

// Dismiss removes a notice early. It reports whether the notice existed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every notice.
func (c *Center) Clear() {
	c.mu.Lock()
	c.notices = nil
	c.mu.Unlock()
}

// Active prunes expired notices and returns a copy of the rest.
func (c *Center) Active(now time.Time) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

// Sweep prunes expired notices and returns how many were removed.
func (c *Center) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prune(now)
}

// Drain returns the live notices and empties the center.
func (c *Center) Drain(now time.Time) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	out := c.notices
	c.notices = nil
	return out
}

func (c *Center) prune(now time.Time) int {
	kept := c.notices[:0]
	for _, n := range c.notices {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	removed := len(c.notices) - len(kept)
	c.notices = kept
	return removed
}
