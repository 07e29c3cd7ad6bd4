package model

import (
	"sync"
	"time"
)

// Flash is a transient status-bar message with a deadline. The status bar
// polls Get on every redraw, so expiry needs no timer of its own.
type Flash struct {
	mu       sync.Mutex
	text     string
	deadline time.Time
}

// Set replaces the current message; it stays visible for d.
func (f *Flash) Set(text string, d time.Duration) {
	f.mu.Lock()
	f.text = text
	f.deadline = time.Now().Add(d)
	f.mu.Unlock()
}

// Get returns the message while it is still live, "" afterwards.
func (f *Flash) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.text == "" || time.Now().After(f.deadline) {
		return ""
	}
	return f.text
}
