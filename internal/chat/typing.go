package chat

import (
	"sync"
	"time"
)

const (
	// typingSendInterval caps outbound typing signals per conversation.
	typingSendInterval = 300 * time.Millisecond
	// typingQuiescence clears the remote indicator when no refresh arrives.
	typingQuiescence = 3 * time.Second
)

// rateLimiter coalesces bursts of calls into at most one fire per interval,
// with a trailing fire for calls that arrive inside the window.
type rateLimiter struct {
	mu        sync.Mutex
	interval  time.Duration
	lastFired time.Time
	pending   *time.Timer
	fire      func()
	now       func() time.Time
}

func newRateLimiter(interval time.Duration, fire func()) *rateLimiter {
	return &rateLimiter{interval: interval, fire: fire, now: time.Now}
}

// Trigger fires immediately when the window has passed, otherwise arms
// (or re-arms) a single trailing timer for the remainder of the window.
func (r *rateLimiter) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if elapsed := now.Sub(r.lastFired); elapsed >= r.interval {
		r.lastFired = now
		go r.fire()
		return
	}

	remaining := r.interval - now.Sub(r.lastFired)
	if r.pending != nil {
		r.pending.Stop()
	}
	r.pending = time.AfterFunc(remaining, func() {
		r.mu.Lock()
		r.lastFired = r.now()
		r.pending = nil
		r.mu.Unlock()
		r.fire()
	})
}

// Cancel drops any pending trailing fire.
func (r *rateLimiter) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

// Tracker owns all typing-indicator state for the open conversation:
// the outbound rate limiter and the inbound indicator with its expiry timer.
// At most one live expiry timer exists at any time (replace, don't stack).
type Tracker struct {
	mu sync.Mutex

	conversationID string
	remoteTyping   bool
	expiry         *time.Timer
	quiescence     time.Duration

	limiter *rateLimiter

	// onChange is invoked outside the lock whenever the indicator flips.
	onChange func(conversationID string, typing bool)
}

// NewTracker creates a typing tracker. send is called (rate-limited) to emit
// an outbound typing signal for the currently bound conversation; onChange
// observes remote indicator transitions.
func NewTracker(send func(conversationID string), onChange func(conversationID string, typing bool)) *Tracker {
	t := &Tracker{
		quiescence: typingQuiescence,
		onChange:   onChange,
	}
	t.limiter = newRateLimiter(typingSendInterval, func() {
		t.mu.Lock()
		id := t.conversationID
		t.mu.Unlock()
		if id != "" && send != nil {
			send(id)
		}
	})
	return t
}

// Bind switches the tracker to a new open conversation, clearing the remote
// indicator and cancelling every timer. No stale indicator bleeds across
// conversations.
func (t *Tracker) Bind(conversationID string) {
	t.limiter.Cancel()
	t.mu.Lock()
	t.conversationID = conversationID
	changed := t.remoteTyping
	t.remoteTyping = false
	t.stopExpiryLocked()
	t.mu.Unlock()
	if changed {
		t.notify(conversationID, false)
	}
}

// NotifyLocal registers local keystroke activity; outbound signals are
// coalesced to one per window.
func (t *Tracker) NotifyLocal() {
	t.limiter.Trigger()
}

// ApplyRemote handles an inbound typing event for the bound conversation.
// typing=true (re)arms the quiescence expiry; typing=false clears immediately.
// Returns true when the indicator changed.
func (t *Tracker) ApplyRemote(conversationID string, typing bool) bool {
	t.mu.Lock()
	if t.conversationID == "" || conversationID != t.conversationID {
		t.mu.Unlock()
		return false
	}

	if typing {
		changed := !t.remoteTyping
		t.remoteTyping = true
		t.stopExpiryLocked()
		t.expiry = time.AfterFunc(t.quiescence, t.expire)
		t.mu.Unlock()
		if changed {
			t.notify(conversationID, true)
		}
		return changed
	}

	changed := t.remoteTyping
	t.remoteTyping = false
	t.stopExpiryLocked()
	t.mu.Unlock()
	if changed {
		t.notify(conversationID, false)
	}
	return changed
}

// ClearRemote drops the indicator immediately. Called when a real message
// from the remote party lands: arrival supersedes any pending signal.
func (t *Tracker) ClearRemote() {
	t.mu.Lock()
	id := t.conversationID
	changed := t.remoteTyping
	t.remoteTyping = false
	t.stopExpiryLocked()
	t.mu.Unlock()
	if changed {
		t.notify(id, false)
	}
}

// RemoteTyping reports the current indicator state.
func (t *Tracker) RemoteTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteTyping
}

func (t *Tracker) expire() {
	t.mu.Lock()
	id := t.conversationID
	changed := t.remoteTyping
	t.remoteTyping = false
	t.expiry = nil
	t.mu.Unlock()
	if changed {
		t.notify(id, false)
	}
}

func (t *Tracker) stopExpiryLocked() {
	if t.expiry != nil {
		t.expiry.Stop()
		t.expiry = nil
	}
}

func (t *Tracker) notify(conversationID string, typing bool) {
	if t.onChange != nil {
		t.onChange(conversationID, typing)
	}
}
