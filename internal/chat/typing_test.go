package chat

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRemoteTypingExpiry(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.quiescence = 50 * time.Millisecond
	tr.Bind(convA)

	tr.ApplyRemote(convA, true)
	if !tr.RemoteTyping() {
		t.Fatal("indicator not set")
	}

	time.Sleep(100 * time.Millisecond)
	if tr.RemoteTyping() {
		t.Error("indicator did not expire after quiescence window")
	}
}

func TestRemoteTypingRefreshExtendsExpiry(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.quiescence = 80 * time.Millisecond
	tr.Bind(convA)

	tr.ApplyRemote(convA, true)
	time.Sleep(50 * time.Millisecond)
	tr.ApplyRemote(convA, true) // re-arms the single timer
	time.Sleep(50 * time.Millisecond)

	if !tr.RemoteTyping() {
		t.Error("refresh did not extend the expiry window")
	}
	time.Sleep(60 * time.Millisecond)
	if tr.RemoteTyping() {
		t.Error("indicator did not expire after the refreshed window")
	}
}

func TestRemoteTypingFalseClearsImmediately(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Bind(convA)

	tr.ApplyRemote(convA, true)
	tr.ApplyRemote(convA, false)
	if tr.RemoteTyping() {
		t.Error("typing=false did not clear immediately")
	}
}

func TestRemoteTypingIgnoresOtherConversation(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Bind(convA)

	if tr.ApplyRemote(convB, true) {
		t.Error("event for another conversation changed the indicator")
	}
	if tr.RemoteTyping() {
		t.Error("indicator set by another conversation's event")
	}
}

func TestBindClearsIndicatorAndTimers(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.quiescence = time.Hour // would stick around without the switch clear
	tr.Bind(convA)
	tr.ApplyRemote(convA, true)

	tr.Bind(convB)
	if tr.RemoteTyping() {
		t.Error("indicator bled across conversation switch")
	}
}

func TestClearRemoteSupersedesExpiry(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.quiescence = time.Hour
	tr.Bind(convA)
	tr.ApplyRemote(convA, true)

	// A real message arrived: clears immediately, well before the timer.
	tr.ClearRemote()
	if tr.RemoteTyping() {
		t.Error("indicator survived message arrival")
	}
}

func TestOnChangeNotifications(t *testing.T) {
	var mu sync.Mutex
	var got []bool
	tr := NewTracker(nil, func(_ string, typing bool) {
		mu.Lock()
		got = append(got, typing)
		mu.Unlock()
	})
	tr.Bind(convA)

	tr.ApplyRemote(convA, true)
	tr.ApplyRemote(convA, true) // no transition, no notification
	tr.ApplyRemote(convA, false)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("notifications = %v, want [true false]", got)
	}
}

func TestRateLimiterCoalescesBurst(t *testing.T) {
	var fires atomic.Int32
	rl := newRateLimiter(60*time.Millisecond, func() { fires.Add(1) })

	// First call fires immediately; the burst coalesces into one trailing fire.
	for i := 0; i < 10; i++ {
		rl.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(120 * time.Millisecond)

	if got := fires.Load(); got != 2 {
		t.Errorf("fires = %d, want 2 (leading + trailing)", got)
	}
}

func TestRateLimiterCancelDropsTrailing(t *testing.T) {
	var fires atomic.Int32
	rl := newRateLimiter(60*time.Millisecond, func() { fires.Add(1) })

	rl.Trigger() // fires immediately
	rl.Trigger() // arms trailing
	rl.Cancel()
	time.Sleep(120 * time.Millisecond)

	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1 (trailing cancelled)", got)
	}
}

func TestRateLimiterSpacedCallsFireEachTime(t *testing.T) {
	var fires atomic.Int32
	rl := newRateLimiter(20*time.Millisecond, func() { fires.Add(1) })

	rl.Trigger()
	time.Sleep(40 * time.Millisecond)
	rl.Trigger()
	time.Sleep(40 * time.Millisecond)

	if got := fires.Load(); got != 2 {
		t.Errorf("fires = %d, want 2", got)
	}
}
