package client

import (
	"sync"
	"time"
)

// typingIdle is how long after the last keystroke the stop signal fires.
const typingIdle = 1500 * time.Millisecond

// TypingNotifier is the debouncer's outbound edge, implemented by Socket.
type TypingNotifier interface {
	SendTyping(conversationId string, typing bool) error
}

// Debouncer turns a stream of keystrokes into at most one start and one
// stop signal per burst. The first keystroke signals typing, further
// keystrokes within the idle window only push the stop signal out, and the
// stop fires once the window elapses with no activity.
type Debouncer struct {
	mu sync.Mutex

	conversationId string
	notify         TypingNotifier
	idle           time.Duration

	timer  *time.Timer
	active bool
	closed bool
}

func NewDebouncer(conversationId string, notify TypingNotifier) *Debouncer {
	return &Debouncer{
		conversationId: conversationId,
		notify:         notify,
		idle:           typingIdle,
	}
}

// Activity records a keystroke. The start signal is sent only on the
// idle-to-typing transition.
func (d *Debouncer) Activity() {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return
	}

	start := !d.active
	d.active = true

	if d.timer == nil {
		d.timer = time.AfterFunc(d.idle, d.expire)
	} else {
		d.timer.Reset(d.idle)
	}
	d.mu.Unlock()

	if start {
		d.notify.SendTyping(d.conversationId, true)
	}
}

// Sent reports that a message went out, which ends the burst immediately
// instead of waiting out the idle window.
func (d *Debouncer) Sent() {
	d.stop(true)
}

// Close cancels the pending stop signal and, if a burst is live, signals
// its end. The debouncer cannot be reused afterwards.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.stop(true)
}

func (d *Debouncer) expire() {
	d.stop(false)
}

// stop ends the current burst. With cancelTimer set the pending timer is
// also stopped, for the paths where the caller, not the timer, ends it.
func (d *Debouncer) stop(cancelTimer bool) {
	d.mu.Lock()

	wasActive := d.active
	d.active = false
	if cancelTimer && d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	if wasActive {
		d.notify.SendTyping(d.conversationId, false)
	}
}
