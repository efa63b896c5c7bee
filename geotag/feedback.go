// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geotag

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Event is published to subscribers on every feedback change.
type Event struct {
	Line    string `json:"line,omitempty"`
	State   State  `json:"state"`
	Current int64  `json:"current"`
	Total   int64  `json:"total"`
}

// Feedback is the operator facing log of a run plus its progress. It is
// safe for concurrent use.
type Feedback struct {
	current atomic.Int64
	total   atomic.Int64

	mu     sync.Mutex
	lines  []string
	state  State
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewFeedback returns an empty feedback log.
func NewFeedback() *Feedback {
	return &Feedback{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function to stop receiving
// them. Events are dropped when the subscriber falls behind. The channel is
// closed when the run ends.
func (f *Feedback) Subscribe(buffer int) (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, buffer)
	if f.closed {
		close(ch)

		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

func (f *Feedback) publishLocked(line string) {
	ev := Event{Line: line, State: f.state, Current: f.current.Load(), Total: f.total.Load()}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Line appends a line to the log.
func (f *Feedback) Line(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lines = append(f.lines, line)
	f.publishLocked(line)
}

// Lines returns a copy of the log.
func (f *Feedback) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.lines))
	copy(out, f.lines)

	return out
}

// Text is the log as newline terminated lines.
func (f *Feedback) Text() string {
	lines := f.Lines()
	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

func (f *Feedback) setState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = s
	f.publishLocked("")
}

// State is the last state published.
func (f *Feedback) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

func (f *Feedback) start(total int) {
	f.current.Store(0)
	f.total.Store(int64(total))
}

// advance counts one more processed photo.
func (f *Feedback) advance() int64 {
	n := f.current.Add(1)

	f.mu.Lock()
	f.publishLocked("")
	f.mu.Unlock()

	return n
}

// Progress returns processed and total photos.
func (f *Feedback) Progress() (current, total int64) {
	return f.current.Load(), f.total.Load()
}

// Percent is the progress in the 0..100 range. With nothing enumerated it
// is 0 until the run completes, then 100.
func (f *Feedback) Percent() int {
	current, total := f.Progress()
	if total <= 0 {
		if f.State() == StateCompleted {
			return 100
		}

		return 0
	}

	return int(float64(current) / float64(total) * 100)
}

// close ends every subscription.
func (f *Feedback) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
