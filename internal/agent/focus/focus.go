// Package focus watches where the user's attention is relative to the
// messenger app: not running, running in the background, or frontmost.
// The agent drives overlay visibility off its transitions.
package focus

import (
	"context"
	"sync"
	"time"

	"github.com/quillhq/quill/internal/logging"
)

// State is the tracker's view of the watched app.
type State int

const (
	StateNotRunning State = iota
	StateRunningNotFocused
	StateFocused
)

func (s State) String() string {
	switch s {
	case StateFocused:
		return "focused"
	case StateRunningNotFocused:
		return "running_not_focused"
	default:
		return "not_running"
	}
}

// Sample is one probe reading.
type Sample struct {
	State       State
	WindowTitle string // frontmost window title, only meaningful when focused
}

// Probe inspects the desktop for the watched app.
type Probe interface {
	Sample(ctx context.Context, appName string) (Sample, error)
}

// Event is a focus transition or a periodic refresh while focus holds.
// A focused-to-focused event with Refresh=false means the window title
// changed, i.e. the user switched conversations.
type Event struct {
	From    State
	To      State
	Title   string
	Refresh bool
}

// Handler receives tracker events. It runs on the tracker's goroutine,
// so long work belongs elsewhere.
type Handler func(ev Event)

// Tracker polls a probe at a fixed cadence. Probe errors hold the last
// known state rather than flapping.
type Tracker struct {
	probe        Probe
	appName      string
	interval     time.Duration
	refreshEvery int

	mu        sync.Mutex
	state     State
	title     string
	sincePoll int
}

// NewTracker builds a tracker. refreshEvery is in polls: 3 means every
// third poll with unchanged focus re-emits a refresh event.
func NewTracker(probe Probe, appName string, interval time.Duration, refreshEvery int) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	if refreshEvery < 1 {
		refreshEvery = 1
	}
	return &Tracker{
		probe:        probe,
		appName:      appName,
		interval:     interval,
		refreshEvery: refreshEvery,
		state:        StateNotRunning,
	}
}

// State returns the last observed state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run polls until ctx is cancelled. The first probe happens immediately
// so startup does not wait out a full interval.
func (t *Tracker) Run(ctx context.Context, fn Handler) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.step(ctx, fn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.step(ctx, fn)
		}
	}
}

func (t *Tracker) step(ctx context.Context, fn Handler) {
	sample, err := t.probe.Sample(ctx, t.appName)
	if err != nil {
		t.mu.Lock()
		held := t.state
		t.mu.Unlock()
		logging.Debugf("[focus] probe failed, holding %s: %v", held, err)
		return
	}

	t.mu.Lock()
	prev, prevTitle := t.state, t.title
	t.state, t.title = sample.State, sample.WindowTitle

	var ev *Event
	switch {
	case sample.State == StateFocused && prev != StateFocused:
		t.sincePoll = 0
		ev = &Event{From: prev, To: StateFocused, Title: sample.WindowTitle}

	case sample.State == StateFocused && sample.WindowTitle != prevTitle:
		// Conversation switch while the app stays frontmost
		t.sincePoll = 0
		ev = &Event{From: StateFocused, To: StateFocused, Title: sample.WindowTitle}

	case sample.State == StateFocused:
		t.sincePoll++
		if t.sincePoll >= t.refreshEvery {
			t.sincePoll = 0
			ev = &Event{From: StateFocused, To: StateFocused, Title: sample.WindowTitle, Refresh: true}
		}

	case prev != sample.State:
		t.sincePoll = 0
		ev = &Event{From: prev, To: sample.State}
	}
	t.mu.Unlock()

	if ev != nil && fn != nil {
		fn(*ev)
	}
}
