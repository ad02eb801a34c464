package focus

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeProbe replays a scripted sequence of samples. The last entry
// repeats once the script runs out.
type fakeProbe struct {
	script []func() (Sample, error)
	calls  int
}

func (f *fakeProbe) Sample(ctx context.Context, appName string) (Sample, error) {
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i]()
}

func sampleOf(state State, title string) func() (Sample, error) {
	return func() (Sample, error) { return Sample{State: state, WindowTitle: title}, nil }
}

func probeError() (Sample, error) {
	return Sample{}, errors.New("probe exploded")
}

func collectEvents(t *testing.T, tr *Tracker, steps int) []Event {
	t.Helper()
	var events []Event
	for i := 0; i < steps; i++ {
		tr.step(context.Background(), func(ev Event) {
			events = append(events, ev)
		})
	}
	return events
}

func TestTrackerFocusTransitions(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateNotRunning, ""),
		sampleOf(StateRunningNotFocused, ""),
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateRunningNotFocused, ""),
		sampleOf(StateNotRunning, ""),
	}}
	tr := NewTracker(probe, "Messages", time.Second, 3)

	events := collectEvents(t, tr, 5)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}

	if events[0].From != StateNotRunning || events[0].To != StateRunningNotFocused {
		t.Errorf("event 0 = %+v, want launch transition", events[0])
	}
	if events[1].To != StateFocused || events[1].Title != "Alice" {
		t.Errorf("event 1 = %+v, want focus gain with title", events[1])
	}
	if events[1].Refresh {
		t.Error("focus gain should not be marked as refresh")
	}
	if events[2].From != StateFocused || events[2].To != StateRunningNotFocused {
		t.Errorf("event 2 = %+v, want focus loss", events[2])
	}
	if events[3].To != StateNotRunning {
		t.Errorf("event 3 = %+v, want app quit", events[3])
	}

	if tr.State() != StateNotRunning {
		t.Errorf("final state = %s, want not_running", tr.State())
	}
}

func TestTrackerRefreshCadence(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateFocused, "Alice"),
	}}
	tr := NewTracker(probe, "Messages", time.Second, 3)

	// Gain on poll 1, then refreshes on polls 4 and 7.
	events := collectEvents(t, tr, 7)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Refresh {
		t.Error("first event should be the focus gain, not a refresh")
	}
	for i, ev := range events[1:] {
		if !ev.Refresh {
			t.Errorf("event %d = %+v, want refresh", i+1, ev)
		}
		if ev.Title != "Alice" {
			t.Errorf("refresh title = %q, want Alice", ev.Title)
		}
	}
}

func TestTrackerConversationSwitch(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateFocused, "Bob"),
		sampleOf(StateFocused, "Bob"),
	}}
	tr := NewTracker(probe, "Messages", time.Second, 3)

	events := collectEvents(t, tr, 4)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[1].Title != "Bob" || events[1].Refresh {
		t.Errorf("event 1 = %+v, want immediate non-refresh event for Bob", events[1])
	}
	if events[1].From != StateFocused || events[1].To != StateFocused {
		t.Errorf("conversation switch should stay focused, got %+v", events[1])
	}
}

func TestTrackerConversationSwitchResetsCadence(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateFocused, "Bob"), // reset here
		sampleOf(StateFocused, "Bob"),
		sampleOf(StateFocused, "Bob"),
		sampleOf(StateFocused, "Bob"), // refresh lands here
	}}
	tr := NewTracker(probe, "Messages", time.Second, 3)

	events := collectEvents(t, tr, 6)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if !events[2].Refresh {
		t.Errorf("event 2 = %+v, want refresh after full cadence from switch", events[2])
	}
}

func TestTrackerHoldsStateOnProbeError(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateFocused, "Alice"),
		probeError,
		probeError,
		sampleOf(StateFocused, "Alice"),
	}}
	tr := NewTracker(probe, "Messages", time.Second, 3)

	events := collectEvents(t, tr, 4)
	if len(events) != 1 {
		t.Fatalf("expected only the focus gain, got %d: %+v", len(events), events)
	}
	if tr.State() != StateFocused {
		t.Errorf("state = %s, want focused held across errors", tr.State())
	}
}

func TestTrackerErrorDoesNotAdvanceCadence(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateFocused, "Alice"),
		probeError,
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateFocused, "Alice"),
		sampleOf(StateFocused, "Alice"),
	}}
	tr := NewTracker(probe, "Messages", time.Second, 3)

	// Error poll does not count toward the refresh cadence, so the
	// refresh lands on the fifth step, not the fourth.
	events := collectEvents(t, tr, 5)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if !events[1].Refresh {
		t.Errorf("event 1 = %+v, want refresh", events[1])
	}
}

func TestTrackerRunStopsOnCancel(t *testing.T) {
	probe := &fakeProbe{script: []func() (Sample, error){
		sampleOf(StateNotRunning, ""),
	}}
	tr := NewTracker(probe, "Messages", 5*time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, nil)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if probe.calls < 2 {
		t.Errorf("expected repeated polling, got %d calls", probe.calls)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNotRunning:        "not_running",
		StateRunningNotFocused: "running_not_focused",
		StateFocused:           "focused",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
