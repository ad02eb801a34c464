package overlay

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/quillhq/quill/internal/config"
)

func testConfig() config.OverlayConfig {
	return config.OverlayConfig{
		Anchor:  "bottom-right",
		Width:   380,
		Height:  96,
		MarginX: 24,
		MarginY: 48,
	}
}

func newTestController(t *testing.T) (*Controller, *HeadlessRenderer) {
	t.Helper()
	r := NewHeadlessRenderer()
	c := NewController(testConfig(), r)
	c.position = func(width, height int) (int, int) { return 10, 20 }
	c.SetInserter(func(ctx context.Context, text string) error { return nil })
	return c, r
}

func TestShowLoadingFromHidden(t *testing.T) {
	c, r := newTestController(t)

	c.ShowLoading()

	if c.Visibility() != ShowingLoading {
		t.Errorf("visibility = %s, want showing_loading", c.Visibility())
	}
	if !r.Visible() {
		t.Error("renderer should be visible")
	}
	if !r.Loading() {
		t.Error("renderer should show the placeholder")
	}
	x, y, w, h := r.Bounds()
	if x != 10 || y != 20 {
		t.Errorf("origin = (%d,%d), want (10,20)", x, y)
	}
	if w != 380 || h != 96 {
		t.Errorf("size = (%d,%d), want (380,96)", w, h)
	}
}

func TestApplyReplacesWholesale(t *testing.T) {
	c, r := newTestController(t)
	c.ShowLoading()

	c.Apply([]string{"A", "B", "C"}, false)

	if c.Visibility() != ShowingSuggestions {
		t.Fatalf("visibility = %s, want showing_suggestions", c.Visibility())
	}
	got := r.Items()
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("items = %v, want [A B C] in order", got)
	}

	c.Apply([]string{"D"}, false)
	got = r.Items()
	if len(got) != 1 || got[0] != "D" {
		t.Errorf("items = %v, want wholesale replacement with [D]", got)
	}
}

func TestApplyEmptySetShowsBlank(t *testing.T) {
	c, r := newTestController(t)
	c.ShowLoading()

	c.Apply(nil, false)

	if c.Visibility() != ShowingSuggestions {
		t.Errorf("visibility = %s, want showing_suggestions even when empty", c.Visibility())
	}
	if len(r.Items()) != 0 {
		t.Errorf("items = %v, want none", r.Items())
	}
	if !r.Visible() {
		t.Error("blank overlay should stay visible")
	}
}

func TestApplyWhileHiddenIsDropped(t *testing.T) {
	c, r := newTestController(t)

	c.Apply([]string{"stale"}, false)

	if c.Visibility() != Hidden {
		t.Errorf("visibility = %s, want hidden", c.Visibility())
	}
	if r.Visible() {
		t.Error("renderer should stay hidden for a stale set")
	}
}

func TestApplyLoadingKeepsPlaceholder(t *testing.T) {
	c, r := newTestController(t)
	c.ShowLoading()
	c.Apply([]string{"A"}, false)

	c.Apply(nil, true)

	if c.Visibility() != ShowingLoading {
		t.Errorf("visibility = %s, want showing_loading", c.Visibility())
	}
	if !r.Loading() {
		t.Error("renderer should be back on the placeholder")
	}
}

func TestHideClearsItems(t *testing.T) {
	c, r := newTestController(t)
	c.ShowLoading()
	c.Apply([]string{"A", "B"}, false)

	c.Hide()

	if c.Visibility() != Hidden {
		t.Errorf("visibility = %s, want hidden", c.Visibility())
	}
	if r.Visible() {
		t.Error("renderer should be hidden")
	}
	if len(c.Items()) != 0 {
		t.Errorf("items = %v, want cleared", c.Items())
	}
}

func TestClickEmitsSelectedThenHides(t *testing.T) {
	c, _ := newTestController(t)

	var gotIndex int
	var gotText string
	var gotInserted bool
	fired := 0
	c.OnSelected(func(index int, text string, inserted bool) {
		fired++
		gotIndex, gotText, gotInserted = index, text, inserted
	})

	c.ShowLoading()
	c.Apply([]string{"ok", "sure", "will do"}, false)
	c.Click(1)

	if fired != 1 {
		t.Fatalf("selected fired %d times, want 1", fired)
	}
	if gotIndex != 1 || gotText != "sure" || !gotInserted {
		t.Errorf("selected = (%d, %q, %v), want (1, sure, true)", gotIndex, gotText, gotInserted)
	}
	if c.Visibility() != Hidden {
		t.Errorf("visibility after click = %s, want hidden", c.Visibility())
	}
}

func TestClickInsertFailureStillEmits(t *testing.T) {
	c, _ := newTestController(t)
	c.SetInserter(func(ctx context.Context, text string) error { return errors.New("no permission") })

	var gotInserted bool
	fired := false
	c.OnSelected(func(index int, text string, inserted bool) {
		fired = true
		gotInserted = inserted
	})

	c.ShowLoading()
	c.Apply([]string{"ok"}, false)
	c.Click(0)

	if !fired {
		t.Fatal("selected callback should fire even when insertion fails")
	}
	if gotInserted {
		t.Error("inserted should be false when the inserter errors")
	}
}

func TestClickIgnoredOutsideSuggestions(t *testing.T) {
	c, _ := newTestController(t)
	fired := false
	c.OnSelected(func(int, string, bool) { fired = true })

	c.Click(0) // hidden

	c.ShowLoading()
	c.Click(0) // loading placeholder is disabled

	c.Apply([]string{"ok"}, false)
	c.Click(5)  // out of range
	c.Click(-1) // out of range

	if fired {
		t.Error("no click in those states should emit a selection")
	}
	if c.Visibility() != ShowingSuggestions {
		t.Errorf("visibility = %s, want showing_suggestions untouched", c.Visibility())
	}
}

func TestCloseDisablesUntilRelaunch(t *testing.T) {
	c, r := newTestController(t)
	closed := 0
	c.OnClosed(func() { closed++ })

	c.ShowLoading()
	c.Apply([]string{"A"}, false)
	c.Close()

	if closed != 1 {
		t.Fatalf("closed fired %d times, want 1", closed)
	}
	if c.Visibility() != Hidden || r.Visible() {
		t.Error("close should hide the window")
	}
	if !c.Closed() {
		t.Error("controller should report closed")
	}

	c.ShowLoading()
	if c.Visibility() != Hidden || r.Visible() {
		t.Error("overlay must stay down after an explicit close")
	}

	c.Close()
	if closed != 1 {
		t.Errorf("second close fired the callback again (%d)", closed)
	}
}

func TestPositionOnlyOnAppearance(t *testing.T) {
	c, _ := newTestController(t)
	positioned := 0
	c.position = func(width, height int) (int, int) {
		positioned++
		return 0, 0
	}

	c.ShowLoading()
	c.Apply([]string{"A", "B"}, false)
	c.ShowLoading() // conversation switch while visible
	if positioned != 1 {
		t.Fatalf("positioned %d times while visible, want 1", positioned)
	}

	c.Hide()
	c.ShowLoading()
	if positioned != 2 {
		t.Errorf("positioned %d times after re-show, want 2", positioned)
	}
}

func TestWindowGrowsWithCount(t *testing.T) {
	c, r := newTestController(t)
	c.ShowLoading()

	c.Apply([]string{"A", "B", "C"}, false)

	_, _, w, h := r.Bounds()
	if w != 380 {
		t.Errorf("width = %d, want 380", w)
	}
	if want := 96 + 2*rowHeight; h != want {
		t.Errorf("height = %d, want %d for three rows", h, want)
	}
}

func TestCornerOrigin(t *testing.T) {
	bounds := image.Rect(0, 0, 1920, 1080)

	tests := []struct {
		anchor string
		wantX  int
		wantY  int
	}{
		{"top-left", 24, 48},
		{"top-right", 1920 - 380 - 24, 48},
		{"bottom-left", 24, 1080 - 96 - 48},
		{"bottom-right", 1920 - 380 - 24, 1080 - 96 - 48},
		{"", 1920 - 380 - 24, 1080 - 96 - 48}, // unknown anchors fall back
	}
	for _, tt := range tests {
		x, y := cornerOrigin(bounds, tt.anchor, 380, 96, 24, 48)
		if x != tt.wantX || y != tt.wantY {
			t.Errorf("cornerOrigin(%q) = (%d,%d), want (%d,%d)", tt.anchor, x, y, tt.wantX, tt.wantY)
		}
	}
}

func TestCornerOriginOffsetDisplay(t *testing.T) {
	// Secondary-display style bounds that do not start at the origin
	bounds := image.Rect(1920, 200, 3840, 1280)

	x, y := cornerOrigin(bounds, "top-left", 380, 96, 24, 48)
	if x != 1944 || y != 248 {
		t.Errorf("origin = (%d,%d), want (1944,248)", x, y)
	}
}
