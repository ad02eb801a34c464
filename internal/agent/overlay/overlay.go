// Package overlay owns the suggestion window: one reused surface whose
// visibility is driven by focus transitions and suggestion pushes. The
// native window is behind the Renderer interface so default builds and
// tests run without a toolkit.
package overlay

import (
	"context"
	"sync"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/logging"
)

// Visibility is the overlay state machine's current node.
type Visibility int

const (
	Hidden Visibility = iota
	ShowingLoading
	ShowingSuggestions
)

func (v Visibility) String() string {
	switch v {
	case ShowingLoading:
		return "showing_loading"
	case ShowingSuggestions:
		return "showing_suggestions"
	default:
		return "hidden"
	}
}

// Renderer is the interface a native overlay window must satisfy.
// In desktop builds a wails window implements this; everywhere else the
// headless renderer does.
type Renderer interface {
	Show()
	Hide()
	Move(x, y int)
	SetSize(width, height int)
	RenderLoading()
	RenderSuggestions(items []string)
}

// Inserter types accepted text into the focused app.
type Inserter func(ctx context.Context, text string) error

// rowHeight is the vertical space one extra suggestion button adds.
const rowHeight = 44

// Controller runs the overlay state machine over a single renderer.
// All methods are safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	cfg        config.OverlayConfig
	renderer   Renderer
	inserter   Inserter
	position   func(width, height int) (int, int)
	visibility Visibility
	items      []string
	closed     bool

	onSelected func(index int, text string, inserted bool)
	onClosed   func()
}

// NewController builds the controller around a renderer. The default
// inserter and position come from the platform; tests swap them.
func NewController(cfg config.OverlayConfig, r Renderer) *Controller {
	c := &Controller{
		cfg:      cfg,
		renderer: r,
		inserter: insertText,
	}
	c.position = func(width, height int) (int, int) {
		return anchorPoint(cfg.Anchor, width, height, cfg.MarginX, cfg.MarginY)
	}
	return c
}

// OnSelected installs the callback fired after a suggestion click, with
// whether the text made it into the host app.
func (c *Controller) OnSelected(fn func(index int, text string, inserted bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSelected = fn
}

// OnClosed installs the callback fired when the user dismisses the
// overlay for the rest of the session.
func (c *Controller) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

// SetInserter replaces the platform text inserter.
func (c *Controller) SetInserter(fn Inserter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserter = fn
}

// Visibility returns the current state.
func (c *Controller) Visibility() Visibility {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibility
}

// Closed reports whether the user dismissed the overlay. It stays true
// until the agent process is relaunched.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Items returns the currently displayed suggestions.
func (c *Controller) Items() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.items))
	copy(out, c.items)
	return out
}

// ShowLoading moves to ShowingLoading: the window appears (positioned
// only when coming from Hidden) with the disabled placeholder.
func (c *Controller) ShowLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	w, h := c.sizeFor(1)
	c.renderer.SetSize(w, h)
	if c.visibility == Hidden {
		// Position is decided once per appearance. A drag while
		// visible sticks until the window hides again.
		x, y := c.position(w, h)
		c.renderer.Move(x, y)
		c.renderer.Show()
	}
	c.items = nil
	c.visibility = ShowingLoading
	c.renderer.RenderLoading()
}

// Apply installs a pushed suggestion set wholesale. Loading sets keep
// the placeholder up; final sets (including empty ones) move to
// ShowingSuggestions. Sets arriving while hidden or closed are stale
// and dropped.
func (c *Controller) Apply(items []string, loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.visibility == Hidden {
		return
	}

	if loading {
		c.items = nil
		c.visibility = ShowingLoading
		c.renderer.RenderLoading()
		return
	}

	c.items = make([]string, len(items))
	copy(c.items, items)
	c.visibility = ShowingSuggestions
	c.renderer.SetSize(c.sizeFor(len(c.items)))
	c.renderer.RenderSuggestions(c.items)
}

// Hide returns to Hidden without destroying the window.
func (c *Controller) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hideLocked()
}

func (c *Controller) hideLocked() {
	if c.visibility == Hidden {
		return
	}
	c.items = nil
	c.visibility = Hidden
	c.renderer.Hide()
}

// Click handles a tap on suggestion button index: best-effort insertion
// into the host app, then the selected callback, then Hidden.
func (c *Controller) Click(index int) {
	c.mu.Lock()
	if c.visibility != ShowingSuggestions || index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return
	}
	text := c.items[index]
	ins := c.inserter
	fn := c.onSelected
	c.mu.Unlock()

	inserted := false
	if ins != nil {
		if err := ins(context.Background(), text); err != nil {
			logging.Debugf("[overlay] insertion failed: %v", err)
		} else {
			inserted = true
		}
	}
	if fn != nil {
		fn(index, text, inserted)
	}
	c.Hide()
}

// Close handles the user dismissing the overlay: hide, notify, and stay
// down until a fresh activation relaunches the agent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.hideLocked()
	fn := c.onClosed
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Controller) sizeFor(count int) (int, int) {
	h := c.cfg.Height
	if count > 1 {
		h += (count - 1) * rowHeight
	}
	return c.cfg.Width, h
}
