package overlay

import "sync"

// HeadlessRenderer tracks window state without a native surface. It is
// the renderer for non-desktop builds, where the agent still runs the
// full state machine so the host sees identical traffic.
type HeadlessRenderer struct {
	mu      sync.Mutex
	visible bool
	x, y    int
	width   int
	height  int
	items   []string
	loading bool
}

func NewHeadlessRenderer() *HeadlessRenderer {
	return &HeadlessRenderer{}
}

func (r *HeadlessRenderer) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = true
}

func (r *HeadlessRenderer) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = false
}

func (r *HeadlessRenderer) Move(x, y int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.x, r.y = x, y
}

func (r *HeadlessRenderer) SetSize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
}

func (r *HeadlessRenderer) RenderLoading() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = true
	r.items = nil
}

func (r *HeadlessRenderer) RenderSuggestions(items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	r.items = make([]string, len(items))
	copy(r.items, items)
}

func (r *HeadlessRenderer) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

func (r *HeadlessRenderer) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

func (r *HeadlessRenderer) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}

func (r *HeadlessRenderer) Bounds() (x, y, width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.x, r.y, r.width, r.height
}
