// Package agent is the overlay agent process. It tracks which
// conversation the user is looking at, reads recent context out of the
// messenger's store, drives the suggestion overlay, and reports back to
// the host over the hub channel. The agent holds no state of its own;
// everything it knows it either observed this cycle or was told by the
// host.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quillhq/quill/internal/agent/chatstore"
	"github.com/quillhq/quill/internal/agent/focus"
	"github.com/quillhq/quill/internal/agent/overlay"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/hub"
	"github.com/quillhq/quill/internal/logging"
)

// storeReadTimeout bounds one conversation read. The store is local
// SQLite; anything slower means it is stuck behind the messenger.
const storeReadTimeout = 5 * time.Second

// Options configures an agent runtime.
type Options struct {
	// HubPort and HubToken come from the host via the launch flags.
	HubPort  int
	HubToken string

	Config *config.Config

	// Renderer draws the overlay window. Nil runs headless: the full
	// state machine still turns, so the host sees identical traffic.
	Renderer overlay.Renderer

	// Probe overrides focus detection. Nil uses the platform probe.
	Probe focus.Probe
}

// Runtime wires the focus tracker, store reader and overlay controller
// to the hub link and runs them until the host says stop.
type Runtime struct {
	opts    Options
	ctrl    *overlay.Controller
	reader  *chatstore.Reader
	tracker *focus.Tracker
	link    *Link

	mu                 sync.Mutex
	cancel             context.CancelFunc
	requesting         bool
	permissionReported bool
}

// New builds a runtime from options. It does not touch the network or
// the screen; Run does.
func New(opts Options) (*Runtime, error) {
	if opts.Config == nil {
		return nil, errors.New("agent: config is required")
	}
	if opts.HubPort <= 0 {
		return nil, errors.New("agent: hub port is required")
	}
	if opts.HubToken == "" {
		return nil, errors.New("agent: hub token is required")
	}
	cfg := opts.Config

	renderer := opts.Renderer
	if renderer == nil {
		renderer = overlay.NewHeadlessRenderer()
	}

	probe := opts.Probe
	if probe == nil {
		probe = focus.NewProbe()
	}

	rt := &Runtime{
		opts:   opts,
		ctrl:   overlay.NewController(cfg.Overlay, renderer),
		reader: chatstore.NewReader(cfg.Messenger.StorePath, cfg.Messenger.ContextDepth),
		tracker: focus.NewTracker(probe, cfg.Messenger.AppName,
			time.Duration(cfg.Overlay.PollIntervalSeconds)*time.Second,
			cfg.Overlay.RefreshEvery),
	}
	return rt, nil
}

// Overlay exposes the controller so the desktop shell can route window
// events (clicks, close) into it.
func (rt *Runtime) Overlay() *overlay.Controller {
	return rt.ctrl
}

// Run connects to the hub and blocks until the host shuts the agent
// down, the user closes the overlay, or the connection is lost. A clean
// stop returns nil.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt.mu.Lock()
	rt.cancel = cancel
	rt.mu.Unlock()

	link, err := Dial(ctx, rt.opts.HubPort, rt.opts.HubToken)
	if err != nil {
		return err
	}
	rt.link = link
	defer link.Close()

	rt.ctrl.OnSelected(func(index int, text string, inserted bool) {
		if err := link.SendSelected(index, text, inserted); err != nil {
			logging.Errorf("[agent] failed to report selection: %v", err)
		}
	})
	rt.ctrl.OnClosed(func() {
		// The host writes the disabled marker; this process then exits
		// and stays down until the next activation.
		if err := link.SendStatus("overlay_disabled"); err != nil {
			logging.Errorf("[agent] failed to report overlay close: %v", err)
		}
		cancel()
	})

	readErr := make(chan error, 1)
	go func() {
		readErr <- link.ReadLoop(ctx, rt.handleFrame)
	}()
	go rt.tracker.Run(ctx, rt.handleFocus)

	select {
	case err := <-readErr:
		rt.ctrl.Hide()
		return err
	case <-ctx.Done():
		return nil
	}
}

// handleFrame routes one frame from the host.
func (rt *Runtime) handleFrame(frame *hub.Frame) {
	switch frame.Type {
	case hub.TypeConnected:
		logging.Infof("[agent] hub says: %s", frame.Message)

	case hub.TypeSuggestions:
		if !frame.Loading {
			rt.setRequesting(false)
		}
		rt.ctrl.Apply(frame.Suggestions, frame.Loading)

	case hub.TypeStatus:
		rt.handleStatus(frame.Status)

	default:
		logging.Debugf("[agent] ignoring frame type %s", frame.Type)
	}
}

func (rt *Runtime) handleStatus(status string) {
	switch status {
	case "shutting_down":
		logging.Infof("[agent] host is shutting down")
		rt.stop()
	case "paused":
		// Outside active hours. Stand down; the poll cadence will ask
		// again and the host re-answers once the window opens.
		rt.setRequesting(false)
		rt.ctrl.Hide()
	default:
		logging.Debugf("[agent] host status: %s", status)
	}
}

// handleFocus reacts to one focus tracker event.
func (rt *Runtime) handleFocus(ev focus.Event) {
	if ev.To != focus.StateFocused || ev.Title == "" {
		rt.setRequesting(false)
		rt.ctrl.Hide()
		return
	}

	rt.mu.Lock()
	if rt.requesting {
		// One outstanding request at a time; the cadence retries soon
		rt.mu.Unlock()
		return
	}
	rt.requesting = true
	rt.mu.Unlock()

	rt.ctrl.ShowLoading()
	go rt.requestSuggestions(ev.Title)
}

// requestSuggestions reads the conversation and ships its transcript to
// the host. The suggestions come back asynchronously on the read loop.
func (rt *Runtime) requestSuggestions(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeReadTimeout)
	defer cancel()

	convo, err := rt.reader.Read(ctx, ref)
	if err != nil {
		rt.storeReadFailed(ref, err)
		return
	}

	if err := rt.link.SendContext(convo.Transcript(), convo.Ref); err != nil {
		logging.Errorf("[agent] failed to send context: %v", err)
		rt.setRequesting(false)
	}
}

func (rt *Runtime) storeReadFailed(ref string, err error) {
	logging.Warnf("[agent] reading conversation %q failed: %v", ref, err)
	switch {
	case errors.Is(err, chatstore.ErrUnavailable):
		// Store briefly locked by the messenger. The placeholder stays
		// up and the next poll cycle retries.
	case errors.Is(err, chatstore.ErrPermission):
		rt.reportPermissionOnce()
		rt.ctrl.Hide()
	default:
		rt.ctrl.Hide()
	}
	rt.setRequesting(false)
}

// reportPermissionOnce tells the host the store is unreadable, once per
// process. On macOS this means Full Disk Access has not been granted.
func (rt *Runtime) reportPermissionOnce() {
	rt.mu.Lock()
	already := rt.permissionReported
	rt.permissionReported = true
	rt.mu.Unlock()
	if already {
		return
	}
	if err := rt.link.SendStatus("store_permission_denied"); err != nil {
		logging.Errorf("[agent] failed to report store permission problem: %v", err)
	}
}

func (rt *Runtime) setRequesting(v bool) {
	rt.mu.Lock()
	rt.requesting = v
	rt.mu.Unlock()
}

func (rt *Runtime) stop() {
	rt.mu.Lock()
	cancel := rt.cancel
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
