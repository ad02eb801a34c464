//go:build desktop

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/agent/overlay"
	"github.com/quillhq/quill/internal/logging"
)

// overlayAction is what the overlay page reports through the native
// bridge: a click on suggestion N, or the close button.
type overlayAction struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
}

// runOverlayAgent runs the agent with a real overlay window. The Wails
// event loop owns the main thread; the agent runtime runs beside it and
// drives the window through the renderer.
func runOverlayAgent(ctx context.Context, opts agent.Options) error {
	var ctrl atomic.Pointer[overlay.Controller]

	wailsApp := application.New(application.Options{
		Name: "Quill",
		Mac: application.MacOptions{
			// The overlay window hides and shows all the time; never
			// treat a hide as "last window closed, quit the app"
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
		Windows: application.WindowsOptions{
			DisableQuitOnLastWindowClosed: true,
		},
		Linux: application.LinuxOptions{
			DisableQuitOnLastWindowClosed: true,
			ProgramName:                   "quill",
		},
		// The overlay page reports clicks as "quill:cb:{json}" via
		// window._wails.invoke(), which works on this HTML-mode window
		// without any HTTP round trip.
		RawMessageHandler: func(_ application.Window, message string, _ *application.OriginInfo) {
			const prefix = "quill:cb:"
			if !strings.HasPrefix(message, prefix) {
				return
			}
			var act overlayAction
			if err := json.Unmarshal([]byte(message[len(prefix):]), &act); err != nil {
				return
			}
			c := ctrl.Load()
			if c == nil {
				return
			}
			switch act.Action {
			case "click":
				c.Click(act.Index)
			case "close":
				c.Close()
			}
		},
	})

	win := wailsApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Name:          "overlay",
		Title:         "Quill",
		Width:         opts.Config.Overlay.Width,
		Height:        opts.Config.Overlay.Height,
		Frameless:     true,
		AlwaysOnTop:   true,
		DisableResize: true,
		Hidden:        true,
		HTML:          overlayHTML,
		JS:            overlayBootstrapJS,
		Mac: application.MacWindow{
			Backdrop: application.MacBackdropTranslucent,
		},
	})

	opts.Renderer = &windowRenderer{win: win}

	rt, err := agent.New(opts)
	if err != nil {
		return err
	}
	ctrl.Store(rt.Overlay())

	// The runtime decides when we are done (shutdown notice, closed
	// overlay, lost hub connection). The window loop just follows.
	runErr := make(chan error, 1)
	go func() {
		runErr <- rt.Run(ctx)
		safeQuit(wailsApp)
	}()

	// Blocks until Quit. macOS requires the event loop on the main thread.
	if err := wailsApp.Run(); err != nil {
		logging.Errorf("[overlay] window loop: %v", err)
	}

	select {
	case err := <-runErr:
		return err
	default:
		// The user quit the window loop out from under the runtime
		return nil
	}
}

// safeQuit calls App.Quit() with recovery from Wails v3 alpha panics
// during tray/window teardown.
func safeQuit(app *application.App) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[overlay] recovered from quit panic: %v\n", r)
			os.Exit(0)
		}
	}()
	app.Quit()
}

// windowRenderer drives the overlay window from controller callbacks.
type windowRenderer struct {
	win *application.WebviewWindow
}

func (r *windowRenderer) Show() { r.win.Show() }
func (r *windowRenderer) Hide() { r.win.Hide() }

func (r *windowRenderer) Move(x, y int) { r.win.SetPosition(x, y) }

func (r *windowRenderer) SetSize(width, height int) { r.win.SetSize(width, height) }

func (r *windowRenderer) RenderLoading() {
	r.win.ExecJS("window.__quill_loading()")
}

func (r *windowRenderer) RenderSuggestions(items []string) {
	payload, err := json.Marshal(items)
	if err != nil {
		return
	}
	r.win.ExecJS(fmt.Sprintf("window.__quill_render(%s)", payload))
}

// overlayBootstrapJS is injected via WebviewWindowOptions.JS. It forces
// "wails:runtime:ready" so runtimeLoaded becomes true and queued ExecJS
// calls flush; without it the public ExecJS can queue forever.
const overlayBootstrapJS = `
(function(){
  setTimeout(function() {
    try {
      if (window._wails && window._wails.invoke) {
        window._wails.invoke("wails:runtime:ready");
      } else if (window.webkit && window.webkit.messageHandlers && window.webkit.messageHandlers.external) {
        window.webkit.messageHandlers.external.postMessage("wails:runtime:ready");
      } else if (window.chrome && window.chrome.webview) {
        window.chrome.webview.postMessage("wails:runtime:ready");
      }
    } catch(e) {}
  }, 200);
})();
`

// overlayHTML is the entire overlay UI: a column of suggestion chips, a
// loading shimmer, and a close button. It never navigates, so all state
// lives in the two window.__quill_* entry points the renderer calls.
const overlayHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<style>
  html, body {
    margin: 0;
    background: transparent;
    font: 13px -apple-system, "Segoe UI", system-ui, sans-serif;
    overflow: hidden;
    user-select: none;
    -webkit-user-select: none;
  }
  #wrap {
    position: relative;
    padding: 8px 10px;
  }
  #close {
    position: absolute;
    top: 2px;
    right: 4px;
    width: 18px;
    height: 18px;
    line-height: 18px;
    text-align: center;
    border-radius: 9px;
    color: rgba(235,235,245,0.6);
    cursor: default;
  }
  #close:hover {
    background: rgba(120,120,128,0.36);
    color: #fff;
  }
  #chips {
    display: flex;
    flex-direction: column;
    gap: 6px;
    margin-top: 14px;
  }
  .chip {
    background: rgba(44,44,46,0.92);
    color: #f2f2f7;
    border: 1px solid rgba(120,120,128,0.28);
    border-radius: 14px;
    padding: 6px 12px;
    white-space: nowrap;
    overflow: hidden;
    text-overflow: ellipsis;
    cursor: default;
  }
  .chip:hover {
    background: rgba(72,72,74,0.95);
    border-color: rgba(120,120,128,0.5);
  }
  .dots {
    display: flex;
    gap: 4px;
    padding: 8px 12px;
  }
  .dots span {
    width: 6px;
    height: 6px;
    border-radius: 3px;
    background: rgba(235,235,245,0.5);
    animation: pulse 1.2s infinite;
  }
  .dots span:nth-child(2) { animation-delay: 0.2s; }
  .dots span:nth-child(3) { animation-delay: 0.4s; }
  @keyframes pulse {
    0%, 80%, 100% { opacity: 0.3; }
    40% { opacity: 1; }
  }
</style>
</head>
<body>
<div id="wrap">
  <div id="close">&#10005;</div>
  <div id="chips"></div>
</div>
<script>
  function send(d) {
    var m = "quill:cb:" + JSON.stringify(d);
    try {
      if (window._wails && window._wails.invoke) {
        window._wails.invoke(m);
      } else if (window.webkit && window.webkit.messageHandlers && window.webkit.messageHandlers.external) {
        window.webkit.messageHandlers.external.postMessage(m);
      } else if (window.chrome && window.chrome.webview) {
        window.chrome.webview.postMessage(m);
      }
    } catch (e) {}
  }

  window.__quill_render = function(items) {
    var chips = document.getElementById("chips");
    chips.textContent = "";
    items.forEach(function(text, i) {
      var el = document.createElement("div");
      el.className = "chip";
      el.textContent = text;
      el.addEventListener("click", function() {
        send({action: "click", index: i});
      });
      chips.appendChild(el);
    });
  };

  window.__quill_loading = function() {
    var chips = document.getElementById("chips");
    chips.textContent = "";
    var dots = document.createElement("div");
    dots.className = "dots";
    for (var i = 0; i < 3; i++) {
      dots.appendChild(document.createElement("span"));
    }
    chips.appendChild(dots);
  };

  document.getElementById("close").addEventListener("click", function() {
    send({action: "close"});
  });
</script>
</body>
</html>
`
