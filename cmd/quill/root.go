package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/crashlog"
	"github.com/quillhq/quill/internal/db"
	"github.com/quillhq/quill/internal/defaults"
	"github.com/quillhq/quill/internal/hub"
	"github.com/quillhq/quill/internal/lifecycle"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/mcp"
	"github.com/quillhq/quill/internal/notify"
	"github.com/quillhq/quill/internal/server"
	"github.com/quillhq/quill/internal/suggest"
)

// RunHost starts the host process: local API, hub, supervisor (default mode)
func RunHost() {
	// Suppress verbose logging for clean CLI output
	if !verbose {
		logging.Disable()
	}

	// Ensure data directory exists with default files
	dataDir, err := defaults.EnsureDataDir()
	if err != nil {
		fmt.Printf("\033[31mError: Failed to initialize data directory: %v\033[0m\n", err)
		os.Exit(1)
	}

	// Enforce single instance with lock file
	lockFile, err := acquireLock(dataDir)
	if err != nil {
		fmt.Printf("\033[31mError: %v\033[0m\n", err)
		fmt.Println("\033[33mQuill is already running. Only one instance allowed per computer.\033[0m")
		os.Exit(1)
	}
	defer releaseLock(lockFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\n\033[33mReceived signal: %v - Shutting down...\033[0m\n", sig)
		cancel()
	}()

	c := hostConfig()

	// Selection history and error log live in the same database
	store, err := db.NewSQLite(c.DBPath())
	if err != nil {
		fmt.Printf("\033[31mError: Failed to open database: %v\033[0m\n", err)
		os.Exit(1)
	}
	defer store.Close()
	crashlog.Init(store)

	// Suggestion engine. A missing API key is not fatal: the overlay
	// falls back to canned replies until a provider is configured.
	engine, err := suggest.NewEngine(c)
	if err != nil {
		fmt.Printf("\033[33mWarning: %v\033[0m\n", err)
		fmt.Println("\033[33mRunning with canned replies. See 'quill doctor' for setup.\033[0m")
	}

	h := hub.NewHub()
	go h.Run(ctx)

	sup, err := hub.NewSupervisor(c, h, engine, store)
	if err != nil {
		fmt.Printf("\033[31mError: %v\033[0m\n", err)
		os.Exit(1)
	}

	// A denied store read is the one failure only the user can fix;
	// surface it where they will actually see it.
	lifecycle.On(lifecycle.EventStorePermissionDenied, func(_ lifecycle.Event, _ any) {
		go notify.Send("Quill", "Quill can't read your messages. Grant Full Disk Access in System Settings > Privacy & Security.")
	})

	// Hot-reload active hours and suggestion settings on config edits
	if err := config.StartWatcher(c.DataDir); err != nil {
		logging.Warnf("[host] config watcher unavailable: %v", err)
	} else {
		config.OnReload(func(nc *config.Config) {
			sup.ApplyConfig(nc)
		})
		defer config.StopWatcher()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// Start the local API server in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		deps := server.Deps{
			Config:     c,
			Supervisor: sup,
			Engine:     engine,
			Store:      store,
			MCP:        mcp.NewServer(engine).Handler(),
			Quiet:      true,
		}
		if err := server.Run(ctx, deps); err != nil {
			if ctx.Err() == nil {
				errCh <- fmt.Errorf("server error: %w", err)
			}
		}
	}()

	apiURL := fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
	if !waitForServer(apiURL, 10*time.Second) {
		fmt.Println("\033[31mError: Server failed to start\033[0m")
		cancel()
		wg.Wait()
		os.Exit(1)
	}

	// Bring up the overlay unless the user closed it last time or asked
	// us not to. The API can always activate it later.
	if !noOverlay {
		disabled, _ := defaults.IsOverlayDisabled()
		if disabled {
			fmt.Println("\033[2mOverlay stayed off (closed last session). POST /api/v1/overlay/activate to bring it back.\033[0m")
		} else if err := sup.Activate(ctx); err != nil {
			fmt.Printf("\033[33mWarning: overlay did not start: %v\033[0m\n", err)
		}
	}

	printStartupBanner(c, engine, sup, apiURL, dataDir)

	// Wait for shutdown or error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n\033[31mError: %v\033[0m\n", err)
		cancel()
	}

	// Give the agent its shutdown notice before the server goes away
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	sup.Deactivate(stopCtx)
	stopCancel()

	wg.Wait()
	fmt.Println("\n\033[32mQuill stopped.\033[0m")
}

// printStartupBanner prints a clean, clickable startup message
func printStartupBanner(c *config.Config, engine *suggest.Engine, sup *hub.Supervisor, apiURL, dataDir string) {
	suggestLine := "canned replies (no provider configured)"
	if engine != nil {
		suggestLine = fmt.Sprintf("%s / %s", engine.ProviderID(), c.Suggestions.Model)
	}

	st := sup.Status()
	overlayLine := string(st.State)
	if st.Connected {
		overlayLine = fmt.Sprintf("watching %s", c.Messenger.AppName)
	}
	if c.ActiveHours != "" {
		overlayLine += fmt.Sprintf(" (active hours %s)", c.ActiveHours)
	}

	fmt.Println()
	fmt.Println("\033[1;32m  ╭──────────────────────────────────────────╮\033[0m")
	fmt.Println("\033[1;32m  │          \033[1;37m✒ Quill is running\033[1;32m              │\033[0m")
	fmt.Println("\033[1;32m  ╰──────────────────────────────────────────╯\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1;36m→\033[0m Local API:   \033[4;34m%s\033[0m\n", apiURL)
	fmt.Printf("  \033[1;36m→\033[0m MCP Server:  \033[4;34m%s/mcp\033[0m\n", apiURL)
	fmt.Printf("  \033[1;36m→\033[0m Overlay:     %s\n", overlayLine)
	fmt.Printf("  \033[1;36m→\033[0m Suggestions: %s\n", suggestLine)
	fmt.Println()
	fmt.Printf("  \033[2mData: %s\033[0m\n", dataDir)
	fmt.Println()
	fmt.Println("  \033[2mPress Ctrl+C to stop\033[0m")
	fmt.Println()
}

// waitForServer polls the server until it's ready or timeout
func waitForServer(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
