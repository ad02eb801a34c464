package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/agent/chatstore"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/keyring"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/suggest"
)

// DoctorCmd creates the doctor command for health checks
func DoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system health and diagnose issues",
		Long: `Run diagnostics on your Quill installation.

Checks:
  - Data directory and config file
  - Message store access (needs Full Disk Access on macOS)
  - Text insertion tooling
  - Suggestion provider and API key
  - Host process

Examples:
  quill doctor`,
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func runDoctor() {
	if !verbose {
		logging.Disable()
	}

	fmt.Println("\033[1m🔍 Quill Doctor\033[0m")
	fmt.Println("================")
	fmt.Println()

	c := hostConfig()

	var results []checkResult

	results = append(results, checkDataDir(c)...)
	results = append(results, checkMessageStore(c)...)
	results = append(results, checkInsertTools()...)
	results = append(results, checkProvider(c)...)
	results = append(results, checkHost(c)...)

	// Print results
	fmt.Println()
	okCount := 0
	warnCount := 0
	errorCount := 0

	for _, r := range results {
		switch r.status {
		case "ok":
			fmt.Printf("\033[32m✓\033[0m %s: %s\n", r.name, r.message)
			okCount++
		case "warn":
			fmt.Printf("\033[33m⚠\033[0m %s: %s\n", r.name, r.message)
			warnCount++
		case "error":
			fmt.Printf("\033[31m✗\033[0m %s: %s\n", r.name, r.message)
			errorCount++
		}
	}

	// Summary
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  \033[32m%d passed\033[0m", okCount)
	if warnCount > 0 {
		fmt.Printf("  \033[33m%d warnings\033[0m", warnCount)
	}
	if errorCount > 0 {
		fmt.Printf("  \033[31m%d errors\033[0m", errorCount)
	}
	fmt.Println()

	if errorCount > 0 {
		os.Exit(1)
	}
}

func checkDataDir(c *config.Config) []checkResult {
	var results []checkResult

	if _, err := os.Stat(c.DataDir); os.IsNotExist(err) {
		results = append(results, checkResult{
			name:    "Data Directory",
			status:  "warn",
			message: fmt.Sprintf("%s not found (created on first run)", c.DataDir),
		})
	} else {
		results = append(results, checkResult{
			name:    "Data Directory",
			status:  "ok",
			message: c.DataDir,
		})
	}

	configPath := filepath.Join(c.DataDir, "config.yaml")
	if cfgFile != "" {
		configPath = cfgFile
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		results = append(results, checkResult{
			name:    "Config File",
			status:  "warn",
			message: "config.yaml not found (using defaults)",
		})
	} else {
		results = append(results, checkResult{
			name:    "Config File",
			status:  "ok",
			message: configPath,
		})
	}

	dbPath := c.DBPath()
	if info, err := os.Stat(dbPath); err == nil {
		results = append(results, checkResult{
			name:    "Database",
			status:  "ok",
			message: fmt.Sprintf("%s (%d KB)", dbPath, info.Size()/1024),
		})
	} else {
		results = append(results, checkResult{
			name:    "Database",
			status:  "warn",
			message: "not found (created on first run)",
		})
	}

	return results
}

func checkMessageStore(c *config.Config) []checkResult {
	storeDesc := c.Messenger.StorePath
	if storeDesc == "" {
		storeDesc = "default location"
	}

	reader := chatstore.NewReader(c.Messenger.StorePath, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := reader.Ping(ctx)
	switch {
	case err == nil:
		return []checkResult{{
			name:    "Message Store",
			status:  "ok",
			message: fmt.Sprintf("readable (%s)", storeDesc),
		}}
	case errors.Is(err, chatstore.ErrPermission):
		return []checkResult{{
			name:    "Message Store",
			status:  "error",
			message: "no read access. On macOS grant Full Disk Access to Quill under System Settings > Privacy & Security.",
		}}
	case errors.Is(err, chatstore.ErrNotFound):
		return []checkResult{{
			name:    "Message Store",
			status:  "warn",
			message: fmt.Sprintf("not found at %s (has %s ever run?)", storeDesc, c.Messenger.AppName),
		}}
	case errors.Is(err, chatstore.ErrUnavailable):
		return []checkResult{{
			name:    "Message Store",
			status:  "warn",
			message: "busy or locked, try again in a moment",
		}}
	default:
		return []checkResult{{
			name:    "Message Store",
			status:  "error",
			message: err.Error(),
		}}
	}
}

func checkInsertTools() []checkResult {
	var results []checkResult

	type tool struct {
		name     string
		required bool
		hint     string
	}

	var tools []tool
	switch runtime.GOOS {
	case "darwin":
		tools = []tool{
			{"osascript", true, "focus tracking and text insertion need it"},
			{"cliclick", false, "optional, faster insertion (brew install cliclick)"},
		}
	case "linux":
		tools = []tool{
			{"xdotool", true, "focus tracking and text insertion need it (apt install xdotool)"},
			{"pgrep", true, "process detection needs it"},
		}
	case "windows":
		tools = []tool{
			{"powershell", true, "focus tracking and text insertion need it"},
		}
	}

	for _, tl := range tools {
		if _, err := exec.LookPath(tl.name); err != nil {
			status := "warn"
			if tl.required {
				status = "error"
			}
			results = append(results, checkResult{
				name:    fmt.Sprintf("Tool: %s", tl.name),
				status:  status,
				message: fmt.Sprintf("not found in PATH (%s)", tl.hint),
			})
		} else {
			results = append(results, checkResult{
				name:    fmt.Sprintf("Tool: %s", tl.name),
				status:  "ok",
				message: "found",
			})
		}
	}

	return results
}

func checkProvider(c *config.Config) []checkResult {
	var results []checkResult

	if keyring.Available() {
		results = append(results, checkResult{
			name:    "Keychain",
			status:  "ok",
			message: "system keychain available",
		})
	} else {
		results = append(results, checkResult{
			name:    "Keychain",
			status:  "warn",
			message: "no system keychain, API keys come from config or environment",
		})
	}

	provider := c.Suggestions.Provider
	switch provider {
	case "openai", "anthropic":
		envVar := "OPENAI_API_KEY"
		if provider == "anthropic" {
			envVar = "ANTHROPIC_API_KEY"
		}
		key := resolveKey(c.Suggestions.APIKey, provider, envVar)
		if key == "" {
			results = append(results, checkResult{
				name:    fmt.Sprintf("Provider: %s", provider),
				status:  "error",
				message: fmt.Sprintf("no API key (set suggestions.api_key, the keychain entry, or %s)", envVar),
			})
		} else {
			results = append(results, checkResult{
				name:    fmt.Sprintf("Provider: %s", provider),
				status:  "ok",
				message: fmt.Sprintf("Key: %s, Model: %s", maskKey(key), c.Suggestions.Model),
			})
		}
	case "ollama":
		if suggest.CheckAvailable(c.Suggestions.OllamaBaseURL) {
			results = append(results, checkResult{
				name:    "Provider: ollama",
				status:  "ok",
				message: fmt.Sprintf("reachable, Model: %s", c.Suggestions.Model),
			})
		} else {
			results = append(results, checkResult{
				name:    "Provider: ollama",
				status:  "warn",
				message: "not reachable (is 'ollama serve' running?)",
			})
		}
	default:
		results = append(results, checkResult{
			name:    "Provider",
			status:  "error",
			message: fmt.Sprintf("unknown provider %q", provider),
		})
	}

	return results
}

func checkHost(c *config.Config) []checkResult {
	var results []checkResult

	hostURL := fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", hostURL+"/health", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		results = append(results, checkResult{
			name:    "Host",
			status:  "warn",
			message: fmt.Sprintf("not running at %s (start with 'quill')", hostURL),
		})
		return results
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		results = append(results, checkResult{
			name:    "Host",
			status:  "warn",
			message: fmt.Sprintf("unhealthy (status %d)", resp.StatusCode),
		})
		return results
	}

	results = append(results, checkResult{
		name:    "Host",
		status:  "ok",
		message: fmt.Sprintf("running at %s", hostURL),
	})

	// Host is up, ask it about the overlay too
	req, _ = http.NewRequestWithContext(ctx, "GET", hostURL+"/api/v1/overlay/status", nil)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		defer resp.Body.Close()
		var st struct {
			State     string `json:"state"`
			Connected bool   `json:"connected"`
			Disabled  bool   `json:"disabled"`
		}
		if json.NewDecoder(resp.Body).Decode(&st) == nil {
			msg := st.State
			if st.Connected {
				msg = "connected"
			}
			if st.Disabled {
				msg += " (closed by user)"
			}
			results = append(results, checkResult{
				name:    "Overlay",
				status:  "ok",
				message: msg,
			})
		}
	}

	return results
}

// resolveKey mirrors the engine's key lookup order so the diagnosis
// matches what the host will actually do.
func resolveKey(configured, provider, envVar string) string {
	if configured != "" {
		return configured
	}
	if keyring.Available() {
		if key, err := keyring.GetAPIKey(provider); err == nil && key != "" {
			return key
		}
	}
	return os.Getenv(envVar)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
