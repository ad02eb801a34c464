// Package defaults provides embedded default configuration files.
// These are copied to the platform data directory on first run or when reset is requested.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/Quill/
//	Windows: %AppData%\Quill\
//	Linux:   ~/.config/quill/
//
// Override with QUILL_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

//go:embed dotquill/*
var defaultFiles embed.FS

// DataDir returns the platform-appropriate data directory.
//
//	macOS:   ~/Library/Application Support/Quill/
//	Windows: %AppData%\Quill\
//	Linux:   ~/.config/quill/
//
// Set QUILL_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("QUILL_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	// macOS/Windows: title case per platform convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "quill"), nil
	}
	return filepath.Join(configDir, "Quill"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	// Create directory if needed
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	// Copy default files if they don't exist
	if err := copyDefaults(dir, false); err != nil {
		return "", err
	}

	return dir, nil
}

// LogsDir returns the directory for process log files, creating it if needed.
// The agent process logs here since its stdout is not attached to a terminal.
func LogsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return logsDir, nil
}

// Reset removes existing config files and replaces them with defaults.
// The database is preserved.
func Reset(dir string) error {
	return copyDefaults(dir, true)
}

// copyDefaults copies embedded default files to the data directory.
// If overwrite is true, existing files are replaced.
func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, "dotquill", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip the root directory
		if path == "dotquill" {
			return nil
		}

		// Get relative path (strip "dotquill/" prefix).
		// Use TrimPrefix instead of filepath.Rel because embed.FS always
		// uses forward slashes, but filepath.Rel produces backslashes on Windows.
		relPath := strings.TrimPrefix(path, "dotquill/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		// Skip if file exists and we're not overwriting
		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		// Read embedded file
		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}

		// Write to destination
		if err := os.WriteFile(destPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}

		return nil
	})
}

// GetDefault returns the content of a default file by name.
// Example: GetDefault("config.yaml")
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile("dotquill/" + name)
}

// ListDefaults returns the names of all default files.
func ListDefaults() ([]string, error) {
	var files []string
	err := fs.WalkDir(defaultFiles, "dotquill", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path != "dotquill" {
			// Use TrimPrefix to keep forward slashes (embed.FS convention).
			relPath := strings.TrimPrefix(path, "dotquill/")
			files = append(files, relPath)
		}
		return nil
	})
	return files, err
}

// DisabledFile marks the overlay as disabled by the user closing the window.
// Its presence survives restarts; `quill overlay activate` clears it.
const DisabledFile = ".overlay-disabled"

// IsOverlayDisabled reports whether the user has dismissed the overlay.
func IsOverlayDisabled() (bool, error) {
	dir, err := DataDir()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, DisabledFile))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetOverlayDisabled records or clears the user's dismissal of the overlay.
func SetOverlayDisabled(disabled bool) error {
	dir, err := DataDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, DisabledFile)
	if !disabled {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return os.WriteFile(path, []byte("closed by user\n"), 0644)
}
