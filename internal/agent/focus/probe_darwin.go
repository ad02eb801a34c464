//go:build darwin

package focus

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 2 * time.Second

type darwinProbe struct{}

// NewProbe returns the macOS probe. It shells out to osascript, which
// needs the Accessibility permission to read window titles.
func NewProbe() Probe {
	return darwinProbe{}
}

func (darwinProbe) Sample(ctx context.Context, appName string) (Sample, error) {
	script := fmt.Sprintf(`
		tell application "System Events"
			set isRunning to exists (processes where name is "%s")
			set frontName to ""
			set winName to ""
			try
				set frontApp to first process whose frontmost is true
				set frontName to name of frontApp
				try
					set winName to name of window 1 of frontApp
				end try
			end try
		end tell
		return (isRunning as text) & "|||" & frontName & "|||" & winName
	`, escapeAppleScript(appName))

	out, err := runScript(ctx, script)
	if err != nil {
		return Sample{}, fmt.Errorf("osascript probe failed: %w", err)
	}

	parts := strings.SplitN(out, "|||", 3)
	if len(parts) != 3 {
		return Sample{}, fmt.Errorf("unexpected probe output: %q", out)
	}

	running := parts[0] == "true"
	if !running {
		return Sample{State: StateNotRunning}, nil
	}
	if parts[1] == appName {
		return Sample{State: StateFocused, WindowTitle: parts[2]}, nil
	}
	return Sample{State: StateRunningNotFocused}, nil
}

func runScript(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
