//go:build linux

package focus

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 2 * time.Second

type linuxProbe struct{}

// NewProbe returns the X11 probe. It needs xdotool on PATH and does not
// work under pure Wayland sessions.
func NewProbe() Probe {
	return linuxProbe{}
}

func (linuxProbe) Sample(ctx context.Context, appName string) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	running, err := processRunning(ctx, appName)
	if err != nil {
		return Sample{}, err
	}
	if !running {
		return Sample{State: StateNotRunning}, nil
	}

	name, title, err := activeWindow(ctx)
	if err != nil {
		return Sample{}, err
	}
	if strings.EqualFold(name, appName) {
		return Sample{State: StateFocused, WindowTitle: title}, nil
	}
	return Sample{State: StateRunningNotFocused}, nil
}

func processRunning(ctx context.Context, appName string) (bool, error) {
	err := exec.CommandContext(ctx, "pgrep", "-xi", appName).Run()
	if err == nil {
		return true, nil
	}
	if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("pgrep failed: %w", err)
}

func activeWindow(ctx context.Context) (name, title string, err error) {
	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to get active window (xdotool may not be installed): %w", err)
	}
	title = strings.TrimSpace(string(out))

	out, err = exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowpid").Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to get active window pid: %w", err)
	}
	pid := strings.TrimSpace(string(out))

	out, err = exec.CommandContext(ctx, "ps", "-p", pid, "-o", "comm=").Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve process %s: %w", pid, err)
	}
	return strings.TrimSpace(string(out)), title, nil
}
