//go:build linux

package overlay

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const insertTimeout = 5 * time.Second

// insertText types into the active window with xdotool.
func insertText(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "xdotool", "type", "--delay", "12", "--", text).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xdotool type failed (xdotool may not be installed): %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
