//go:build darwin

package overlay

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quillhq/quill/internal/logging"
)

const insertTimeout = 5 * time.Second

// insertText types into the frontmost app. Prefers cliclick
// (brew install cliclick), falls back to AppleScript keystroke.
func insertText(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	if path, err := exec.LookPath("cliclick"); err == nil {
		out, err := exec.CommandContext(ctx, path, "t:"+text).CombinedOutput()
		if err == nil {
			return nil
		}
		logging.Debugf("[overlay] cliclick failed, trying keystroke: %v %s", err, strings.TrimSpace(string(out)))
	}

	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("keystroke failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
