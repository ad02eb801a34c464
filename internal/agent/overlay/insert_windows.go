//go:build windows

package overlay

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const insertTimeout = 5 * time.Second

// insertText types into the foreground window via SendKeys.
func insertText(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait("%s")
`, escapeSendKeys(text))

	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("SendKeys failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// escapeSendKeys quotes the characters SendKeys treats as commands.
// Single pass, so brace wrappers are never re-escaped.
func escapeSendKeys(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '[', ']', '{', '}':
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
		case '"':
			b.WriteString("`\"")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
