// Package notify sends native OS notifications through the platform's
// own tooling, no bundled notification framework.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/quillhq/quill/internal/logging"
)

// Send displays a native OS notification. Best effort: unsupported
// platforms and missing tools drop the notification silently.
func Send(title, body string) {
	title = sanitize(title)
	body = sanitize(body)

	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, body, title)
		cmd = exec.Command("osascript", "-e", script)

	case "linux":
		cmd = exec.Command("notify-send", title, body)

	case "windows":
		// PowerShell toast notification
		ps := fmt.Sprintf(`
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$textNodes = $template.GetElementsByTagName('text')
$textNodes.Item(0).AppendChild($template.CreateTextNode('%s')) > $null
$textNodes.Item(1).AppendChild($template.CreateTextNode('%s')) > $null
$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('Quill').Show($toast)
`, title, body)
		cmd = exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", ps)

	default:
		return
	}

	if err := cmd.Run(); err != nil {
		logging.Debugf("[notify] notification failed: %v", err)
	}
}

// sanitize strips characters that could break quoting in the generated
// scripts and keeps notifications to a readable length.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
