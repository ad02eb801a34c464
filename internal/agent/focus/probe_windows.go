//go:build windows

package focus

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 3 * time.Second

type windowsProbe struct{}

// NewProbe returns the Windows probe. It shells out to PowerShell and
// reads the foreground window through the Win32 API.
func NewProbe() Probe {
	return windowsProbe{}
}

func (windowsProbe) Sample(ctx context.Context, appName string) (Sample, error) {
	script := fmt.Sprintf(`
		Add-Type @"
			using System;
			using System.Runtime.InteropServices;
			using System.Text;
			public class Win32 {
				[DllImport("user32.dll")]
				public static extern IntPtr GetForegroundWindow();
				[DllImport("user32.dll")]
				public static extern int GetWindowText(IntPtr hWnd, StringBuilder text, int count);
				[DllImport("user32.dll")]
				public static extern uint GetWindowThreadProcessId(IntPtr hWnd, out uint processId);
			}
"@
		$running = (Get-Process -Name "%s" -ErrorAction SilentlyContinue) -ne $null
		$hwnd = [Win32]::GetForegroundWindow()
		$title = New-Object System.Text.StringBuilder 256
		[Win32]::GetWindowText($hwnd, $title, 256) | Out-Null
		$processId = 0
		[Win32]::GetWindowThreadProcessId($hwnd, [ref]$processId) | Out-Null
		$name = ""
		try { $name = (Get-Process -Id $processId -ErrorAction Stop).ProcessName } catch {}
		Write-Output "$running|||$name|||$($title.ToString())"
	`, escapePowerShell(appName))

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return Sample{}, fmt.Errorf("powershell probe failed: %w", err)
	}

	parts := strings.SplitN(strings.TrimSpace(string(out)), "|||", 3)
	if len(parts) != 3 {
		return Sample{}, fmt.Errorf("unexpected probe output: %q", strings.TrimSpace(string(out)))
	}

	running := strings.EqualFold(parts[0], "true")
	if !running {
		return Sample{State: StateNotRunning}, nil
	}
	if strings.EqualFold(parts[1], appName) {
		return Sample{State: StateFocused, WindowTitle: parts[2]}, nil
	}
	return Sample{State: StateRunningNotFocused}, nil
}

func escapePowerShell(s string) string {
	return strings.ReplaceAll(s, `"`, "`\"")
}
