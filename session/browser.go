package session

import (
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
)

// OpenBrowser opens the URL in the default web browser on Linux, macOS, or
// Windows. The command is started, not waited on.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return errors.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to open browser")
	}
	return nil
}
