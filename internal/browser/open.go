package browser

import (
	"os/exec"
	"runtime"
)

// Command returns the program and arguments that open target on the given OS.
func Command(goos, target string) (string, []string) {
	switch goos {
	case "windows":
		// The empty argument is the window title expected by start.
		return "cmd.exe", []string{"/c", "start", "", target}
	case "darwin", "ios":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

// Open starts the platform browser launcher for target and returns without
// waiting for it. The returned error only reports a failure to start.
func Open(target string) error {
	name, args := Command(runtime.GOOS, target)

	cmd := exec.Command(name, args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}

	// Reap the launcher in the background; its exit status is irrelevant.
	go func() { _ = cmd.Wait() }()
	return nil
}
