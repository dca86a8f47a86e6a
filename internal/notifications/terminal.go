package notifications

import (
	"fmt"
	"os"
	"runtime"
	"sync"
)

// TerminalNotifier flashes the operator's terminal title when the fabric
// needs attention — an escalation the coordinator couldn't resolve, or
// RateLimiter headroom running out.
type TerminalNotifier struct {
	originalTitle string
	mu            sync.Mutex
}

// NewTerminalNotifier creates a terminal notifier with the fabric's
// default title.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{originalTitle: "coordfab"}
}

// SetOriginalTitle stores the title RestoreTitle should return to.
func (t *TerminalNotifier) SetOriginalTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.originalTitle = title
}

// Flash changes the terminal title to show an alert message.
func (t *TerminalNotifier) Flash(message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTitle(fmt.Sprintf("coordfab: %s", message))
}

// RestoreTitle restores the title set by SetOriginalTitle (or the default).
func (t *TerminalNotifier) RestoreTitle() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTitle(t.originalTitle)
}

func (t *TerminalNotifier) setTitle(title string) error {
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		fmt.Printf("\033]0;%s\007", title)
		return nil
	default:
		return fmt.Errorf("terminal title manipulation not supported on %s", runtime.GOOS)
	}
}

// IsSupported reports whether stdout is a terminal on a supported OS.
func (t *TerminalNotifier) IsSupported() bool {
	if !isTerminal() {
		return false
	}
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		return true
	default:
		return false
	}
}

func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
