package notifications

import (
	"fmt"
	"log"
	"sync"
)

// Manager fans out operator alerts across the desktop toast, terminal
// title, and dashboard banner channels. It is purely informational —
// SPEC_FULL.md's ambient stack requires that notification failures never
// feed back into routing or merge decisions, so every method here logs
// and swallows per-channel errors rather than surfacing them to callers
// that might otherwise branch on them.
type Manager struct {
	toast    *ToastNotifier
	terminal *TerminalNotifier
	banner   *BannerNotifier
	mu       sync.RWMutex
	enabled  bool
	logger   *log.Logger
}

// Config configures a Manager. Setting any Enable flag turns the Manager
// on; the flags do not select channels one by one -- an enabled Manager
// uses every channel the platform supports.
type Config struct {
	AppID          string
	DashboardURL   string
	EnableToast    bool
	EnableTerminal bool
	EnableBanner   bool
	Logger         *log.Logger
}

// NewManager builds a Manager from Config.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "notifications: ", log.LstdFlags)
	}
	m := &Manager{
		toast:    NewToastNotifier(cfg.AppID, cfg.DashboardURL),
		terminal: NewTerminalNotifier(),
		banner:   NewBannerNotifier(),
		enabled:  cfg.EnableToast || cfg.EnableTerminal || cfg.EnableBanner,
		logger:   cfg.Logger,
	}
	m.logger.Printf("toast supported=%v terminal supported=%v", m.toast.IsSupported(), m.terminal.IsSupported())
	return m
}

// NotifyEscalation fans an unresolved escalation out to every supported channel.
func (m *Manager) NotifyEscalation(repo string, number int, reason string) {
	if !m.IsEnabled() {
		return
	}
	message := fmt.Sprintf("%s#%d needs a coordinator: %s", repo, number, reason)

	if m.toast.IsSupported() {
		if err := m.toast.NotifyEscalation(repo, number, reason); err != nil {
			m.logger.Printf("toast failed: %v", err)
		}
	}
	if m.terminal.IsSupported() {
		if err := m.terminal.Flash(message); err != nil {
			m.logger.Printf("terminal flash failed: %v", err)
		}
	}
	m.banner.ShowEscalation(message)
}

// NotifyRateLimitExhausted fans a platform-headroom exhaustion alert out.
func (m *Manager) NotifyRateLimitExhausted(remaining int) {
	if !m.IsEnabled() {
		return
	}
	message := fmt.Sprintf("forge rate-limit headroom low: %d remaining", remaining)

	if m.terminal.IsSupported() {
		if err := m.terminal.Flash(message); err != nil {
			m.logger.Printf("terminal flash failed: %v", err)
		}
	}
	m.banner.Show(message, BannerWarning)
}

// ClearAlert restores the terminal title and hides the dashboard banner.
func (m *Manager) ClearAlert() {
	if m.terminal.IsSupported() {
		if err := m.terminal.RestoreTitle(); err != nil {
			m.logger.Printf("terminal restore failed: %v", err)
		}
	}
	m.banner.Clear()
}

// IsEnabled reports whether any channel is active.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SetEnabled toggles every channel at once.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// BannerState returns the current dashboard banner for internal/server to render.
func (m *Manager) BannerState() BannerState {
	return m.banner.State()
}
