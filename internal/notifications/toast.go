package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// ToastNotifier shows Windows desktop toasts; Manager uses it for
// escalation alerts only. It is never consulted as a decision
// input — a failed or suppressed toast never changes routing outcomes.
type ToastNotifier struct {
	appID        string
	dashboardURL string
}

// NewToastNotifier creates a toast notifier pointed at a dashboard URL.
func NewToastNotifier(appID, dashboardURL string) *ToastNotifier {
	if appID == "" {
		appID = "coordfab"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &ToastNotifier{appID: appID, dashboardURL: dashboardURL}
}

// Show displays a toast notification. Only supported on Windows.
func (t *ToastNotifier) Show(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}
	return toast.Notification{
		AppID:   t.appID,
		Title:   title,
		Message: message,
		Audio:   toast.Default,
		Actions: []toast.Action{{Type: "protocol", Label: "Open Dashboard", Arguments: t.dashboardURL}},
	}.Push()
}

// NotifyEscalation sends a high-priority toast for an escalated issue or
// pull request.
func (t *ToastNotifier) NotifyEscalation(repo string, number int, reason string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}
	return toast.Notification{
		AppID:   t.appID,
		Title:   "Escalation needs a coordinator",
		Message: fmt.Sprintf("%s#%d: %s", repo, number, reason),
		Audio:   toast.IM,
		Actions: []toast.Action{{Type: "protocol", Label: "View Now", Arguments: t.dashboardURL}},
	}.Push()
}

// IsSupported reports whether toast notifications can be shown.
func (t *ToastNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
