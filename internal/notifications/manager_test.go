package notifications

import "testing"

func TestNotifyEscalationUpdatesBannerWhenEnabled(t *testing.T) {
	m := NewManager(Config{EnableBanner: true})

	m.NotifyEscalation("o/r", 7, "stuck for 40 minutes")

	state := m.BannerState()
	if !state.Visible {
		t.Fatal("expected banner visible after escalation")
	}
	if state.Type != BannerEscalation {
		t.Fatalf("expected escalation banner type, got %s", state.Type)
	}
}

func TestNotifyEscalationNoOpWhenDisabled(t *testing.T) {
	m := NewManager(Config{})
	m.SetEnabled(false)

	m.NotifyEscalation("o/r", 7, "stuck")

	if m.BannerState().Visible {
		t.Fatal("expected no banner when notifications disabled")
	}
}

func TestClearAlertHidesBanner(t *testing.T) {
	m := NewManager(Config{EnableBanner: true})
	m.NotifyRateLimitExhausted(42)
	if !m.BannerState().Visible {
		t.Fatal("expected banner visible")
	}

	m.ClearAlert()
	if m.BannerState().Visible {
		t.Fatal("expected banner hidden after ClearAlert")
	}
}
