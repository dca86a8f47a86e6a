package bus

import "time"

// Subjects the bridge publishes and subscribes to, one per
// events.Kind — matching spec.md §5's three channels, named per
// SPEC_FULL.md §5.
const (
	SubjectEscalation    = "coordfab.escalation"
	SubjectSchedulerWake = "coordfab.wake"
	SubjectNewWork       = "coordfab.work"
)

// EscalationMessage is the wire payload for SubjectEscalation.
type EscalationMessage struct {
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// WakeMessage is the wire payload for SubjectSchedulerWake.
type WakeMessage struct {
	PlanID    string    `json:"plan_id"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkMessage is the wire payload for SubjectNewWork.
type WorkMessage struct {
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}
