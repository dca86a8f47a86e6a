// Package events implements the in-process event bus the coordination
// fabric's long-running loops use to hand work to each other: new issues
// arriving from the forge poller, escalations bubbling back to the
// coordinator, and scheduler wake-ups after a task completes.
package events

import "time"

// Kind identifies which of the fabric's three channels a message belongs
// to, mirroring the "(a) new work items, (b) escalation events, (c)
// scheduler wake-ups" channel set named by spec.md's Design Notes §9.
type Kind string

const (
	KindNewWork       Kind = "new_work"
	KindEscalation    Kind = "escalation"
	KindSchedulerWake Kind = "scheduler_wake"
)

// AllKinds returns every defined event kind.
func AllKinds() []Kind {
	return []Kind{KindNewWork, KindEscalation, KindSchedulerWake}
}

// Event is a single message carried on the Bus. Payload fields are
// kind-specific: KindNewWork and KindEscalation carry a Repo/Number pair;
// KindSchedulerWake carries a PlanID (empty means "rescan every active
// plan").
type Event struct {
	Kind      Kind
	Repo      string
	Number    int
	PlanID    string
	Reason    string
	CreatedAt time.Time
}

// NewWork builds a KindNewWork event for an issue the forge poller picked up.
func NewWork(repo string, number int, now time.Time) Event {
	return Event{Kind: KindNewWork, Repo: repo, Number: number, CreatedAt: now}
}

// Escalation builds a KindEscalation event for an issue a worker handed back.
func Escalation(repo string, number int, reason string, now time.Time) Event {
	return Event{Kind: KindEscalation, Repo: repo, Number: number, Reason: reason, CreatedAt: now}
}

// SchedulerWake builds a KindSchedulerWake event.
func SchedulerWake(planID string, now time.Time) Event {
	return Event{Kind: KindSchedulerWake, PlanID: planID, CreatedAt: now}
}
