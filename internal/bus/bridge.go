package bus

import (
	"log"

	"github.com/swebotic/coordfab/internal/events"
)

// Bridge republishes every local events.Bus event onto NATS, and every
// inbound NATS message onto the local bus, so two coordinator replicas
// converge on the same escalation/wake/new-work stream. It never loops a
// message back onto the subject it arrived from, since Publish only
// pushes to the local bus, not back out to NATS.
type Bridge struct {
	client *Client
	local  *events.Bus
	logger *log.Logger
}

// NewBridge wires client and local together but does not start relaying
// until Start is called.
func NewBridge(client *Client, local *events.Bus, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(log.Writer(), "bus: ", log.LstdFlags)
	}
	return &Bridge{client: client, local: local, logger: logger}
}

// Start subscribes to every NATS subject and begins forwarding local
// publishes outward. It returns once subscriptions are established;
// forwarding runs on a background goroutine until stop is closed.
func (b *Bridge) Start(stop <-chan struct{}) error {
	if _, err := SubscribeJSON(b.client, SubjectEscalation, func(m EscalationMessage) {
		b.local.Publish(events.Escalation(m.Repo, m.Number, m.Reason, m.CreatedAt))
	}); err != nil {
		return err
	}
	if _, err := SubscribeJSON(b.client, SubjectSchedulerWake, func(m WakeMessage) {
		b.local.Publish(events.SchedulerWake(m.PlanID, m.CreatedAt))
	}); err != nil {
		return err
	}
	if _, err := SubscribeJSON(b.client, SubjectNewWork, func(m WorkMessage) {
		b.local.Publish(events.NewWork(m.Repo, m.Number, m.CreatedAt))
	}); err != nil {
		return err
	}

	outbound := b.local.Subscribe(events.KindEscalation, events.KindSchedulerWake, events.KindNewWork)
	go b.relayOutbound(outbound, stop)
	return nil
}

func (b *Bridge) relayOutbound(outbound <-chan events.Event, stop <-chan struct{}) {
	defer b.local.Unsubscribe(outbound)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-outbound:
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}

func (b *Bridge) publish(ev events.Event) {
	var err error
	switch ev.Kind {
	case events.KindEscalation:
		err = b.client.PublishJSON(SubjectEscalation, EscalationMessage{Repo: ev.Repo, Number: ev.Number, Reason: ev.Reason, CreatedAt: ev.CreatedAt})
	case events.KindSchedulerWake:
		err = b.client.PublishJSON(SubjectSchedulerWake, WakeMessage{PlanID: ev.PlanID, CreatedAt: ev.CreatedAt})
	case events.KindNewWork:
		err = b.client.PublishJSON(SubjectNewWork, WorkMessage{Repo: ev.Repo, Number: ev.Number, CreatedAt: ev.CreatedAt})
	}
	if err != nil {
		b.logger.Printf("relay %s failed: %v", ev.Kind, err)
	}
}
