// Package server is coordfab's HTTP entry point: a forge webhook receiver
// that feeds issues into the coordinator gateway, plus an operator
// dashboard (REST + websocket) over the scheduler/registry/store state.
// Routing follows the teacher's internal/server/server.go gorilla/mux
// layout; the websocket hub follows its internal/server/hub.go.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/swebotic/coordfab/internal/coordinator"
	"github.com/swebotic/coordfab/internal/escalation"
	"github.com/swebotic/coordfab/internal/events"
	"github.com/swebotic/coordfab/internal/forge"
	"github.com/swebotic/coordfab/internal/metrics"
	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/notifications"
	"github.com/swebotic/coordfab/internal/prworkflow"
	"github.com/swebotic/coordfab/internal/ratelimit"
	"github.com/swebotic/coordfab/internal/registry"
	"github.com/swebotic/coordfab/internal/store"
)

// snapshotInterval is how often the dashboard hub gets a fresh metrics
// snapshot while the server is running.
const snapshotInterval = 5 * time.Second

// escalationScanInterval is how often in-flight plans are scanned for
// SubTasks that have tripped an escalation trigger.
const escalationScanInterval = 30 * time.Second

// Server wires the coordination fabric's gateway, scheduler-facing
// registry, persistent store, rate limiter, metrics collector, operator
// notifier, and in-process event bus behind one HTTP handler.
type Server struct {
	gateway   *coordinator.Gateway
	registry  *registry.Registry
	store     *store.Store
	limiter   *ratelimit.Limiter
	collector *metrics.Collector
	notifier  *notifications.Manager
	bus       *events.Bus
	escalator *escalation.Escalator
	workflow  *prworkflow.Workflow
	forge     *forge.Client
	hub       *hub
	logger    *log.Logger
	router    *mux.Router
}

// New builds a Server and wires its routes. The background escalation scan
// uses escalation.DefaultThresholds until WithEscalationThresholds replaces
// them.
func New(gw *coordinator.Gateway, reg *registry.Registry, st *store.Store, lim *ratelimit.Limiter, coll *metrics.Collector, notifier *notifications.Manager, bus *events.Bus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		gateway:   gw,
		registry:  reg,
		store:     st,
		limiter:   lim,
		collector: coll,
		notifier:  notifier,
		bus:       bus,
		escalator: escalation.New(escalation.DefaultThresholds()),
		hub:       newHub(),
		logger:    logger,
	}
	s.router = s.buildRouter()
	return s
}

// WithEscalationThresholds overrides the default escalation thresholds the
// background scan uses.
func (s *Server) WithEscalationThresholds(t escalation.Thresholds) *Server {
	s.escalator = escalation.New(t)
	return s
}

// WithPRWorkflow wires the pull-request review/merge pipeline into the
// /webhook/pr route. Without this call, that route reports PR workflow as
// unconfigured.
func (s *Server) WithPRWorkflow(wf *prworkflow.Workflow, fc *forge.Client) *Server {
	s.workflow = wf
	s.forge = fc
	s.router = s.buildRouter()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts the websocket hub and background broadcast loop, blocking
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	stop := make(chan struct{})
	go s.hub.run(stop)

	escalations := s.bus.Subscribe(events.KindEscalation)
	defer s.bus.Unsubscribe(escalations)

	snapshotTicker := time.NewTicker(snapshotInterval)
	defer snapshotTicker.Stop()
	escalationTicker := time.NewTicker(escalationScanInterval)
	defer escalationTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			return
		case ev := <-escalations:
			if s.notifier != nil {
				s.notifier.NotifyEscalation(ev.Repo, ev.Number, ev.Reason)
			}
			s.hub.broadcastEscalation(ev.Repo, ev.Number, ev.Reason)
			if s.notifier != nil {
				s.hub.broadcastBanner(s.notifier.BannerState())
			}
		case <-snapshotTicker.C:
			counts, active := s.planStats()
			s.hub.broadcastSnapshot(s.collector.TakeSnapshot(counts, active))
		case now := <-escalationTicker.C:
			s.scanForEscalations(now)
		}
	}
}

// scanForEscalations walks every in-flight plan's in-progress SubTasks and
// publishes an escalation event for each one whose wait time or failure
// count has tripped a threshold, matching the original's periodic
// escalation sweep (the worker-side ShouldEscalate call made pollable from
// the coordinator's vantage point instead of the agent's).
func (s *Server) scanForEscalations(now time.Time) {
	if s.escalator == nil {
		return
	}
	ids, err := s.store.ListPlanIDs()
	if err != nil {
		return
	}
	for _, id := range ids {
		plan, err := s.store.LoadPlan(id)
		if err != nil {
			continue
		}
		for _, st := range plan.SubTasks {
			if st.Status != model.SubTaskInProgress && st.Status != model.SubTaskBlocked {
				continue
			}
			result := s.escalator.ShouldEscalate(escalation.Context{
				FailedAttempts: st.FailedAttempts,
				MinutesSpent:   now.Sub(st.UpdatedAt).Minutes(),
				StuckSince:     st.UpdatedAt,
				Now:            now,
			})
			if !result.ShouldEscalate {
				continue
			}
			reason := st.Title
			if len(result.Triggers) > 0 {
				reason = result.Triggers[0]
			}
			s.bus.Publish(events.Escalation(plan.IssueRepo, plan.IssueNum, reason, now))
		}
	}
}

// planStats tallies SubTask status counts and active (non-completed) plan
// count across every plan in the store, for the periodic dashboard snapshot.
func (s *Server) planStats() (map[model.SubTaskStatus]int, int) {
	counts := make(map[model.SubTaskStatus]int)
	active := 0
	ids, err := s.store.ListPlanIDs()
	if err != nil {
		return counts, 0
	}
	for _, id := range ids {
		plan, err := s.store.LoadPlan(id)
		if err != nil {
			continue
		}
		if plan.Status != model.PlanCompleted {
			active++
		}
		for _, st := range plan.SubTasks {
			counts[st.Status]++
		}
	}
	return counts, active
}
