package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/swebotic/coordfab/internal/conflict"
	"github.com/swebotic/coordfab/internal/events"
	"github.com/swebotic/coordfab/internal/forge"
	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/planner"
	"github.com/swebotic/coordfab/internal/prworkflow"
)

func schedulerWakeEvent(planID string) events.Event {
	return events.SchedulerWake(planID, time.Now())
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(securityHeaders, requestLog(s.logger))

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/webhook/issue", s.handleIssueWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhook/pr", s.handlePRWebhook).Methods(http.MethodPost)
	r.HandleFunc("/api/plans", s.handleListPlans).Methods(http.MethodGet)
	r.HandleFunc("/api/plans/{id}", s.handleGetPlan).Methods(http.MethodGet)
	r.HandleFunc("/api/agents", s.handleListAgents).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.serveWS)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// issueWebhookPayload is the subset of a forge issue-event payload the
// coordinator needs: the repository full name plus the nested issue body.
type issueWebhookPayload struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Issue forge.Issue `json:"issue"`
}

// handleIssueWebhook is the forge webhook receiver: every incoming issue
// event is pushed through the coordinator gateway, matching spec.md's
// "CoordinatorGateway is the ONLY way issues enter the system" invariant.
// Any plan the gateway builds while orchestrating is persisted and its
// scheduler wake-up published on the event bus.
func (s *Server) handleIssueWebhook(w http.ResponseWriter, r *http.Request) {
	var payload issueWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.Issue.PullRequest != nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ignored: pull request event"))
		return
	}

	labels := make([]string, 0, len(payload.Issue.Labels))
	for _, l := range payload.Issue.Labels {
		labels = append(labels, l.Name)
	}
	issue := model.Issue{
		Repo:      payload.Repository.FullName,
		Number:    payload.Issue.Number,
		Title:     payload.Issue.Title,
		Body:      payload.Issue.Body,
		Labels:    labels,
		Author:    payload.Issue.User.Login,
		CreatedAt: payload.Issue.CreatedAt,
	}

	decision, err := s.gateway.ProcessIssue(r.Context(), issue, planner.DefaultBlueprints(issue))
	if err != nil {
		s.logger.Printf("process issue %s#%d: %v", issue.Repo, issue.Number, err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if decision.Plan != nil {
		if err := s.store.SavePlan(decision.Plan); err != nil {
			s.logger.Printf("save plan %s: %v", decision.Plan.ID, err)
		}
		s.bus.Publish(schedulerWakeEvent(decision.Plan.ID))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}

// prWebhookPayload is the subset of a forge pull-request event the PR
// workflow needs.
type prWebhookPayload struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Number       int `json:"number"`
		CommitsAhead int `json:"commits,omitempty"`
	} `json:"pull_request"`
}

// handlePRWebhook drives a pull request through PRWorkflow (review, label,
// reviewer assignment, merge decision, conditional merge) and separately
// scores its merge-conflict complexity via ConflictAnalyzer, publishing an
// escalation if the conflict is bad enough to recommend closing and
// recreating the PR rather than resolving it in place.
func (s *Server) handlePRWebhook(w http.ResponseWriter, r *http.Request) {
	if s.workflow == nil {
		http.Error(w, "pr workflow not configured", http.StatusServiceUnavailable)
		return
	}
	var payload prWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	repo := payload.Repository.FullName
	number := payload.PullRequest.Number

	if s.forge != nil {
		if analysis, err := s.analyzeConflicts(r.Context(), repo, number, payload.PullRequest.CommitsAhead); err == nil {
			if action, reason := conflict.ShouldCloseAndRecreate(analysis); action {
				s.bus.Publish(events.Escalation(repo, number, reason, time.Now()))
			}
		}
	}

	result, err := s.workflow.Run(r.Context(), repo, number, prworkflow.Options{
		AutoMergeIfApproved: true,
		MergeMethod:         forge.MergeSquash,
		TestTimeoutSeconds:  60,
	})
	if err != nil {
		s.logger.Printf("pr workflow %s#%d: %v", repo, number, err)
		http.Error(w, "pr workflow failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) analyzeConflicts(ctx context.Context, repo string, number, commitsAhead int) (conflict.Analysis, error) {
	pr, err := s.forge.GetPR(ctx, repo, number)
	if err != nil {
		return conflict.Analysis{}, err
	}
	prFiles, err := s.forge.ListPRFiles(ctx, repo, number)
	if err != nil {
		return conflict.Analysis{}, err
	}
	files := make([]conflict.PRFile, 0, len(prFiles))
	for _, f := range prFiles {
		files = append(files, conflict.PRFile{Filename: f.Filename, Status: f.Status, Additions: f.Additions, Deletions: f.Deletions, Changes: f.Changes})
	}
	metrics := conflict.GatherMetrics(pr.CreatedAt, time.Now(), commitsAhead, files)
	return conflict.Score(metrics), nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListPlanIDs()
	if err != nil {
		http.Error(w, "list plans failed", http.StatusInternalServerError)
		return
	}
	plans := make([]*model.ExecutionPlan, 0, len(ids))
	for _, id := range ids {
		plan, err := s.store.LoadPlan(id)
		if err != nil {
			continue
		}
		plans = append(plans, plan)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	plan, err := s.store.LoadPlan(id)
	if err != nil {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.registry.All()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}
