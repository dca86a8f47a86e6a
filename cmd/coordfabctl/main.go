// Command coordfabctl is the operator CLI over coordfab's durable store:
// inspect execution plans, list registered agents, check rate-limit
// status for an operation/repo pair, and force an escalation event onto a
// running coordfab's event bus. Action dispatch follows the teacher's
// cmd/dbctl/main.go -action flag pattern, retargeted from raw SQL queries
// to internal/store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/swebotic/coordfab/internal/bus"
	"github.com/swebotic/coordfab/internal/config"
	"github.com/swebotic/coordfab/internal/model"
	"github.com/swebotic/coordfab/internal/ratelimit"
	"github.com/swebotic/coordfab/internal/store"
)

func main() {
	dbPath := flag.String("db", "coordfab.db", "path to the coordfab SQLite store")
	planDir := flag.String("plan-dir", "plans", "directory holding plan JSON snapshots")
	action := flag.String("action", "", "action to perform: plans, plan, agents, rate-stats, force-escalate")
	planID := flag.String("plan", "", "plan ID, for -action plan")
	opType := flag.String("op", "comment", "operation type, for -action rate-stats")
	repo := flag.String("repo", "", "repository, for -action rate-stats or force-escalate")
	number := flag.Int("number", 0, "issue/PR number, for -action force-escalate")
	reason := flag.String("reason", "operator-forced escalation", "reason, for -action force-escalate")
	window := flag.Duration("window", time.Hour, "lookback window, for -action rate-stats")
	natsURL := flag.String("nats-url", os.Getenv("COORDFAB_NATS_URL"), "event bus URL, for -action force-escalate")
	jsonOutput := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "Usage: coordfabctl -db <path> -action <action> [flags]")
		fmt.Fprintln(os.Stderr, "Actions: plans, plan, agents, rate-stats, force-escalate")
		os.Exit(1)
	}

	st, err := store.Open(*dbPath, *planDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordfabctl: open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch *action {
	case "plans":
		runListPlans(st, *jsonOutput)
	case "plan":
		runGetPlan(st, *planID, *jsonOutput)
	case "agents":
		runListAgents(st, *jsonOutput)
	case "rate-stats":
		runRateStats(st, model.OperationType(*opType), *repo, *window, *jsonOutput)
	case "force-escalate":
		runForceEscalate(*natsURL, *repo, *number, *reason, *jsonOutput)
	default:
		fmt.Fprintf(os.Stderr, "coordfabctl: unknown action %q\n", *action)
		os.Exit(1)
	}
}

func runListPlans(st *store.Store, jsonOutput bool) {
	ids, err := st.ListPlanIDs()
	if err != nil {
		fail("list plans", err)
	}
	if jsonOutput {
		emit(ids)
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func runGetPlan(st *store.Store, planID string, jsonOutput bool) {
	if planID == "" {
		fmt.Fprintln(os.Stderr, "coordfabctl: -plan is required for -action plan")
		os.Exit(1)
	}
	plan, err := st.LoadPlan(planID)
	if err != nil {
		fail("load plan", err)
	}
	if jsonOutput {
		emit(plan)
		return
	}
	fmt.Printf("plan %s  repo=%s issue=#%d priority=%d status=%s completion=%.0f%%\n",
		plan.ID, plan.IssueRepo, plan.IssueNum, plan.Priority, plan.Status, plan.CompletionPercentage())
	for _, st := range plan.SubTasks {
		fmt.Printf("  - [%s] %s (%s)\n", st.Status, st.Title, st.RequiredRole)
	}
}

func runListAgents(st *store.Store, jsonOutput bool) {
	agents, err := st.ListAgents()
	if err != nil {
		fail("list agents", err)
	}
	if jsonOutput {
		emit(agents)
		return
	}
	for _, a := range agents {
		fmt.Printf("%s  roles=%v load=%d/%d last_seen=%s\n", a.AgentID, a.Roles, a.CurrentLoad, a.MaxLoad, a.LastSeen.Format(time.RFC3339))
	}
}

func runRateStats(st *store.Store, opType model.OperationType, repo string, window time.Duration, jsonOutput bool) {
	if repo == "" {
		fmt.Fprintln(os.Stderr, "coordfabctl: -repo is required for -action rate-stats")
		os.Exit(1)
	}
	lim := ratelimit.New(config.Default().RateLimits, st)
	count := lim.Stats(opType, repo, window)
	if jsonOutput {
		emit(map[string]any{"op": opType, "repo": repo, "window": window.String(), "count": count})
		return
	}
	fmt.Printf("%s on %s: %d in the last %s\n", opType, repo, count, window)
}

// runForceEscalate publishes an escalation directly onto the event bus a
// running coordfab is bridged to, bypassing the usual trigger-threshold
// scan -- for an operator who has independently decided an issue needs a
// human, not because any SubTask tripped ShouldEscalate.
func runForceEscalate(natsURL, repo string, number int, reason string, jsonOutput bool) {
	if repo == "" || number == 0 {
		fmt.Fprintln(os.Stderr, "coordfabctl: -repo and -number are required for -action force-escalate")
		os.Exit(1)
	}
	if natsURL == "" {
		fmt.Fprintln(os.Stderr, "coordfabctl: -nats-url (or COORDFAB_NATS_URL) is required for -action force-escalate")
		os.Exit(1)
	}
	client, err := bus.Connect(natsURL)
	if err != nil {
		fail("connect to event bus", err)
	}
	defer client.Close()

	msg := bus.EscalationMessage{Repo: repo, Number: number, Reason: reason, CreatedAt: time.Now()}
	if err := client.PublishJSON(bus.SubjectEscalation, msg); err != nil {
		fail("publish escalation", err)
	}
	if jsonOutput {
		emit(msg)
		return
	}
	fmt.Printf("published forced escalation for %s#%d: %s\n", repo, number, reason)
}

func emit(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("encode output", err)
	}
}

func fail(action string, err error) {
	fmt.Fprintf(os.Stderr, "coordfabctl: %s: %v\n", action, err)
	os.Exit(1)
}
