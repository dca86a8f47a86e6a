package registry

import (
	"testing"

	"github.com/swebotic/coordfab/internal/model"
)

func TestRegister_AndGet(t *testing.T) {
	r := New(nil)
	if err := r.Register(model.AgentCapability{AgentID: "a1", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 3}); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := r.Get("a1")
	if !ok {
		t.Fatal("expected agent present")
	}
	if !got.HasRole(model.RoleDeveloper) {
		t.Fatal("expected developer role")
	}
}

func TestByRole_SortsByAscendingLoad(t *testing.T) {
	r := New(nil)
	_ = r.Register(model.AgentCapability{AgentID: "busy", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 10, CurrentLoad: 5})
	_ = r.Register(model.AgentCapability{AgentID: "idle", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 10, CurrentLoad: 0})
	_ = r.Register(model.AgentCapability{AgentID: "mid", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 10, CurrentLoad: 2})

	got := r.ByRole(model.RoleDeveloper)
	if len(got) != 3 {
		t.Fatalf("expected 3 developers, got %d", len(got))
	}
	if got[0].AgentID != "idle" || got[1].AgentID != "mid" || got[2].AgentID != "busy" {
		t.Fatalf("expected ascending load order, got %v", got)
	}
}

func TestAdjustLoad_ClampsAtZero(t *testing.T) {
	r := New(nil)
	_ = r.Register(model.AgentCapability{AgentID: "a1", CurrentLoad: 1})
	_ = r.AdjustLoad("a1", -5)
	got, _ := r.Get("a1")
	if got.CurrentLoad != 0 {
		t.Fatalf("expected load clamped to 0, got %d", got.CurrentLoad)
	}
}

func TestByRole_ExcludesAgentsAtCapacity(t *testing.T) {
	r := New(nil)
	_ = r.Register(model.AgentCapability{AgentID: "full", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 1, CurrentLoad: 1})
	_ = r.Register(model.AgentCapability{AgentID: "room", Roles: []model.AgentRole{model.RoleDeveloper}, MaxLoad: 1, CurrentLoad: 0})
	got := r.ByRole(model.RoleDeveloper)
	if len(got) != 1 || got[0].AgentID != "room" {
		t.Fatalf("expected only the agent with headroom, got %v", got)
	}
}

func TestByRole_ExcludesAgentsWithoutRole(t *testing.T) {
	r := New(nil)
	_ = r.Register(model.AgentCapability{AgentID: "rev", Roles: []model.AgentRole{model.RoleReviewer}})
	if got := r.ByRole(model.RoleDeveloper); len(got) != 0 {
		t.Fatalf("expected no developers, got %v", got)
	}
}
