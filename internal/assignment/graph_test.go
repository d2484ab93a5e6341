package assignment

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

func TestSetUnsetLeavesRemainingPair(t *testing.T) {
	g := NewGraph()
	if err := g.Set("svc1", "profA", "Profile A", core.RadioAll); err != nil {
		t.Fatal(err)
	}
	if err := g.Set("svc1", "profB", "Profile B", core.Radio2); err != nil {
		t.Fatal(err)
	}
	if !g.Unset("svc1", "profA") {
		t.Fatal("expected profA to be removed")
	}

	got := g.For("svc1")
	if len(got) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(got))
	}
	a := got[0]
	if a.ServiceID != "svc1" || a.ProfileID != "profB" || a.Scope != core.Radio2 {
		t.Errorf("unexpected assignment: %+v", a)
	}
	if g.CountAll() != 1 {
		t.Errorf("CountAll = %d", g.CountAll())
	}
}

func TestSetUpdatesScopeInPlace(t *testing.T) {
	g := NewGraph()
	g.Set("svc1", "profA", "A", core.RadioAll)
	g.Set("svc1", "profB", "B", core.RadioAll)
	g.Set("svc1", "profA", "A", core.Radio3)

	got := g.For("svc1")
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	if got[0].ProfileID != "profA" || got[0].Scope != core.Radio3 {
		t.Errorf("profA should keep its position with the new scope: %+v", got[0])
	}
}

func TestUnsetKeepsEmptyService(t *testing.T) {
	g := NewGraph()
	g.Set("svc1", "profA", "A", core.RadioAll)
	g.Unset("svc1", "profA")

	if !g.HasService("svc1") {
		t.Error("service entry should remain after its last assignment is removed")
	}
	if g.CountAll() != 0 {
		t.Errorf("CountAll = %d", g.CountAll())
	}
	if g.Unset("svc1", "profA") {
		t.Error("second unset should report nothing removed")
	}
	if g.Unset("svc-missing", "profA") {
		t.Error("unset on unknown service should report nothing removed")
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	g := NewGraph()
	tests := []struct {
		name    string
		svc     core.ID
		prof    core.ID
		scope   core.RadioScope
		wantErr bool
	}{
		{"valid", "svc", "prof", core.Radio1, false},
		{"empty service", "", "prof", core.RadioAll, true},
		{"empty profile", "svc", "", core.RadioAll, true},
		{"scope out of range", "svc", "prof", core.RadioScope(7), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Set(tt.svc, tt.prof, "", tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("Set() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBulkAssignCountsAreNotCumulative(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3, 2}, {5, 4}} {
		n, m := dims[0], dims[1]
		t.Run(fmt.Sprintf("%dx%d", n, m), func(t *testing.T) {
			var services []core.ID
			for i := 0; i < n; i++ {
				services = append(services, core.ID(fmt.Sprintf("svc%d", i)))
			}
			var profiles []ProfileRef
			for i := 0; i < m; i++ {
				profiles = append(profiles, ProfileRef{ID: core.ID(fmt.Sprintf("prof%d", i)), Name: fmt.Sprintf("Profile %d", i)})
			}

			g := NewGraph()
			if err := g.BulkAssign(services, profiles, core.RadioAll); err != nil {
				t.Fatal(err)
			}
			if g.CountAll() != n*m {
				t.Fatalf("first bulk: CountAll = %d, want %d", g.CountAll(), n*m)
			}

			if err := g.BulkAssign(services, profiles, core.Radio1); err != nil {
				t.Fatal(err)
			}
			if g.CountAll() != n*m {
				t.Fatalf("repeat bulk: CountAll = %d, want %d", g.CountAll(), n*m)
			}
			a, ok := g.Get(services[0], profiles[0].ID)
			if !ok || a.Scope != core.Radio1 {
				t.Errorf("repeat bulk should update scope, got %+v", a)
			}
		})
	}
}

func TestMarshalJSONWireShape(t *testing.T) {
	g := NewGraph()
	g.Set("svc1", "profA", "Campus", core.Radio2)
	g.Set("svc2", "profB", "Branch", core.RadioAll)
	g.Unset("svc2", "profB")

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}

	var wire map[string][]map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	if len(wire["svc1"]) != 1 {
		t.Fatalf("svc1 entries: %v", wire["svc1"])
	}
	entry := wire["svc1"][0]
	if entry["profile_id"] != "profA" || entry["profile_name"] != "Campus" || entry["radio_index"] != float64(2) {
		t.Errorf("unexpected wire entry: %v", entry)
	}
	if list, ok := wire["svc2"]; !ok || len(list) != 0 {
		t.Errorf("svc2 should encode as an empty list, got %v (present=%v)", list, ok)
	}

	var back Graph
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.CountAll() != 1 || !back.HasService("svc2") {
		t.Errorf("decoded graph mismatch: count=%d svc2=%v", back.CountAll(), back.HasService("svc2"))
	}
}

func TestClear(t *testing.T) {
	g := NewGraph()
	g.BulkAssign([]core.ID{"a", "b"}, []ProfileRef{{ID: "p"}}, core.RadioAll)
	g.Clear()
	if g.CountAll() != 0 || len(g.Services()) != 0 {
		t.Error("expected empty graph after Clear")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := NewGraph()
	g.Set("svc1", "profA", "Campus", core.Radio2)
	c := g.Clone()

	g.Set("svc1", "profA", "Campus", core.Radio3)
	g.Set("svc2", "profB", "Branch", core.RadioAll)

	if a, _ := c.Get("svc1", "profA"); a.Scope != core.Radio2 {
		t.Errorf("clone saw a later scope change: %v", a.Scope)
	}
	if c.HasService("svc2") || c.CountAll() != 1 {
		t.Errorf("clone saw a later service: %v", c.Services())
	}
}
