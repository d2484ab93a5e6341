// Package assignment maps converted services to the Target profiles that
// broadcast them, with a radio scope per (service, profile) pair.
package assignment

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Assignment is one (service, profile, radio scope) triple.
type Assignment struct {
	ServiceID   core.ID
	ProfileID   core.ID
	ProfileName string
	Scope       core.RadioScope
}

// ProfileRef names a profile for bulk operations.
type ProfileRef struct {
	ID   core.ID
	Name string
}

// Graph holds at most one assignment per (service, profile) pair. A service
// entry is created on its first assignment and stays present once emptied.
type Graph struct {
	order    []core.ID
	services map[core.ID][]Assignment
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{services: make(map[core.ID][]Assignment)}
}

// Set assigns serviceID to profileID with the given scope. Re-setting an
// existing pair updates its scope and name in place.
func (g *Graph) Set(serviceID, profileID core.ID, profileName string, scope core.RadioScope) error {
	if serviceID == "" || profileID == "" {
		return fmt.Errorf("service and profile ids are required")
	}
	if !scope.Valid() {
		return fmt.Errorf("invalid radio scope %d", int(scope))
	}

	entries := g.entry(serviceID)
	for i := range entries {
		if entries[i].ProfileID == profileID {
			entries[i].Scope = scope
			entries[i].ProfileName = profileName
			return nil
		}
	}
	g.services[serviceID] = append(entries, Assignment{
		ServiceID:   serviceID,
		ProfileID:   profileID,
		ProfileName: profileName,
		Scope:       scope,
	})
	return nil
}

// Unset removes the (serviceID, profileID) assignment. It reports whether one existed.
func (g *Graph) Unset(serviceID, profileID core.ID) bool {
	entries, ok := g.services[serviceID]
	if !ok {
		return false
	}
	for i := range entries {
		if entries[i].ProfileID == profileID {
			g.services[serviceID] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// BulkAssign sets every service × profile pair to scope. Existing pairs are
// updated, so repeating the call never grows the graph.
func (g *Graph) BulkAssign(serviceIDs []core.ID, profiles []ProfileRef, scope core.RadioScope) error {
	for _, svc := range serviceIDs {
		for _, p := range profiles {
			if err := g.Set(svc, p.ID, p.Name, scope); err != nil {
				return fmt.Errorf("assigning %s to %s: %w", svc, p.ID, err)
			}
		}
	}
	return nil
}

// Get returns the assignment for a pair.
func (g *Graph) Get(serviceID, profileID core.ID) (Assignment, bool) {
	for _, a := range g.services[serviceID] {
		if a.ProfileID == profileID {
			return a, true
		}
	}
	return Assignment{}, false
}

// For returns a copy of the assignments of one service.
func (g *Graph) For(serviceID core.ID) []Assignment {
	return append([]Assignment(nil), g.services[serviceID]...)
}

// Services returns every service with an entry, in first-assignment order.
func (g *Graph) Services() []core.ID {
	return append([]core.ID(nil), g.order...)
}

// HasService reports whether serviceID has an entry, possibly empty.
func (g *Graph) HasService(serviceID core.ID) bool {
	_, ok := g.services[serviceID]
	return ok
}

// CountAll returns the number of assignments across all services.
func (g *Graph) CountAll() int {
	total := 0
	for _, entries := range g.services {
		total += len(entries)
	}
	return total
}

// Clone returns an independent copy of the graph.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	c.order = append([]core.ID(nil), g.order...)
	for svc, entries := range g.services {
		c.services[svc] = append([]Assignment(nil), entries...)
	}
	return c
}

// Clear drops every entry.
func (g *Graph) Clear() {
	g.order = nil
	g.services = make(map[core.ID][]Assignment)
}

func (g *Graph) entry(serviceID core.ID) []Assignment {
	entries, ok := g.services[serviceID]
	if !ok {
		g.order = append(g.order, serviceID)
		g.services[serviceID] = nil
	}
	return entries
}

// wireAssignment is the backend's per-profile assignment shape.
type wireAssignment struct {
	ProfileID   core.ID `json:"profile_id"`
	ProfileName string  `json:"profile_name"`
	RadioIndex  int     `json:"radio_index"`
}

// MarshalJSON encodes the graph as {serviceId: [{profile_id, profile_name, radio_index}]}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := make(map[string][]wireAssignment, len(g.services))
	for _, svc := range g.order {
		list := make([]wireAssignment, 0, len(g.services[svc]))
		for _, a := range g.services[svc] {
			list = append(list, wireAssignment{
				ProfileID:   a.ProfileID,
				ProfileName: a.ProfileName,
				RadioIndex:  int(a.Scope),
			})
		}
		out[string(svc)] = list
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var in map[string][]wireAssignment
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	keys := make([]string, 0, len(in))
	for svc := range in {
		keys = append(keys, svc)
	}
	sort.Strings(keys)

	fresh := NewGraph()
	for _, svc := range keys {
		fresh.entry(core.ID(svc))
		for _, w := range in[svc] {
			if err := fresh.Set(core.ID(svc), w.ProfileID, w.ProfileName, core.RadioScope(w.RadioIndex)); err != nil {
				return fmt.Errorf("service %s: %w", svc, err)
			}
		}
	}
	*g = *fresh
	return nil
}
