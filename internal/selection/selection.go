// Package selection tracks which Source resources the user chose to migrate.
package selection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Category names one of the three selectable resource kinds.
type Category string

const (
	SSIDs  Category = "ssids"
	VLANs  Category = "vlans"
	Radius Category = "radius"
)

// Categories lists every selectable category in display order.
var Categories = []Category{SSIDs, VLANs, Radius}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (want ssids, vlans or radius)", s)
}

var (
	// ErrNoInventory is returned when the set is used before a Source inventory is bound.
	ErrNoInventory = errors.New("no source inventory loaded")
	// ErrNoSSIDsSelected is returned by AutoSelectVLANs when no SSID is selected.
	ErrNoSSIDsSelected = errors.New("select SSIDs first before auto-selecting VLANs")
)

// UnknownIDError reports an id absent from the bound inventory.
type UnknownIDError struct {
	Category Category
	ID       core.ID
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("%s id %q is not in the source inventory", e.Category, e.ID)
}

// Set holds the selected ids of each category. Ids are validated against the
// inventory on insertion only; a later inventory swap does not prune them.
type Set struct {
	inventory *core.SourceInventory
	selected  map[Category]map[core.ID]struct{}
}

// New returns a set bound to inv. A nil inventory rejects every insertion.
func New(inv *core.SourceInventory) *Set {
	s := &Set{inventory: inv}
	s.reset()
	return s
}

func (s *Set) reset() {
	s.selected = make(map[Category]map[core.ID]struct{}, len(Categories))
	for _, c := range Categories {
		s.selected[c] = make(map[core.ID]struct{})
	}
}

// Add selects id. Adding an already selected id is a no-op.
func (s *Set) Add(c Category, id core.ID) error {
	ids, err := s.bucket(c)
	if err != nil {
		return err
	}
	if s.inventory == nil {
		return ErrNoInventory
	}
	if !s.known(c, id) {
		return &UnknownIDError{Category: c, ID: id}
	}
	ids[id] = struct{}{}
	return nil
}

// Remove deselects id. Removing an unselected id is a no-op.
func (s *Set) Remove(c Category, id core.ID) error {
	ids, err := s.bucket(c)
	if err != nil {
		return err
	}
	delete(ids, id)
	return nil
}

// SetAll replaces the category's selection with ids. Nothing changes if any id is unknown.
func (s *Set) SetAll(c Category, ids []core.ID) error {
	if _, err := s.bucket(c); err != nil {
		return err
	}
	if s.inventory == nil {
		return ErrNoInventory
	}
	next := make(map[core.ID]struct{}, len(ids))
	for _, id := range ids {
		if !s.known(c, id) {
			return &UnknownIDError{Category: c, ID: id}
		}
		next[id] = struct{}{}
	}
	s.selected[c] = next
	return nil
}

// SelectAll selects every inventory id of the category.
func (s *Set) SelectAll(c Category) error {
	if s.inventory == nil {
		return ErrNoInventory
	}
	return s.SetAll(c, s.inventoryIDs(c))
}

// Clear deselects everything in the category.
func (s *Set) Clear(c Category) error {
	if _, err := s.bucket(c); err != nil {
		return err
	}
	s.selected[c] = make(map[core.ID]struct{})
	return nil
}

// Has reports whether id is selected.
func (s *Set) Has(c Category, id core.ID) bool {
	_, ok := s.selected[c][id]
	return ok
}

// Len returns the number of selected ids in the category.
func (s *Set) Len(c Category) int {
	return len(s.selected[c])
}

// IDs returns the selected ids of the category in inventory order. Ids that
// are no longer in the inventory follow, sorted by value.
func (s *Set) IDs(c Category) []core.ID {
	picked := s.selected[c]
	out := make([]core.ID, 0, len(picked))
	seen := make(map[core.ID]bool, len(picked))
	for _, id := range s.inventoryIDs(c) {
		if _, ok := picked[id]; ok && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	var stale []core.ID
	for id := range picked {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	return append(out, stale...)
}

// AutoSelectVLANs replaces the VLAN selection with every VLAN referenced by a
// selected SSID. Both the primary and the default VLAN reference of an SSID
// count, and references match inventory VLANs by tag, not by id. It returns
// the number of VLANs selected.
func (s *Set) AutoSelectVLANs() (int, error) {
	if s.inventory == nil {
		return 0, ErrNoInventory
	}
	if s.Len(SSIDs) == 0 {
		return 0, ErrNoSSIDsSelected
	}

	tags := make(map[int]struct{})
	for _, id := range s.IDs(SSIDs) {
		ssid, ok := s.inventory.SSIDByID(id)
		if !ok {
			continue
		}
		for _, tag := range ssid.VLANTags() {
			tags[tag] = struct{}{}
		}
	}

	vlans := make(map[core.ID]struct{})
	for _, vlan := range s.inventory.VLANs {
		if _, ok := tags[vlan.VLANID]; ok {
			vlans[vlan.ID] = struct{}{}
		}
	}
	s.selected[VLANs] = vlans
	return len(vlans), nil
}

// Counts returns the selected count per category.
func (s *Set) Counts() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = s.Len(c)
	}
	return out
}

func (s *Set) bucket(c Category) (map[core.ID]struct{}, error) {
	ids, ok := s.selected[c]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", c)
	}
	return ids, nil
}

func (s *Set) known(c Category, id core.ID) bool {
	if s.inventory == nil {
		return false
	}
	for _, candidate := range s.inventoryIDs(c) {
		if candidate == id {
			return true
		}
	}
	return false
}

func (s *Set) inventoryIDs(c Category) []core.ID {
	if s.inventory == nil {
		return nil
	}
	var ids []core.ID
	switch c {
	case SSIDs:
		for _, v := range s.inventory.SSIDs {
			ids = append(ids, v.ID)
		}
	case VLANs:
		for _, v := range s.inventory.VLANs {
			ids = append(ids, v.ID)
		}
	case Radius:
		for _, v := range s.inventory.RadiusServers {
			ids = append(ids, v.ID)
		}
	}
	return ids
}
