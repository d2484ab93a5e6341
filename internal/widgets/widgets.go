// Package widgets persists the results dashboard layout: widget order,
// visibility and size. The layout is process-wide and survives session reset.
package widgets

import (
	"encoding/json"
	"fmt"
)

// PreferencesKey is the storage key of the layout document.
const PreferencesKey = "dashboard.widgets"

// Size is a widget's rendered size.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Valid reports whether s is a known size.
func (s Size) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	}
	return false
}

// ParseSize validates a size name.
func ParseSize(s string) (Size, error) {
	if size := Size(s); size.Valid() {
		return size, nil
	}
	return "", fmt.Errorf("unknown widget size %q (want small, medium or large)", s)
}

// Widget describes one dashboard widget.
type Widget struct {
	ID    string
	Title string
}

// Known lists every dashboard widget in default order.
var Known = []Widget{
	{"migration-summary", "Migration Summary"},
	{"object-results", "Object Results"},
	{"profile-assignments", "Profile Assignments"},
	{"worst-sites", "Worst Sites"},
	{"error-breakdown", "Error Breakdown"},
	{"device-coverage", "Device Coverage"},
	{"migration-log", "Migration Log"},
	{"dry-run-output", "Dry Run Output"},
}

// IsKnown reports whether id names a dashboard widget.
func IsKnown(id string) bool {
	for _, w := range Known {
		if w.ID == id {
			return true
		}
	}
	return false
}

// Title returns the display title of id, or id itself when unknown.
func Title(id string) string {
	for _, w := range Known {
		if w.ID == id {
			return w.Title
		}
	}
	return id
}

// Preferences is the persisted layout document.
type Preferences struct {
	Order      []string        `json:"order"`
	Visibility map[string]bool `json:"visibility"`
	Sizes      map[string]Size `json:"sizes"`
}

// Default returns the layout used on first run: every known widget, visible,
// medium-sized, in the order of Known.
func Default() Preferences {
	p := Preferences{
		Order:      make([]string, 0, len(Known)),
		Visibility: make(map[string]bool, len(Known)),
		Sizes:      make(map[string]Size, len(Known)),
	}
	for _, w := range Known {
		p.Order = append(p.Order, w.ID)
		p.Visibility[w.ID] = true
		p.Sizes[w.ID] = SizeMedium
	}
	return p
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	c := Preferences{
		Order:      append([]string(nil), p.Order...),
		Visibility: make(map[string]bool, len(p.Visibility)),
		Sizes:      make(map[string]Size, len(p.Sizes)),
	}
	for k, v := range p.Visibility {
		c.Visibility[k] = v
	}
	for k, v := range p.Sizes {
		c.Sizes[k] = v
	}
	return c
}

// Normalize repairs p so that Order is a permutation of the known ids and
// every known id has a visibility and a valid size. Unknown ids are dropped.
func (p Preferences) Normalize() Preferences {
	out := Preferences{
		Order:      repairOrder(p.Order),
		Visibility: make(map[string]bool, len(Known)),
		Sizes:      make(map[string]Size, len(Known)),
	}
	for _, w := range Known {
		visible, ok := p.Visibility[w.ID]
		if !ok {
			visible = true
		}
		out.Visibility[w.ID] = visible

		size := p.Sizes[w.ID]
		if !size.Valid() {
			size = SizeMedium
		}
		out.Sizes[w.ID] = size
	}
	return out
}

// VisibleOrder returns the ids of visible widgets in display order.
func (p Preferences) VisibleOrder() []string {
	var ids []string
	for _, id := range p.Order {
		if p.Visibility[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// repairOrder keeps the first occurrence of each known id and appends any
// missing ones in default order.
func repairOrder(ids []string) []string {
	seen := make(map[string]bool, len(Known))
	out := make([]string, 0, len(Known))
	for _, id := range ids {
		if IsKnown(id) && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, w := range Known {
		if !seen[w.ID] {
			out = append(out, w.ID)
		}
	}
	return out
}

// decode parses a stored document. Anything unparseable is reported as an error
// so the caller can fall back to the default.
func decode(data []byte) (Preferences, error) {
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, err
	}
	if len(p.Order) == 0 {
		return Preferences{}, fmt.Errorf("layout document has no order")
	}
	return p.Normalize(), nil
}
