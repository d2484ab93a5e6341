// Package core defines the foundational types shared by the wlanmigrate wizard:
// Source and Target inventory snapshots, identifiers, radio scopes, wizard steps,
// and the result payloads returned by the migration backend.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ID is an opaque resource identifier. The Source API emits numeric ids while
// the Target API emits UUID strings, so both JSON forms are accepted.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON re-encodes canonical integers as numbers so the backend gets
// back the same JSON type it produced.
func (id ID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (id ID) String() string { return string(id) }

// Step is a position in the wizard state machine.
type Step string

const (
	StepIdle              Step = "idle"
	StepSourceConnecting  Step = "source_connecting"
	StepSourceConnected   Step = "source_connected"
	StepTargetConnecting  Step = "target_connecting"
	StepTargetConnected   Step = "target_connected"
	StepConverting        Step = "converting"
	StepConverted         Step = "converted"
	StepAssigningProfiles Step = "assigning_profiles"
	StepMigrating         Step = "migrating"
	StepDone              Step = "done"

	StepSourceConnectingError Step = "source_connecting_error"
	StepTargetConnectingError Step = "target_connecting_error"
	StepMigratingError        Step = "migrating_error"
)

// IsError reports whether the step is an error sub-state.
func (s Step) IsError() bool {
	return strings.HasSuffix(string(s), "_error")
}

// IsInProgress reports whether a backend call is outstanding for the step.
func (s Step) IsInProgress() bool {
	switch s {
	case StepSourceConnecting, StepTargetConnecting, StepConverting, StepMigrating:
		return true
	}
	return false
}

// RadioScope selects the radio bands a service is broadcast on for one profile.
type RadioScope int

const (
	RadioAll RadioScope = iota
	Radio1
	Radio2
	Radio3
)

var radioScopeNames = map[RadioScope]string{
	RadioAll: "all",
	Radio1:   "radio1",
	Radio2:   "radio2",
	Radio3:   "radio3",
}

func (r RadioScope) String() string {
	if name, ok := radioScopeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("radio(%d)", int(r))
}

// Valid reports whether r is one of the four known scopes.
func (r RadioScope) Valid() bool {
	_, ok := radioScopeNames[r]
	return ok
}

// ParseRadioScope accepts "all", "radio1".."radio3", or the wire indexes "0".."3".
func ParseRadioScope(s string) (RadioScope, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for scope, name := range radioScopeNames {
		if s == name || s == strconv.Itoa(int(scope)) {
			return scope, nil
		}
	}
	return RadioAll, fmt.Errorf("unknown radio scope %q (want all, radio1, radio2 or radio3)", s)
}

// SSIDStatus is the desired enable state of migrated SSIDs on the Target.
type SSIDStatus string

const (
	SSIDEnabled  SSIDStatus = "enabled"
	SSIDDisabled SSIDStatus = "disabled"
)

// ParseSSIDStatus validates a user-supplied SSID status.
func ParseSSIDStatus(s string) (SSIDStatus, error) {
	switch SSIDStatus(strings.ToLower(strings.TrimSpace(s))) {
	case SSIDEnabled:
		return SSIDEnabled, nil
	case SSIDDisabled:
		return SSIDDisabled, nil
	}
	return "", fmt.Errorf("unknown ssid status %q (want enabled or disabled)", s)
}

// SSID is a Source wireless network. It may reference VLANs by tag through a
// primary and a default field.
type SSID struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	VLANID        *int   `json:"vlan_id,omitempty"`
	DefaultVLANID *int   `json:"default_vlan_id,omitempty"`
}

// VLANTags returns every non-zero VLAN tag the SSID references, primary first.
func (s SSID) VLANTags() []int {
	var tags []int
	if s.VLANID != nil && *s.VLANID != 0 {
		tags = append(tags, *s.VLANID)
	}
	if s.DefaultVLANID != nil && *s.DefaultVLANID != 0 {
		tags = append(tags, *s.DefaultVLANID)
	}
	return tags
}

// VLAN is a Source VLAN definition. VLANID is the 802.1Q tag.
type VLAN struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	VLANID int    `json:"vlan_id"`
}

// RadiusServer is a Source RADIUS/authentication server.
type RadiusServer struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// Device is a Source access point or switch. The serial number is its identifier.
type Device struct {
	Serial   ID     `json:"serial"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// SourceInventory is an immutable snapshot fetched on Source connect.
type SourceInventory struct {
	SSIDs         []SSID         `json:"ssids"`
	VLANs         []VLAN         `json:"vlans"`
	RadiusServers []RadiusServer `json:"radius_servers"`
	Devices       []Device       `json:"devices"`
}

// SSIDByID returns the SSID with the given id.
func (inv *SourceInventory) SSIDByID(id ID) (SSID, bool) {
	for _, s := range inv.SSIDs {
		if s.ID == id {
			return s, true
		}
	}
	return SSID{}, false
}

// Profile is a Target configuration bundle a service can be assigned to.
type Profile struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	IsCustom bool   `json:"is_custom"`
}

// TargetInventory is an immutable snapshot fetched on Target connect.
type TargetInventory struct {
	Profiles []Profile `json:"profiles"`
}

// ProfileByID returns the profile with the given id.
func (inv *TargetInventory) ProfileByID(id ID) (Profile, bool) {
	for _, p := range inv.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// CustomProfiles returns the custom profiles, or every profile when none are custom.
func (inv *TargetInventory) CustomProfiles() []Profile {
	var custom []Profile
	for _, p := range inv.Profiles {
		if p.IsCustom {
			custom = append(custom, p)
		}
	}
	if len(custom) == 0 {
		return append([]Profile(nil), inv.Profiles...)
	}
	return custom
}

// ConvertedService is the Target-side service produced from a selected SSID.
type ConvertedService struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	SSID   string `json:"ssid,omitempty"`
	Status string `json:"status,omitempty"`
}

// ConversionSummary holds the per-category object counts the backend reports on convert.
type ConversionSummary struct {
	RateLimiters int `json:"rate_limiters"`
	CoSPolicies  int `json:"cos_policies"`
	Topologies   int `json:"topologies"`
	AAAPolicies  int `json:"aaa_policies"`
	Services     int `json:"services"`
	APConfigs    int `json:"ap_configs"`
}

// ConversionResult is the backend reply to a convert request.
type ConversionResult struct {
	Summary  ConversionSummary  `json:"summary"`
	Services []ConvertedService `json:"services"`
}

// SourceCredentials authenticate against the Source management system.
type SourceCredentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Region   string `json:"region,omitempty"`
	APIToken string `json:"api_token,omitempty"`
}

// TargetCredentials authenticate against the Target controller. They are held
// in memory only.
type TargetCredentials struct {
	ControllerURL string `json:"controller_url"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// Empty reports whether no usable credential was supplied.
func (c TargetCredentials) Empty() bool {
	return c.ControllerURL == "" || c.Username == "" || c.Password == ""
}

// SourceRegions are the Source API regions the backend knows.
var SourceRegions = []string{"Global", "EU", "APAC", "California"}

// MigrationResults carries the backend's per-category outcome. Each payload is
// kept verbatim; it may be a string such as "5/10 posted successfully", an
// object with posted/updated/total counts, or a bare number.
type MigrationResults struct {
	RateLimiters       json.RawMessage `json:"rate_limiters,omitempty"`
	CoSPolicies        json.RawMessage `json:"cos_policies,omitempty"`
	Topologies         json.RawMessage `json:"topologies,omitempty"`
	AAAPolicies        json.RawMessage `json:"aaa_policies,omitempty"`
	Services           json.RawMessage `json:"services,omitempty"`
	APConfigs          json.RawMessage `json:"ap_configs,omitempty"`
	ProfileAssignments json.RawMessage `json:"profile_assignments,omitempty"`
}

// ResultLine is one display row of MigrationResults.
type ResultLine struct {
	Label string
	Value string
}

// Lines renders the categories present in the result, in display order.
func (r MigrationResults) Lines() []ResultLine {
	fields := []struct {
		label string
		raw   json.RawMessage
	}{
		{"Rate Limiters", r.RateLimiters},
		{"CoS Policies", r.CoSPolicies},
		{"Topologies", r.Topologies},
		{"AAA Policies", r.AAAPolicies},
		{"Services", r.Services},
		{"AP Configs", r.APConfigs},
		{"Profile Assignments", r.ProfileAssignments},
	}
	var lines []ResultLine
	for _, f := range fields {
		if len(f.raw) == 0 || string(f.raw) == "null" {
			continue
		}
		lines = append(lines, ResultLine{Label: f.label, Value: FormatCount(f.raw)})
	}
	return lines
}

var fractionPattern = regexp.MustCompile(`\d+/\d+`)

// FormatCount renders a category payload as "posted/total" where possible.
func FormatCount(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if m := fractionPattern.FindString(s); m != "" {
			return m
		}
		return s
	}
	var obj struct {
		Posted  int `json:"posted"`
		Updated int `json:"updated"`
		Total   int `json:"total"`
	}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &obj); err == nil {
			done := obj.Posted
			if done == 0 {
				done = obj.Updated
			}
			return fmt.Sprintf("%d/%d", done, obj.Total)
		}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return "0/0"
}

// ExecuteResult is the backend reply to an execute request.
type ExecuteResult struct {
	DryRun     bool             `json:"dry_run"`
	OutputFile string           `json:"output_file,omitempty"`
	Results    MigrationResults `json:"results"`
}

// LogEntry is one backend-side log line.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// StatusReport is the backend's status. Logs may be a trailing window of the
// backend log; it only shrinks below the previous window on a backend reset.
type StatusReport struct {
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step"`
	Logs        []LogEntry `json:"logs"`
}

// WorstSite is a display-only site health row read after a real migration.
type WorstSite struct {
	Name         string   `json:"name"`
	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	DeviceCount  int      `json:"device_count"`
	Score        float64  `json:"score"`
	Errors       []string `json:"errors,omitempty"`
}
