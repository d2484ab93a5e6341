// Package session implements the migration wizard's state machine: the gated
// sequence from Source connect through execution, and the session data each
// step produces.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
	"github.com/rs/zerolog"

	"github.com/wlanmigrate/wlanmigrate/internal/assignment"
	"github.com/wlanmigrate/wlanmigrate/internal/audit"
	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/selection"
	"github.com/wlanmigrate/wlanmigrate/internal/vault"
)

// targetCredsKey is the vault entry holding the Target credentials.
const targetCredsKey = "target.credentials"

// ErrSessionReset marks a backend reply that arrived after Reset; the reply is discarded.
var ErrSessionReset = errors.New("session was reset while the request was in flight")

// Confirmer approves destructive migrations. It is asked before every
// non-dry-run execute and may block on user input.
type Confirmer interface {
	ConfirmMigration(ctx context.Context, summary Summary, opts ExecuteOptions) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, summary Summary, opts ExecuteOptions) (bool, error)

func (f ConfirmFunc) ConfirmMigration(ctx context.Context, summary Summary, opts ExecuteOptions) (bool, error) {
	return f(ctx, summary, opts)
}

// LogCursor is the part of the log poller that Reset rewinds.
type LogCursor interface {
	Reset()
}

// ExecuteOptions are the per-call execute parameters.
type ExecuteOptions struct {
	DryRun     bool
	SSIDStatus core.SSIDStatus // empty means enabled
}

// Summary is the pre-migration overview.
type Summary struct {
	SSIDs       int `json:"ssids"`
	VLANs       int `json:"vlans"`
	Radius      int `json:"radius"`
	Assignments int `json:"assignments"`
}

// Config wires a Machine. Backend and Vault are required; the rest may be nil.
type Config struct {
	Backend   backend.Backend
	Vault     *vault.Vault
	Audit     *audit.Logger
	Runs      *RunStore
	Confirmer Confirmer
	LogCursor LogCursor
	Logger    zerolog.Logger
	Operator  string
}

// Machine is the single wizard session of a process. All methods are safe
// for concurrent use; a step's in-progress state is entered before its
// backend call, so a second caller is rejected instead of issuing a
// conflicting request.
type Machine struct {
	cfg    Config
	logger zerolog.Logger

	mu          sync.Mutex
	generation  uint64
	sessionUUID string
	step        core.Step
	lastErr     *core.Error

	source     *core.SourceInventory
	selection  *selection.Set
	committed  bool
	target     *core.TargetInventory
	conversion *core.ConversionResult
	assignable []core.Profile
	graph      *assignment.Graph
	result     *core.ExecuteResult
	lastDryRun bool
	worstSites []core.WorstSite
}

// New returns a machine in the idle step.
func New(cfg Config) (*Machine, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("session: nil Backend")
	}
	if cfg.Vault == nil {
		return nil, fmt.Errorf("session: nil Vault")
	}
	if cfg.Operator == "" {
		cfg.Operator = "local"
	}
	m := &Machine{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "session").Logger(),
	}
	m.clearLocked()
	return m, nil
}

// clearLocked drops all session data and starts a new session id.
func (m *Machine) clearLocked() {
	m.sessionUUID = uuid.New().String()
	m.step = core.StepIdle
	m.lastErr = nil
	m.source = nil
	m.selection = selection.New(nil)
	m.committed = false
	m.target = nil
	m.conversion = nil
	m.assignable = nil
	m.graph = assignment.NewGraph()
	m.result = nil
	m.lastDryRun = false
	m.worstSites = nil
}

// Step returns the current step.
func (m *Machine) Step() core.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// SessionUUID returns the id of the current session.
func (m *Machine) SessionUUID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionUUID
}

// LastError returns the error of the last failed backend call, or nil.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil {
		return nil
	}
	return m.lastErr
}

func (m *Machine) transitionLocked(to core.Step) {
	from := m.step
	m.step = to
	m.logger.Info().Str("session", m.sessionUUID).Str("from", string(from)).Str("to", string(to)).Msg("step")
}

func (m *Machine) failLocked(to core.Step, e *core.Error) {
	m.lastErr = e
	m.transitionLocked(to)
	m.logger.Warn().Str("session", m.sessionUUID).Str("kind", string(e.Kind)).Msg(e.Error())
}

func (m *Machine) auditLocked(event audit.EventType, runUUID string, detail any) {
	if m.cfg.Audit == nil {
		return
	}
	if err := m.cfg.Audit.Log(event, m.cfg.Operator, m.sessionUUID, runUUID, detail); err != nil {
		m.logger.Warn().Err(err).Str("event", string(event)).Msg("audit write failed")
	}
}

func requireStep(op string, current core.Step, allowed ...core.Step) error {
	if slices.Contains(allowed, current) {
		return nil
	}
	if current.IsInProgress() {
		return core.Validation(op, "a request is already in progress (%s)", current)
	}
	return core.Validation(op, "not allowed in step %s", current)
}

func staleError(op string) error {
	return &core.Error{Kind: core.KindValidation, Op: op, Message: ErrSessionReset.Error(), Err: ErrSessionReset}
}

// ConnectSource authenticates against the Source and loads its inventory.
func (m *Machine) ConnectSource(ctx context.Context, creds core.SourceCredentials) (*core.SourceInventory, error) {
	const op = "connect source"

	m.mu.Lock()
	if err := requireStep(op, m.step, core.StepIdle, core.StepSourceConnectingError); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if creds.APIToken == "" && (creds.Username == "" || creds.Password == "") {
		m.mu.Unlock()
		return nil, core.Validation(op, "username and password, or an API token, are required")
	}
	if creds.Region != "" && !slices.Contains(core.SourceRegions, creds.Region) {
		m.mu.Unlock()
		return nil, core.Validation(op, "unknown region %q", creds.Region)
	}
	gen := m.generation
	m.lastErr = nil
	m.transitionLocked(core.StepSourceConnecting)
	m.mu.Unlock()

	inv, err := m.cfg.Backend.ConnectSource(ctx, creds)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return nil, staleError(op)
	}
	if err != nil {
		e := core.Classify(op, err)
		m.failLocked(core.StepSourceConnectingError, e)
		m.auditLocked(audit.EventConnectFailed, "", map[string]string{"side": "source", "region": creds.Region, "kind": string(e.Kind)})
		return nil, e
	}

	m.source = inv
	m.selection = selection.New(inv)
	m.committed = false
	m.transitionLocked(core.StepSourceConnected)
	m.auditLocked(audit.EventSourceConnected, "", map[string]int{
		"ssids": len(inv.SSIDs), "vlans": len(inv.VLANs), "radius": len(inv.RadiusServers), "devices": len(inv.Devices),
	})
	return deepcopy.Copy(inv).(*core.SourceInventory), nil
}

// selectionSteps are the steps in which the selection may change.
var selectionSteps = []core.Step{core.StepSourceConnected, core.StepTargetConnectingError}

func (m *Machine) editSelection(op string, edit func(*selection.Set) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireStep(op, m.step, selectionSteps...); err != nil {
		return err
	}
	if err := edit(m.selection); err != nil {
		return &core.Error{Kind: core.KindValidation, Op: op, Message: err.Error(), Err: err}
	}
	m.committed = false
	return nil
}

// Select adds ids to a selection category.
func (m *Machine) Select(c selection.Category, ids ...core.ID) error {
	return m.editSelection("select", func(s *selection.Set) error {
		for _, id := range ids {
			if err := s.Add(c, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Deselect removes ids from a selection category.
func (m *Machine) Deselect(c selection.Category, ids ...core.ID) error {
	return m.editSelection("deselect", func(s *selection.Set) error {
		for _, id := range ids {
			if err := s.Remove(c, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SelectAll selects every inventory item of a category.
func (m *Machine) SelectAll(c selection.Category) error {
	return m.editSelection("select all", func(s *selection.Set) error { return s.SelectAll(c) })
}

// ClearSelection empties a category.
func (m *Machine) ClearSelection(c selection.Category) error {
	return m.editSelection("clear selection", func(s *selection.Set) error { return s.Clear(c) })
}

// AutoSelectVLANs replaces the VLAN selection with the VLANs the selected SSIDs reference.
func (m *Machine) AutoSelectVLANs() (int, error) {
	var n int
	err := m.editSelection("auto-select vlans", func(s *selection.Set) error {
		var err error
		n, err = s.AutoSelectVLANs()
		return err
	})
	return n, err
}

// ProceedToTarget commits the selection. It does not change the step.
func (m *Machine) ProceedToTarget() error {
	const op = "proceed to target"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireStep(op, m.step, selectionSteps...); err != nil {
		return err
	}
	if m.selection.Len(selection.SSIDs) == 0 {
		return core.Validation(op, "select at least one SSID")
	}
	m.committed = true
	m.logger.Info().Str("session", m.sessionUUID).Interface("selected", m.selection.Counts()).Msg("selection committed")
	m.auditLocked(audit.EventSelectionCommitted, "", m.selection.Counts())
	return nil
}

// ConnectTarget authenticates against the Target, loads its profiles and then
// runs Convert. A conversion failure is returned alongside the inventory; the
// session then stays in target_connected.
func (m *Machine) ConnectTarget(ctx context.Context, creds core.TargetCredentials) (*core.TargetInventory, error) {
	const op = "connect target"

	m.mu.Lock()
	if err := requireStep(op, m.step, selectionSteps...); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if !m.committed {
		m.mu.Unlock()
		return nil, core.Validation(op, "confirm the selection before connecting to the target")
	}
	if creds.Empty() {
		m.mu.Unlock()
		return nil, core.Validation(op, "controller URL, username and password are required")
	}
	if err := m.cfg.Vault.PutJSON(targetCredsKey, creds); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("sealing target credentials: %w", err)
	}
	gen := m.generation
	m.lastErr = nil
	m.transitionLocked(core.StepTargetConnecting)
	m.mu.Unlock()

	inv, err := m.cfg.Backend.ConnectTarget(ctx, creds)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil, staleError(op)
	}
	if err != nil {
		e := core.Classify(op, err)
		m.cfg.Vault.Delete(targetCredsKey)
		m.failLocked(core.StepTargetConnectingError, e)
		m.auditLocked(audit.EventConnectFailed, "", map[string]string{"side": "target", "controller_url": creds.ControllerURL, "kind": string(e.Kind)})
		m.mu.Unlock()
		return nil, e
	}
	m.target = inv
	m.transitionLocked(core.StepTargetConnected)
	m.auditLocked(audit.EventTargetConnected, "", map[string]any{"controller_url": creds.ControllerURL, "profiles": len(inv.Profiles)})
	out := deepcopy.Copy(inv).(*core.TargetInventory)
	m.mu.Unlock()

	if _, err := m.Convert(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// Convert asks the backend to translate the selection into Target services.
func (m *Machine) Convert(ctx context.Context) (*core.ConversionResult, error) {
	const op = "convert"

	m.mu.Lock()
	if err := requireStep(op, m.step, core.StepTargetConnected); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	req := backend.ConvertRequest{
		SelectedSSIDs:  m.selection.IDs(selection.SSIDs),
		SelectedVLANs:  m.selection.IDs(selection.VLANs),
		SelectedRadius: m.selection.IDs(selection.Radius),
	}
	gen := m.generation
	m.lastErr = nil
	m.transitionLocked(core.StepConverting)
	m.mu.Unlock()

	res, err := m.cfg.Backend.Convert(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return nil, staleError(op)
	}
	if err != nil {
		e := core.Classify(op, err)
		m.failLocked(core.StepTargetConnected, e)
		m.auditLocked(audit.EventConvertFailed, "", map[string]string{"kind": string(e.Kind)})
		return nil, e
	}

	m.conversion = res
	m.assignable = m.target.CustomProfiles()
	m.graph = assignment.NewGraph()
	m.transitionLocked(core.StepConverted)
	m.auditLocked(audit.EventConverted, "", map[string]int{"services": len(res.Services), "assignable_profiles": len(m.assignable)})
	return deepcopy.Copy(res).(*core.ConversionResult), nil
}

// BeginAssignment enters profile assignment and returns the assignable profiles.
func (m *Machine) BeginAssignment() ([]core.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireStep("begin assignment", m.step, core.StepConverted, core.StepAssigningProfiles); err != nil {
		return nil, err
	}
	if m.step == core.StepConverted {
		m.transitionLocked(core.StepAssigningProfiles)
	}
	return append([]core.Profile(nil), m.assignable...), nil
}

func (m *Machine) serviceKnownLocked(id core.ID) bool {
	return slices.ContainsFunc(m.conversion.Services, func(s core.ConvertedService) bool { return s.ID == id })
}

func (m *Machine) serviceIDsLocked() []core.ID {
	ids := make([]core.ID, 0, len(m.conversion.Services))
	for _, s := range m.conversion.Services {
		ids = append(ids, s.ID)
	}
	return ids
}

// editAssignments runs edit in assigning_profiles and audits the new total.
func (m *Machine) editAssignments(op string, edit func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireStep(op, m.step, core.StepAssigningProfiles); err != nil {
		return err
	}
	before := m.graph.CountAll()
	if err := edit(); err != nil {
		var e *core.Error
		if errors.As(err, &e) {
			return e
		}
		return &core.Error{Kind: core.KindValidation, Op: op, Message: err.Error(), Err: err}
	}
	if after := m.graph.CountAll(); after != before {
		m.logger.Debug().Str("op", op).Int("assignments", after).Msg("assignments changed")
		m.auditLocked(audit.EventAssignmentsChanged, "", map[string]any{"op": op, "assignments": after})
	}
	return nil
}

func (m *Machine) profileRefsLocked(op string, ids []core.ID) ([]assignment.ProfileRef, error) {
	refs := make([]assignment.ProfileRef, 0, len(ids))
	for _, id := range ids {
		p, ok := m.target.ProfileByID(id)
		if !ok {
			return nil, core.Validation(op, "profile %q is not in the target inventory", id)
		}
		refs = append(refs, assignment.ProfileRef{ID: p.ID, Name: p.Name})
	}
	return refs, nil
}

func (m *Machine) checkServicesLocked(op string, ids []core.ID) error {
	for _, id := range ids {
		if !m.serviceKnownLocked(id) {
			return core.Validation(op, "service %q was not produced by the conversion", id)
		}
	}
	return nil
}

// Assign sets one (service, profile) assignment; re-assigning updates the scope in place.
func (m *Machine) Assign(serviceID, profileID core.ID, scope core.RadioScope) error {
	const op = "assign"
	return m.editAssignments(op, func() error {
		if err := m.checkServicesLocked(op, []core.ID{serviceID}); err != nil {
			return err
		}
		refs, err := m.profileRefsLocked(op, []core.ID{profileID})
		if err != nil {
			return err
		}
		return m.graph.Set(serviceID, profileID, refs[0].Name, scope)
	})
}

// Unassign removes one assignment and reports whether it existed.
func (m *Machine) Unassign(serviceID, profileID core.ID) (bool, error) {
	const op = "unassign"
	var removed bool
	err := m.editAssignments(op, func() error {
		if err := m.checkServicesLocked(op, []core.ID{serviceID}); err != nil {
			return err
		}
		removed = m.graph.Unset(serviceID, profileID)
		return nil
	})
	return removed, err
}

// BulkAssign assigns every listed service to every listed profile.
func (m *Machine) BulkAssign(serviceIDs, profileIDs []core.ID, scope core.RadioScope) error {
	const op = "bulk assign"
	return m.editAssignments(op, func() error {
		if err := m.checkServicesLocked(op, serviceIDs); err != nil {
			return err
		}
		refs, err := m.profileRefsLocked(op, profileIDs)
		if err != nil {
			return err
		}
		return m.graph.BulkAssign(serviceIDs, refs, scope)
	})
}

// AssignAllToAll assigns every converted service to every assignable profile.
func (m *Machine) AssignAllToAll(scope core.RadioScope) (int, error) {
	const op = "assign all to all"
	var n int
	err := m.editAssignments(op, func() error {
		refs := make([]assignment.ProfileRef, 0, len(m.assignable))
		for _, p := range m.assignable {
			refs = append(refs, assignment.ProfileRef{ID: p.ID, Name: p.Name})
		}
		n = len(refs)
		return m.graph.BulkAssign(m.serviceIDsLocked(), refs, scope)
	})
	return n, err
}

// AssignAllToCustom assigns every converted service to every custom profile.
func (m *Machine) AssignAllToCustom(scope core.RadioScope) (int, error) {
	const op = "assign all to custom"
	var n int
	err := m.editAssignments(op, func() error {
		var refs []assignment.ProfileRef
		for _, p := range m.target.Profiles {
			if p.IsCustom {
				refs = append(refs, assignment.ProfileRef{ID: p.ID, Name: p.Name})
			}
		}
		if len(refs) == 0 {
			return core.Validation(op, "the target has no custom profiles")
		}
		n = len(refs)
		return m.graph.BulkAssign(m.serviceIDsLocked(), refs, scope)
	})
	return n, err
}

func (m *Machine) summaryLocked() Summary {
	return Summary{
		SSIDs:       m.selection.Len(selection.SSIDs),
		VLANs:       m.selection.Len(selection.VLANs),
		Radius:      m.selection.Len(selection.Radius),
		Assignments: m.graph.CountAll(),
	}
}

// ProceedToMigration returns the pre-migration summary.
func (m *Machine) ProceedToMigration() (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := requireStep("proceed to migration", m.step, core.StepAssigningProfiles); err != nil {
		return Summary{}, err
	}
	return m.summaryLocked(), nil
}

func (m *Machine) checkExecutableLocked(op string) error {
	switch {
	case m.step == core.StepAssigningProfiles, m.step == core.StepMigratingError:
	case m.step == core.StepDone && m.lastDryRun:
	case m.step == core.StepDone:
		return core.Validation(op, "the migration already ran; reset to start a new session")
	default:
		if err := requireStep(op, m.step); err != nil {
			return err
		}
	}
	if !m.cfg.Vault.Has(targetCredsKey) {
		return core.Validation(op, "no target credentials; connect to the target first")
	}
	return nil
}

// ExecuteMigration sends the assignment graph and options to the backend.
// A non-dry run must be approved by the Confirmer first.
func (m *Machine) ExecuteMigration(ctx context.Context, opts ExecuteOptions) (*core.ExecuteResult, error) {
	const op = "execute migration"

	if opts.SSIDStatus == "" {
		opts.SSIDStatus = core.SSIDEnabled
	}
	if _, err := core.ParseSSIDStatus(string(opts.SSIDStatus)); err != nil {
		return nil, core.Validation(op, "%v", err)
	}

	m.mu.Lock()
	if err := m.checkExecutableLocked(op); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	summary := m.summaryLocked()
	gen := m.generation
	m.mu.Unlock()

	if !opts.DryRun {
		if err := m.confirm(ctx, op, gen, summary, opts); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil, staleError(op)
	}
	if err := m.checkExecutableLocked(op); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	var creds core.TargetCredentials
	if err := m.cfg.Vault.GetJSON(targetCredsKey, &creds); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("opening target credentials: %w", err)
	}
	req := backend.ExecuteRequest{
		ControllerURL:      creds.ControllerURL,
		Username:           creds.Username,
		Password:           creds.Password,
		DryRun:             opts.DryRun,
		SSIDStatus:         opts.SSIDStatus,
		ProfileAssignments: m.graph.Clone(),
	}
	runUUID := uuid.New().String()
	m.startRunLocked(runUUID, opts, summary)
	m.lastErr = nil
	m.transitionLocked(core.StepMigrating)
	m.auditLocked(audit.EventMigrationStarted, runUUID, map[string]any{
		"dry_run": opts.DryRun, "ssid_status": opts.SSIDStatus, "controller_url": creds.ControllerURL, "summary": summary,
	})
	m.mu.Unlock()

	res, err := m.cfg.Backend.Execute(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		m.finishRunLocked(runUUID, RunDiscarded, nil, ErrSessionReset.Error())
		return nil, staleError(op)
	}
	if err != nil {
		e := core.Classify(op, err)
		m.failLocked(core.StepMigratingError, e)
		m.finishRunLocked(runUUID, RunFailed, nil, e.Message)
		m.auditLocked(audit.EventMigrationFailed, runUUID, map[string]string{"kind": string(e.Kind), "error": e.Message})
		return nil, e
	}

	m.result = res
	m.lastDryRun = opts.DryRun || res.DryRun
	m.worstSites = nil
	m.transitionLocked(core.StepDone)
	results, _ := json.Marshal(res.Results)
	m.finishRunLocked(runUUID, RunSucceeded, results, "")
	m.auditLocked(audit.EventMigrationFinished, runUUID, map[string]any{"dry_run": m.lastDryRun, "output_file": res.OutputFile})
	return deepcopy.Copy(res).(*core.ExecuteResult), nil
}

func (m *Machine) confirm(ctx context.Context, op string, gen uint64, summary Summary, opts ExecuteOptions) error {
	if m.cfg.Confirmer == nil {
		return core.Validation(op, "a non-dry-run migration requires confirmation")
	}
	ok, err := m.cfg.Confirmer.ConfirmMigration(ctx, summary, opts)
	if err == nil && ok {
		return nil
	}

	m.mu.Lock()
	if gen == m.generation {
		m.auditLocked(audit.EventMigrationDeclined, "", map[string]any{"summary": summary})
	}
	m.mu.Unlock()
	m.logger.Info().Msg("migration not confirmed")
	if err != nil {
		return &core.Error{Kind: core.KindValidation, Op: op, Message: fmt.Sprintf("confirmation failed: %v", err), Err: err}
	}
	return core.Validation(op, "migration was not confirmed")
}

func (m *Machine) startRunLocked(runUUID string, opts ExecuteOptions, summary Summary) {
	if m.cfg.Runs == nil {
		return
	}
	err := m.cfg.Runs.Start(Run{
		UUID:        runUUID,
		SessionUUID: m.sessionUUID,
		DryRun:      opts.DryRun,
		SSIDStatus:  opts.SSIDStatus,
		Services:    len(m.conversion.Services),
		Assignments: summary.Assignments,
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("run history write failed")
	}
}

func (m *Machine) finishRunLocked(runUUID, status string, results json.RawMessage, detail string) {
	if m.cfg.Runs == nil {
		return
	}
	if err := m.cfg.Runs.Finish(runUUID, status, results, detail); err != nil {
		m.logger.Warn().Err(err).Msg("run history write failed")
	}
}

// FetchWorstSites reads the site health rows after a real migration. The
// rows are display-only and do not change the step.
func (m *Machine) FetchWorstSites(ctx context.Context) ([]core.WorstSite, error) {
	const op = "fetch worst sites"

	m.mu.Lock()
	if m.step != core.StepDone || m.lastDryRun {
		m.mu.Unlock()
		return nil, core.Validation(op, "worst sites are only available after a completed non-dry-run migration")
	}
	gen := m.generation
	m.mu.Unlock()

	sites, err := m.cfg.Backend.FetchWorstSites(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return nil, staleError(op)
	}
	if err != nil {
		e := core.Classify(op, err)
		m.logger.Warn().Str("kind", string(e.Kind)).Msg(e.Error())
		return nil, e
	}
	m.worstSites = sites
	m.auditLocked(audit.EventWorstSitesFetched, "", map[string]int{"sites": len(sites)})
	return append([]core.WorstSite(nil), sites...), nil
}

// Reset discards the whole session from any step: inventories, selection,
// assignments, results and the sealed credentials. The log cursor is rewound
// and the backend is asked to drop its state; a backend failure is logged
// and does not fail the reset. Replies to calls still in flight are discarded.
func (m *Machine) Reset(ctx context.Context) error {
	m.mu.Lock()
	from := m.step
	old := m.sessionUUID
	m.generation++
	if err := m.cfg.Vault.Wipe(); err != nil {
		m.logger.Warn().Err(err).Msg("wiping vault")
	}
	m.clearLocked()
	if m.cfg.LogCursor != nil {
		m.cfg.LogCursor.Reset()
	}
	m.logger.Info().Str("session", m.sessionUUID).Str("previous", old).Str("from", string(from)).Msg("session reset")
	m.auditLocked(audit.EventSessionReset, "", map[string]string{"previous_session": old, "from": string(from)})
	m.mu.Unlock()

	if err := m.cfg.Backend.Reset(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("backend reset failed; local session cleared anyway")
	}
	return nil
}

// Snapshot is a deep copy of the session for rendering.
type Snapshot struct {
	SessionUUID          string
	Step                 core.Step
	Error                string
	ErrorKind            core.ErrorKind
	Source               *core.SourceInventory
	Selection            map[selection.Category][]core.ID
	SelectionCommitted   bool
	Target               *core.TargetInventory
	Conversion           *core.ConversionResult
	AssignableProfiles   []core.Profile
	Assignments          map[core.ID][]assignment.Assignment
	AssignmentOrder      []core.ID
	Summary              Summary
	Result               *core.ExecuteResult
	LastRunDryRun        bool
	WorstSites           []core.WorstSite
	HasTargetCredentials bool
}

// Snapshot returns a copy of the exposed state that shares nothing with the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		SessionUUID:          m.sessionUUID,
		Step:                 m.step,
		Source:               m.source,
		Selection:            make(map[selection.Category][]core.ID, len(selection.Categories)),
		SelectionCommitted:   m.committed,
		Target:               m.target,
		Conversion:           m.conversion,
		AssignableProfiles:   m.assignable,
		Assignments:          make(map[core.ID][]assignment.Assignment),
		AssignmentOrder:      m.graph.Services(),
		Summary:              m.summaryLocked(),
		Result:               m.result,
		LastRunDryRun:        m.lastDryRun,
		WorstSites:           m.worstSites,
		HasTargetCredentials: m.cfg.Vault.Has(targetCredsKey),
	}
	if m.lastErr != nil {
		snap.Error = m.lastErr.Error()
		snap.ErrorKind = m.lastErr.Kind
	}
	for _, c := range selection.Categories {
		snap.Selection[c] = m.selection.IDs(c)
	}
	for _, svc := range snap.AssignmentOrder {
		snap.Assignments[svc] = m.graph.For(svc)
	}
	return deepcopy.Copy(snap).(Snapshot)
}
