// Package backendtest provides an in-memory backend.Backend for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Fake is a scriptable backend. Set the *Err fields to make a call fail and
// the payload fields to shape its reply. Every call is counted by name.
type Fake struct {
	mu sync.Mutex

	Source     core.SourceInventory
	Target     core.TargetInventory
	Conversion core.ConversionResult
	Results    core.MigrationResults
	Status     core.StatusReport
	Sites      []core.WorstSite

	ConnectSourceErr error
	ConnectTargetErr error
	ConvertErr       error
	ExecuteErr       error
	ResetErr         error
	PollErr          error
	WorstSitesErr    error

	// Gate, when non-nil, is received from before Execute and Convert return,
	// letting tests hold a call in flight.
	Gate chan struct{}

	calls       map[string]int
	lastExecute *backend.ExecuteRequest
	lastConvert *backend.ConvertRequest
}

// New returns a fake preloaded with a small two-SSID Source and a two-profile Target.
func New() *Fake {
	ten, twenty := 10, 20
	return &Fake{
		Source: core.SourceInventory{
			SSIDs: []core.SSID{
				{ID: "s1", Name: "corp", VLANID: &ten, DefaultVLANID: &twenty},
				{ID: "s2", Name: "guest"},
			},
			VLANs: []core.VLAN{
				{ID: "v1", Name: "corp", VLANID: 10},
				{ID: "v2", Name: "voice", VLANID: 20},
				{ID: "v3", Name: "guest", VLANID: 30},
			},
			RadiusServers: []core.RadiusServer{{ID: "r1", Name: "nps", IP: "10.0.0.10"}},
			Devices:       []core.Device{{Serial: "AP-1", Name: "lobby"}},
		},
		Target: core.TargetInventory{
			Profiles: []core.Profile{
				{ID: "profA", Name: "Campus", Platform: "AP3000", IsCustom: true},
				{ID: "profB", Name: "Branch", Platform: "AP3000", IsCustom: true},
				{ID: "profD", Name: "AP3000/default", Platform: "AP3000"},
			},
		},
		Conversion: core.ConversionResult{
			Summary: core.ConversionSummary{Services: 2, Topologies: 1},
			Services: []core.ConvertedService{
				{ID: "svc1", Name: "corp", SSID: "corp"},
				{ID: "svc2", Name: "guest", SSID: "guest"},
			},
		},
		Results: core.MigrationResults{
			Services:           []byte(`"2/2 posted successfully"`),
			ProfileAssignments: []byte(`2`),
		},
		Status: core.StatusReport{Status: "idle"},
		calls:  make(map[string]int),
	}
}

func (f *Fake) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

// Calls returns how often the named method ran.
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls returns the number of calls across all methods.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// LastExecute returns the most recent execute request.
func (f *Fake) LastExecute() *backend.ExecuteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastExecute
}

// LastConvert returns the most recent convert request.
func (f *Fake) LastConvert() *backend.ConvertRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastConvert
}

// SetErr replaces one of the error fields under the fake's lock.
func (f *Fake) SetErr(target *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*target = err
}

func (f *Fake) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) ConnectSource(_ context.Context, _ core.SourceCredentials) (*core.SourceInventory, error) {
	f.count("ConnectSource")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectSourceErr != nil {
		return nil, f.ConnectSourceErr
	}
	inv := f.Source
	return &inv, nil
}

func (f *Fake) ConnectTarget(_ context.Context, _ core.TargetCredentials) (*core.TargetInventory, error) {
	f.count("ConnectTarget")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectTargetErr != nil {
		return nil, f.ConnectTargetErr
	}
	inv := f.Target
	return &inv, nil
}

func (f *Fake) Convert(ctx context.Context, req backend.ConvertRequest) (*core.ConversionResult, error) {
	f.count("Convert")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastConvert = &req
	if f.ConvertErr != nil {
		return nil, f.ConvertErr
	}
	res := f.Conversion
	return &res, nil
}

func (f *Fake) Execute(ctx context.Context, req backend.ExecuteRequest) (*core.ExecuteResult, error) {
	f.count("Execute")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastExecute = &req
	if f.ExecuteErr != nil {
		return nil, f.ExecuteErr
	}
	if req.DryRun {
		return &core.ExecuteResult{DryRun: true, OutputFile: "/tmp/migration_dry_run.json"}, nil
	}
	return &core.ExecuteResult{Results: f.Results}, nil
}

func (f *Fake) Reset(context.Context) error {
	f.count("Reset")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResetErr
}

func (f *Fake) PollStatus(context.Context) (core.StatusReport, error) {
	f.count("PollStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PollErr != nil {
		return core.StatusReport{}, f.PollErr
	}
	rep := f.Status
	rep.Logs = append([]core.LogEntry(nil), f.Status.Logs...)
	return rep, nil
}

func (f *Fake) FetchWorstSites(context.Context) ([]core.WorstSite, error) {
	f.count("FetchWorstSites")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WorstSitesErr != nil {
		return nil, f.WorstSitesErr
	}
	return append([]core.WorstSite(nil), f.Sites...), nil
}

var _ backend.Backend = (*Fake)(nil)
