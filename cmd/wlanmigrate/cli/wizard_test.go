package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wlanmigrate/wlanmigrate/internal/backend/backendtest"
	"github.com/wlanmigrate/wlanmigrate/internal/config"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/logpoll"
	"github.com/wlanmigrate/wlanmigrate/internal/session"
	"github.com/wlanmigrate/wlanmigrate/internal/vault"
)

func newMachine(t *testing.T, fake *backendtest.Fake, confirmer session.Confirmer) *session.Machine {
	t.Helper()
	v, err := vault.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { v.Close() })
	m, err := session.New(session.Config{Backend: fake, Vault: v, Confirmer: confirmer, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func approve(context.Context, session.Summary, session.ExecuteOptions) (bool, error) { return true, nil }

func baseOptions() wizardOptions {
	return wizardOptions{
		Source:    core.SourceCredentials{Username: "netadmin", Password: "pw", Region: "EU"},
		Target:    core.TargetCredentials{ControllerURL: "https://edge.example", Username: "admin", Password: "pw"},
		SSIDs:     []core.ID{"s1"},
		AutoVLANs: true,
		Execute:   session.ExecuteOptions{SSIDStatus: core.SSIDEnabled},
	}
}

func TestRunWizardDryRun(t *testing.T) {
	fake := backendtest.New()
	m := newMachine(t, fake, nil)

	opts := baseOptions()
	opts.AssignCustom = "all"
	opts.Execute.DryRun = true

	var out bytes.Buffer
	if err := runWizard(context.Background(), m, opts, &out); err != nil {
		t.Fatalf("runWizard: %v\n%s", err, out.String())
	}
	if m.Step() != core.StepDone {
		t.Errorf("step = %s", m.Step())
	}

	conv := fake.LastConvert()
	if len(conv.SelectedVLANs) != 2 {
		t.Errorf("auto VLAN selection not applied: %v", conv.SelectedVLANs)
	}
	exec := fake.LastExecute()
	if !exec.DryRun || exec.ProfileAssignments.CountAll() != 4 {
		t.Errorf("execute request: dry=%v assignments=%d", exec.DryRun, exec.ProfileAssignments.CountAll())
	}
	for _, want := range []string{"Auto-selected 2 VLAN(s)", "Converted 2 service(s)", "Dry run complete"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunWizardRealRunExports(t *testing.T) {
	fake := backendtest.New()
	fake.Sites = []core.WorstSite{{Name: "HQ", ErrorCount: 3}}
	m := newMachine(t, fake, session.ConfirmFunc(approve))

	opts := baseOptions()
	opts.Assign = []string{"corp=Campus:radio2", "svc2=profB"}
	opts.WorstSites = true
	opts.ExportDir = filepath.Join(t.TempDir(), "out")

	var out bytes.Buffer
	if err := runWizard(context.Background(), m, opts, &out); err != nil {
		t.Fatalf("runWizard: %v\n%s", err, out.String())
	}

	graph := fake.LastExecute().ProfileAssignments
	if a, ok := graph.Get("svc1", "profA"); !ok || a.Scope != core.Radio2 {
		t.Errorf("named assignment not applied: %+v %v", a, ok)
	}
	if _, ok := graph.Get("svc2", "profB"); !ok {
		t.Error("id assignment not applied")
	}
	if !strings.Contains(out.String(), "HQ") {
		t.Errorf("worst sites not printed:\n%s", out.String())
	}

	entries, err := os.ReadDir(opts.ExportDir)
	if err != nil {
		t.Fatal(err)
	}
	var exts []string
	for _, e := range entries {
		exts = append(exts, filepath.Ext(e.Name()))
	}
	if len(exts) != 2 {
		t.Errorf("exported files: %v", exts)
	}
}

func TestRunWizardDeclinedConfirmation(t *testing.T) {
	fake := backendtest.New()
	var prompt bytes.Buffer
	m := newMachine(t, fake, promptConfirmer(strings.NewReader("n\n"), &prompt, "https://edge.example"))

	err := runWizard(context.Background(), m, baseOptions(), &bytes.Buffer{})
	if !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if fake.Calls("Execute") != 0 {
		t.Error("declined migration reached the backend")
	}
	if !strings.Contains(prompt.String(), "https://edge.example") {
		t.Errorf("prompt: %q", prompt.String())
	}
}

func TestRunWizardInventoryOnly(t *testing.T) {
	fake := backendtest.New()
	m := newMachine(t, fake, nil)

	var out bytes.Buffer
	if err := runWizard(context.Background(), m, wizardOptions{Source: baseOptions().Source, InventoryOnly: true}, &out); err != nil {
		t.Fatal(err)
	}
	if m.Step() != core.StepSourceConnected || fake.TotalCalls() != 1 {
		t.Errorf("step %s after %d calls", m.Step(), fake.TotalCalls())
	}
	if !strings.Contains(out.String(), "guest") || !strings.Contains(out.String(), "tag=30") {
		t.Errorf("inventory not printed:\n%s", out.String())
	}
}

func TestRunWizardRequiresSSIDs(t *testing.T) {
	m := newMachine(t, backendtest.New(), nil)
	opts := baseOptions()
	opts.SSIDs = nil
	if err := runWizard(context.Background(), m, opts, &bytes.Buffer{}); err == nil {
		t.Error("expected an error without SSIDs")
	}
}

func TestParseAssignment(t *testing.T) {
	fake := backendtest.New()
	fake.Target.Profiles = append(fake.Target.Profiles, core.Profile{ID: "profE", Name: "Campus"})
	m := newMachine(t, fake, nil)
	opts := baseOptions()
	opts.Execute.DryRun = true
	if err := runWizard(context.Background(), m, opts, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	snap := m.Snapshot()

	cases := []struct {
		spec        string
		wantSvc     core.ID
		wantProfile core.ID
		wantScope   core.RadioScope
		wantErr     bool
	}{
		{"svc1=profA", "svc1", "profA", core.RadioAll, false},
		{"guest=Branch:radio3", "svc2", "profB", core.Radio3, false},
		{"corp=profD:1", "svc1", "profD", core.Radio1, false},
		{"corp=Campus", "", "", 0, true},
		{"nope=profA", "", "", 0, true},
		{"svc1=profA:radio9", "", "", 0, true},
		{"svc1", "", "", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.spec, func(t *testing.T) {
			svc, profile, scope, err := parseAssignment(snap, tc.spec)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %s %s %s", svc, profile, scope)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if svc != tc.wantSvc || profile != tc.wantProfile || scope != tc.wantScope {
				t.Errorf("got %s %s %s", svc, profile, scope)
			}
		})
	}
}

func TestPromptConfirmer(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"yes", true},
		{"\n", false},
		{"n\n", false},
		{"", false},
	}
	for _, tc := range cases {
		c := promptConfirmer(strings.NewReader(tc.input), &bytes.Buffer{}, "ctrl")
		got, err := c.ConfirmMigration(context.Background(), session.Summary{}, session.ExecuteOptions{})
		if err != nil || got != tc.want {
			t.Errorf("input %q: got %v, %v", tc.input, got, err)
		}
	}
}

func TestRunWithPollerFlushesLogs(t *testing.T) {
	fake := backendtest.New()
	fake.Status.Logs = []core.LogEntry{{Level: "INFO", Message: "posting services"}}
	m := newMachine(t, fake, nil)

	var logs bytes.Buffer
	poller, err := logpoll.New(logpoll.Config{
		Source:   fake,
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
		Deliver:  printBackendLogs(&logs),
	})
	if err != nil {
		t.Fatal(err)
	}

	opts := baseOptions()
	opts.Execute.DryRun = true
	if err := runWithPoller(context.Background(), m, poller, opts, &bytes.Buffer{}, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	if got := logs.String(); got != "  [backend info] posting services\n" {
		t.Errorf("logs = %q", got)
	}
	if poller.Cursor() != 1 {
		t.Errorf("cursor = %d", poller.Cursor())
	}
}

func TestRunWithPollerWarnsOnFailedStep(t *testing.T) {
	fake := backendtest.New()
	fake.ConnectTargetErr = core.BackendFailure("connect_edge", "login rejected")
	m := newMachine(t, fake, nil)

	poller, err := logpoll.New(logpoll.Config{Source: fake, Interval: time.Hour, Logger: zerolog.Nop(), Deliver: func([]core.LogEntry) {}})
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	err = runWithPoller(context.Background(), m, poller, baseOptions(), &bytes.Buffer{}, zerolog.New(&logs))
	if !core.IsKind(err, core.KindBackend) {
		t.Fatalf("expected a backend error, got %v", err)
	}
	if m.Step() != core.StepTargetConnectingError {
		t.Errorf("step = %s", m.Step())
	}
	if !strings.Contains(logs.String(), `"step":"target_connecting_error"`) || !strings.Contains(logs.String(), "failed backend call") {
		t.Errorf("log = %s", logs.String())
	}
}

func TestSetConfigField(t *testing.T) {
	base := config.DefaultGlobalConfig()

	cases := []struct {
		key, value string
		check      func(config.GlobalConfig) bool
		wantErr    bool
	}{
		{"transport", "grpc", func(c config.GlobalConfig) bool { return c.Transport == config.TransportGRPC }, false},
		{"poll_interval_ms", "250", func(c config.GlobalConfig) bool { return c.PollIntervalMS == 250 }, false},
		{"confirm_migrate", "false", func(c config.GlobalConfig) bool { return !c.ConfirmMigrate }, false},
		{"poll_interval_ms", "fast", nil, true},
		{"poll_interval_ms", "10", nil, true},
		{"transport", "carrier-pigeon", nil, true},
		{"no_such_key", "x", nil, true},
		{"instance_uuid", "x", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			got, err := setConfigField(base, tc.key, tc.value)
			if tc.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !tc.check(got) {
				t.Errorf("%s not applied: %+v", tc.key, got)
			}
		})
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs([]string{"101, 102", "", "all"})
	want := []core.ID{"101", "102", "all"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestExplicitVLANsSkipAutoSelection(t *testing.T) {
	fake := backendtest.New()
	m := newMachine(t, fake, nil)

	opts := baseOptions()
	opts.VLANs = []core.ID{"v3"}
	opts.Execute.DryRun = true
	if err := runWizard(context.Background(), m, opts, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if got := fake.LastConvert().SelectedVLANs; len(got) != 1 || got[0] != "v3" {
		t.Errorf("selected VLANs = %v", got)
	}
}
