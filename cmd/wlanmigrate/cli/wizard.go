package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/export"
	"github.com/wlanmigrate/wlanmigrate/internal/selection"
	"github.com/wlanmigrate/wlanmigrate/internal/session"
)

// wizardOptions is one non-interactive pass through the wizard.
type wizardOptions struct {
	Source core.SourceCredentials
	Target core.TargetCredentials

	InventoryOnly bool
	SSIDs         []core.ID
	VLANs         []core.ID
	Radius        []core.ID
	AutoVLANs     bool // only when VLANs is empty

	// Assign entries are "service=profile[:scope]". Both sides match by id or name.
	Assign       []string
	AssignAll    string
	AssignCustom string

	Execute    session.ExecuteOptions
	WorstSites bool
	ExportDir  string
}

const allIDs core.ID = "all"

// runWizard drives m from idle to done according to opts, writing progress to out.
func runWizard(ctx context.Context, m *session.Machine, opts wizardOptions, out io.Writer) error {
	inv, err := m.ConnectSource(ctx, opts.Source)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Source connected: %d SSIDs, %d VLANs, %d RADIUS servers, %d devices\n",
		len(inv.SSIDs), len(inv.VLANs), len(inv.RadiusServers), len(inv.Devices))

	if opts.InventoryOnly {
		printInventory(out, inv)
		return nil
	}

	if len(opts.SSIDs) == 0 {
		return fmt.Errorf("--ssids is required (ids, or \"all\")")
	}
	picks := []struct {
		category selection.Category
		ids      []core.ID
	}{
		{selection.SSIDs, opts.SSIDs},
		{selection.VLANs, opts.VLANs},
		{selection.Radius, opts.Radius},
	}
	for _, p := range picks {
		if err := applySelection(m, p.category, p.ids); err != nil {
			return err
		}
	}
	if opts.AutoVLANs && len(opts.VLANs) == 0 {
		n, err := m.AutoSelectVLANs()
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintf(out, "Auto-selected %d VLAN(s) referenced by the selected SSIDs\n", n)
		}
	}
	if err := m.ProceedToTarget(); err != nil {
		return err
	}

	if _, err := m.ConnectTarget(ctx, opts.Target); err != nil {
		return err
	}
	snap := m.Snapshot()
	fmt.Fprintf(out, "Target connected: %d profiles (%d assignable)\n", len(snap.Target.Profiles), len(snap.AssignableProfiles))
	fmt.Fprintf(out, "Converted %d service(s)\n", len(snap.Conversion.Services))

	if _, err := m.BeginAssignment(); err != nil {
		return err
	}
	if err := applyAssignments(m, opts); err != nil {
		return err
	}

	summary, err := m.ProceedToMigration()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Ready to migrate: %d SSIDs, %d VLANs, %d RADIUS servers, %d assignments\n",
		summary.SSIDs, summary.VLANs, summary.Radius, summary.Assignments)

	res, err := m.ExecuteMigration(ctx, opts.Execute)
	if err != nil {
		return err
	}
	if res.DryRun || opts.Execute.DryRun {
		fmt.Fprintf(out, "Dry run complete. Output: %s\n", res.OutputFile)
	} else {
		fmt.Fprintln(out, "Migration complete.")
	}
	printResults(out, res.Results)

	if opts.WorstSites && !opts.Execute.DryRun {
		sites, err := m.FetchWorstSites(ctx)
		if err != nil {
			fmt.Fprintf(out, "Worst sites unavailable: %v\n", err)
		} else {
			printWorstSites(out, sites)
		}
	}

	if opts.ExportDir != "" {
		return exportSession(out, m.Snapshot(), opts.ExportDir, time.Now())
	}
	return nil
}

func applySelection(m *session.Machine, c selection.Category, ids []core.ID) error {
	if len(ids) == 1 && ids[0] == allIDs {
		return m.SelectAll(c)
	}
	if len(ids) == 0 {
		return nil
	}
	return m.Select(c, ids...)
}

func applyAssignments(m *session.Machine, opts wizardOptions) error {
	if opts.AssignCustom != "" {
		scope, err := core.ParseRadioScope(opts.AssignCustom)
		if err != nil {
			return err
		}
		if _, err := m.AssignAllToCustom(scope); err != nil {
			return err
		}
	}
	if opts.AssignAll != "" {
		scope, err := core.ParseRadioScope(opts.AssignAll)
		if err != nil {
			return err
		}
		if _, err := m.AssignAllToAll(scope); err != nil {
			return err
		}
	}

	snap := m.Snapshot()
	for _, spec := range opts.Assign {
		svc, profile, scope, err := parseAssignment(snap, spec)
		if err != nil {
			return err
		}
		if err := m.Assign(svc, profile, scope); err != nil {
			return err
		}
	}
	return nil
}

// parseAssignment resolves "service=profile[:scope]" against the converted
// services and the Target profiles.
func parseAssignment(snap session.Snapshot, spec string) (core.ID, core.ID, core.RadioScope, error) {
	left, right, ok := strings.Cut(spec, "=")
	if !ok || left == "" || right == "" {
		return "", "", 0, fmt.Errorf("assignment %q: want service=profile[:scope]", spec)
	}
	scope := core.RadioAll
	if name, s, found := strings.Cut(right, ":"); found {
		parsed, err := core.ParseRadioScope(s)
		if err != nil {
			return "", "", 0, fmt.Errorf("assignment %q: %w", spec, err)
		}
		right, scope = name, parsed
	}

	var svcMatches []core.ID
	if snap.Conversion != nil {
		for _, s := range snap.Conversion.Services {
			if string(s.ID) == left || s.Name == left || s.SSID == left {
				svcMatches = append(svcMatches, s.ID)
			}
		}
	}
	svc, err := single("service", left, svcMatches)
	if err != nil {
		return "", "", 0, err
	}

	var profileMatches []core.ID
	if snap.Target != nil {
		for _, p := range snap.Target.Profiles {
			if string(p.ID) == right || p.Name == right {
				profileMatches = append(profileMatches, p.ID)
			}
		}
	}
	profile, err := single("profile", right, profileMatches)
	if err != nil {
		return "", "", 0, err
	}
	return svc, profile, scope, nil
}

func single(what, ref string, matches []core.ID) (core.ID, error) {
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s matches %q", what, ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%s %q is ambiguous (%d matches); use the id", what, ref, len(matches))
}

func printInventory(out io.Writer, inv *core.SourceInventory) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tNAME\tDETAIL")
	for _, s := range inv.SSIDs {
		tags := make([]string, 0, 2)
		for _, t := range s.VLANTags() {
			tags = append(tags, fmt.Sprint(t))
		}
		fmt.Fprintf(w, "ssid\t%s\t%s\tvlans=%s\n", s.ID, s.Name, strings.Join(tags, ","))
	}
	for _, v := range inv.VLANs {
		fmt.Fprintf(w, "vlan\t%s\t%s\ttag=%d\n", v.ID, v.Name, v.VLANID)
	}
	for _, r := range inv.RadiusServers {
		fmt.Fprintf(w, "radius\t%s\t%s\t%s\n", r.ID, r.Name, r.IP)
	}
	for _, d := range inv.Devices {
		fmt.Fprintf(w, "device\t%s\t%s\t%s\n", d.Serial, d.Name, d.Location)
	}
	w.Flush()
}

func printResults(out io.Writer, results core.MigrationResults) {
	lines := results.Lines()
	if len(lines) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tRESULT")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\n", l.Label, l.Value)
	}
	w.Flush()
}

func printWorstSites(out io.Writer, sites []core.WorstSite) {
	if len(sites) == 0 {
		fmt.Fprintln(out, "No problem sites reported.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tERRORS\tWARNINGS\tDEVICES\tSCORE")
	for _, s := range sites {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\n", s.Name, s.ErrorCount, s.WarningCount, s.DeviceCount, s.Score)
	}
	w.Flush()
}

func exportSession(out io.Writer, snap session.Snapshot, dir string, now time.Time) error {
	path, err := export.SaveFile(dir, export.FileName(snap.SessionUUID, "xlsx", now), func(w io.Writer) error {
		return export.WriteWorkbook(w, snap)
	})
	if err != nil {
		return fmt.Errorf("exporting workbook: %w", err)
	}
	fmt.Fprintf(out, "Workbook: %s\n", path)

	if snap.Result == nil {
		return nil
	}
	path, err = export.SaveFile(dir, export.FileName(snap.SessionUUID, "json", now), func(w io.Writer) error {
		return export.WriteResultsJSON(w, snap, now)
	})
	if err != nil {
		return fmt.Errorf("exporting results: %w", err)
	}
	fmt.Fprintf(out, "Results: %s\n", path)
	return nil
}
