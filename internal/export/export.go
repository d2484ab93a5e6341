// Package export writes session data out of the wizard: the Source inventory
// with the user's selection and assignments as an XLSX workbook, and the
// migration outcome as a JSON document.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/selection"
	"github.com/wlanmigrate/wlanmigrate/internal/session"
)

// Sheet names, in workbook order.
const (
	SheetSSIDs       = "SSIDs"
	SheetVLANs       = "VLANs"
	SheetRadius      = "RADIUS"
	SheetDevices     = "Devices"
	SheetAssignments = "Assignments"
	SheetResults     = "Results"
)

type sheet struct {
	name   string
	header []string
	rows   [][]any
}

func optionalInt(p *int) any {
	if p == nil {
		return ""
	}
	return *p
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func sheets(snap session.Snapshot) []sheet {
	selected := func(c selection.Category, id core.ID) string {
		return yesNo(slices.Contains(snap.Selection[c], id))
	}

	var out []sheet
	if inv := snap.Source; inv != nil {
		ssids := sheet{name: SheetSSIDs, header: []string{"ID", "Name", "VLAN", "Default VLAN", "Selected"}}
		for _, s := range inv.SSIDs {
			ssids.rows = append(ssids.rows, []any{string(s.ID), s.Name, optionalInt(s.VLANID), optionalInt(s.DefaultVLANID), selected(selection.SSIDs, s.ID)})
		}
		vlans := sheet{name: SheetVLANs, header: []string{"ID", "Name", "VLAN ID", "Selected"}}
		for _, v := range inv.VLANs {
			vlans.rows = append(vlans.rows, []any{string(v.ID), v.Name, v.VLANID, selected(selection.VLANs, v.ID)})
		}
		radius := sheet{name: SheetRadius, header: []string{"ID", "Name", "IP", "Selected"}}
		for _, r := range inv.RadiusServers {
			radius.rows = append(radius.rows, []any{string(r.ID), r.Name, r.IP, selected(selection.Radius, r.ID)})
		}
		devices := sheet{name: SheetDevices, header: []string{"Serial", "Name", "Location"}}
		for _, d := range inv.Devices {
			devices.rows = append(devices.rows, []any{string(d.Serial), d.Name, d.Location})
		}
		out = append(out, ssids, vlans, radius, devices)
	}

	if len(snap.AssignmentOrder) > 0 {
		names := map[core.ID]string{}
		if snap.Conversion != nil {
			for _, s := range snap.Conversion.Services {
				names[s.ID] = s.Name
			}
		}
		assigned := sheet{name: SheetAssignments, header: []string{"Service ID", "Service", "Profile ID", "Profile", "Radios"}}
		for _, svc := range snap.AssignmentOrder {
			for _, a := range snap.Assignments[svc] {
				assigned.rows = append(assigned.rows, []any{string(svc), names[svc], string(a.ProfileID), a.ProfileName, a.Scope.String()})
			}
		}
		out = append(out, assigned)
	}

	if snap.Result != nil {
		results := sheet{name: SheetResults, header: []string{"Category", "Result"}}
		if snap.LastRunDryRun {
			results.rows = append(results.rows, []any{"Dry run output", snap.Result.OutputFile})
		}
		for _, line := range snap.Result.Results.Lines() {
			results.rows = append(results.rows, []any{line.Label, line.Value})
		}
		out = append(out, results)
	}
	return out
}

// WriteWorkbook writes the snapshot as an XLSX workbook. Sheets without data
// are omitted; an empty session yields an error.
func WriteWorkbook(w io.Writer, snap session.Snapshot) error {
	all := sheets(snap)
	if len(all) == 0 {
		return fmt.Errorf("nothing to export: connect to the source first")
	}

	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for i, sh := range all {
		if i == 0 {
			if err := book.SetSheetName("Sheet1", sh.name); err != nil {
				return fmt.Errorf("naming sheet: %w", err)
			}
		} else if _, err := book.NewSheet(sh.name); err != nil {
			return fmt.Errorf("adding sheet %s: %w", sh.name, err)
		}

		header := make([]any, len(sh.header))
		for j, h := range sh.header {
			header[j] = h
		}
		if err := book.SetSheetRow(sh.name, "A1", &header); err != nil {
			return fmt.Errorf("writing %s header: %w", sh.name, err)
		}
		last, _ := excelize.CoordinatesToCellName(len(sh.header), 1)
		if err := book.SetCellStyle(sh.name, "A1", last, bold); err != nil {
			return fmt.Errorf("styling %s header: %w", sh.name, err)
		}
		for r, row := range sh.rows {
			if err := book.SetSheetRow(sh.name, "A"+strconv.Itoa(r+2), &row); err != nil {
				return fmt.Errorf("writing %s row %d: %w", sh.name, r+2, err)
			}
		}
	}
	book.SetActiveSheet(0)

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// ResultsDocument is the JSON export of a finished migration.
type ResultsDocument struct {
	SessionUUID string                `json:"session_uuid"`
	ExportedAt  time.Time             `json:"exported_at"`
	DryRun      bool                  `json:"dry_run"`
	OutputFile  string                `json:"output_file,omitempty"`
	Summary     session.Summary       `json:"summary"`
	Results     core.MigrationResults `json:"results"`
	Counts      map[string]string     `json:"counts"`
	WorstSites  []core.WorstSite      `json:"worst_sites,omitempty"`
}

// WriteResultsJSON writes the execution outcome of the snapshot. Category
// payloads are copied verbatim next to their "posted/total" rendering.
func WriteResultsJSON(w io.Writer, snap session.Snapshot, now time.Time) error {
	if snap.Result == nil {
		return fmt.Errorf("nothing to export: no migration has run in this session")
	}
	doc := ResultsDocument{
		SessionUUID: snap.SessionUUID,
		ExportedAt:  now.UTC(),
		DryRun:      snap.LastRunDryRun,
		OutputFile:  snap.Result.OutputFile,
		Summary:     snap.Summary,
		Results:     snap.Result.Results,
		Counts:      make(map[string]string),
		WorstSites:  snap.WorstSites,
	}
	for _, line := range snap.Result.Results.Lines() {
		doc.Counts[line.Label] = line.Value
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}

// FileName returns the export file name for a session and extension.
func FileName(sessionUUID, ext string, now time.Time) string {
	short := sessionUUID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("wlanmigrate-%s-%s.%s", short, now.UTC().Format("20060102-150405"), ext)
}

// SaveFile creates dir/name and runs write against it. A failed write removes the partial file.
func SaveFile(dir, name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}
