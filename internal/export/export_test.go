package export

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/wlanmigrate/wlanmigrate/internal/assignment"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
	"github.com/wlanmigrate/wlanmigrate/internal/selection"
	"github.com/wlanmigrate/wlanmigrate/internal/session"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleSnapshot() session.Snapshot {
	ten := 10
	return session.Snapshot{
		SessionUUID: "0f9c2b4e-1111-2222-3333-444455556666",
		Step:        core.StepDone,
		Source: &core.SourceInventory{
			SSIDs:         []core.SSID{{ID: "101", Name: "corp", VLANID: &ten}, {ID: "102", Name: "guest"}},
			VLANs:         []core.VLAN{{ID: "v1", Name: "corp", VLANID: 10}},
			RadiusServers: []core.RadiusServer{{ID: "r1", Name: "nps", IP: "10.0.0.10"}},
			Devices:       []core.Device{{Serial: "AP-1", Name: "lobby", Location: "HQ/1F"}},
		},
		Selection: map[selection.Category][]core.ID{
			selection.SSIDs: {"101"},
			selection.VLANs: {"v1"},
		},
		Conversion: &core.ConversionResult{Services: []core.ConvertedService{{ID: "svc1", Name: "corp"}}},
		Assignments: map[core.ID][]assignment.Assignment{
			"svc1": {{ServiceID: "svc1", ProfileID: "profA", ProfileName: "Campus", Scope: core.Radio2}},
		},
		AssignmentOrder: []core.ID{"svc1"},
		Summary:         session.Summary{SSIDs: 1, VLANs: 1, Assignments: 1},
		Result: &core.ExecuteResult{Results: core.MigrationResults{
			Services:     json.RawMessage(`"1/1 posted successfully"`),
			Topologies:   json.RawMessage(`{"posted":2,"total":3}`),
			RateLimiters: json.RawMessage(`null`),
		}},
		WorstSites: []core.WorstSite{{Name: "HQ", ErrorCount: 2}},
	}
}

func openBook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	t.Cleanup(func() { book.Close() })
	return book
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}
	book := openBook(t, buf.Bytes())

	want := []string{SheetSSIDs, SheetVLANs, SheetRadius, SheetDevices, SheetAssignments, SheetResults}
	if got := book.GetSheetList(); !slices.Equal(got, want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}

	rows, err := book.GetRows(SheetSSIDs)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("SSID rows: %v", rows)
	}
	if !slices.Equal(rows[1], []string{"101", "corp", "10", "", "yes"}) {
		t.Errorf("selected SSID row: %v", rows[1])
	}
	if rows[2][4] != "no" {
		t.Errorf("unselected SSID row: %v", rows[2])
	}

	rows, _ = book.GetRows(SheetRadius)
	if rows[1][3] != "no" {
		t.Errorf("radius row: %v", rows[1])
	}

	rows, _ = book.GetRows(SheetAssignments)
	if !slices.Equal(rows[1], []string{"svc1", "corp", "profA", "Campus", "radio2"}) {
		t.Errorf("assignment row: %v", rows[1])
	}

	rows, _ = book.GetRows(SheetResults)
	got := map[string]string{}
	for _, r := range rows[1:] {
		got[r[0]] = r[1]
	}
	if got["Services"] != "1/1" || got["Topologies"] != "2/3" {
		t.Errorf("results sheet: %v", got)
	}
	if _, ok := got["Rate Limiters"]; ok {
		t.Error("null categories should be skipped")
	}
}

func TestWriteWorkbookSourceOnly(t *testing.T) {
	snap := sampleSnapshot()
	snap.Result = nil
	snap.Assignments = nil
	snap.AssignmentOrder = nil

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, snap); err != nil {
		t.Fatal(err)
	}
	if got := openBook(t, buf.Bytes()).GetSheetList(); len(got) != 4 {
		t.Errorf("sheets = %v", got)
	}

	if err := WriteWorkbook(&buf, session.Snapshot{}); err == nil {
		t.Error("an empty session should not export")
	}
}

func TestWriteResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResultsJSON(&buf, sampleSnapshot(), now); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		SessionUUID string                     `json:"session_uuid"`
		ExportedAt  time.Time                  `json:"exported_at"`
		Results     map[string]json.RawMessage `json:"results"`
		Counts      map[string]string          `json:"counts"`
		WorstSites  []core.WorstSite           `json:"worst_sites"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decoding export: %v\n%s", err, buf.String())
	}
	if !doc.ExportedAt.Equal(now) || doc.SessionUUID == "" {
		t.Errorf("header: %+v", doc)
	}
	if string(doc.Results["services"]) != `"1/1 posted successfully"` {
		t.Errorf("payload not verbatim: %s", doc.Results["services"])
	}
	if doc.Counts["Topologies"] != "2/3" || len(doc.WorstSites) != 1 {
		t.Errorf("counts/sites: %+v %+v", doc.Counts, doc.WorstSites)
	}

	snap := sampleSnapshot()
	snap.Result = nil
	if err := WriteResultsJSON(&buf, snap, now); err == nil {
		t.Error("expected an error without a result")
	}
}

func TestSaveFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	name := FileName("0f9c2b4e-1111", "json", now)
	if name != "wlanmigrate-0f9c2b4e-20260314-093000.json" {
		t.Errorf("FileName = %s", name)
	}

	path, err := SaveFile(dir, name, func(w io.Writer) error {
		return WriteResultsJSON(w, sampleSnapshot(), now)
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "session_uuid") {
		t.Errorf("saved file: %v %s", err, data)
	}

	if _, err := SaveFile(dir, name, func(io.Writer) error { return nil }); err == nil {
		t.Error("existing export must not be overwritten")
	}

	failName := FileName("x", "xlsx", now)
	if _, err := SaveFile(dir, failName, func(w io.Writer) error {
		return WriteWorkbook(w, session.Snapshot{})
	}); err == nil {
		t.Error("expected write failure")
	}
	if _, err := os.Stat(filepath.Join(dir, failName)); !os.IsNotExist(err) {
		t.Error("partial export left behind")
	}
}
