package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wlanmigrate/wlanmigrate/internal/widgets"
)

func TestPrintWidgetsDashboardLine(t *testing.T) {
	p := widgets.Default()
	p.Order = []string{"worst-sites", "migration-summary", "object-results", "profile-assignments",
		"error-breakdown", "device-coverage", "migration-log", "dry-run-output"}
	for _, id := range p.Order[2:] {
		p.Visibility[id] = false
	}

	var out bytes.Buffer
	printWidgets(&out, p)
	if !strings.Contains(out.String(), "Dashboard: Worst Sites | Migration Summary\n") {
		t.Errorf("output:\n%s", out.String())
	}

	p.Visibility["worst-sites"], p.Visibility["migration-summary"] = false, false
	out.Reset()
	printWidgets(&out, p)
	if !strings.Contains(out.String(), "all widgets hidden") {
		t.Errorf("output:\n%s", out.String())
	}
}
