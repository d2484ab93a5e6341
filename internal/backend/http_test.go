package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/wlanmigrate/wlanmigrate/internal/assignment"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// fakeFlask mimics the migration backend: a form login that sets a session
// cookie, and JSON endpoints that redirect to /login without it.
type fakeFlask struct {
	mu       sync.Mutex
	bodies   map[string]json.RawMessage
	failNext map[string]string
}

func newFakeFlask() *fakeFlask {
	return &fakeFlask{bodies: map[string]json.RawMessage{}, failNext: map[string]string{}}
}

func (f *fakeFlask) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("username") == "admin" && r.PostForm.Get("password") == "pw" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>Invalid XIQ credentials</html>"))
	})

	api := func(path string, data any) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			f.mu.Lock()
			if r.Body != nil {
				var raw json.RawMessage
				json.NewDecoder(r.Body).Decode(&raw)
				f.bodies[path] = raw
			}
			msg, fail := f.failNext[path]
			delete(f.failNext, path)
			f.mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
		})
	}

	api("/api/connect_xiq", map[string]any{
		"ssids":          []any{map[string]any{"id": 101, "name": "corp", "vlan_id": 10}},
		"vlans":          []any{map[string]any{"id": 7, "name": "corp", "vlan_id": 10}},
		"radius_servers": []any{map[string]any{"id": "r1", "name": "nps", "ip": "10.0.0.5"}},
		"devices":        []any{map[string]any{"serial": "AP-1", "name": "lobby"}},
	})
	api("/api/connect_edge", map[string]any{
		"profiles": []any{map[string]any{"id": "p-1", "name": "Campus", "platform": "AP3000", "is_custom": true}},
	})
	api("/api/convert", map[string]any{
		"summary":  map[string]int{"services": 1, "topologies": 1},
		"services": []any{map[string]any{"id": "svc-1", "name": "corp", "ssid": "corp"}},
	})
	api("/api/migrate", map[string]any{
		"results": map[string]any{"services": "1/1 posted successfully", "profile_assignments": 2},
	})
	api("/api/reset", nil)
	api("/api/status", map[string]any{
		"status": "running", "progress": 40, "current_step": "Converting",
		"logs": []any{map[string]any{"timestamp": "t", "level": "info", "message": "hello"}},
	})
	api("/api/worst_sites", map[string]any{
		"sites": []any{map[string]any{"name": "HQ", "error_count": 3, "score": 7.5}},
	})
	return mux
}

func (f *fakeFlask) body(path string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func setup(t *testing.T) (*HTTPClient, *fakeFlask) {
	t.Helper()
	fake := newFakeFlask()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c, fake
}

var goodCreds = core.SourceCredentials{Username: "admin", Password: "pw", Region: "Global"}

func TestConnectSourceLogsInAndDecodesInventory(t *testing.T) {
	c, _ := setup(t)

	inv, err := c.ConnectSource(context.Background(), goodCreds)
	if err != nil {
		t.Fatalf("ConnectSource: %v", err)
	}
	if len(inv.SSIDs) != 1 || inv.SSIDs[0].ID != "101" || *inv.SSIDs[0].VLANID != 10 {
		t.Errorf("unexpected SSIDs: %+v", inv.SSIDs)
	}
	if inv.VLANs[0].ID != "7" || inv.RadiusServers[0].IP != "10.0.0.5" || inv.Devices[0].Serial != "AP-1" {
		t.Errorf("unexpected inventory: %+v", inv)
	}
}

func TestLoginRejected(t *testing.T) {
	c, _ := setup(t)

	_, err := c.ConnectSource(context.Background(), core.SourceCredentials{Username: "admin", Password: "wrong"})
	if !core.IsKind(err, core.KindBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestAPIWithoutSessionIsBackendFailure(t *testing.T) {
	c, _ := setup(t)

	_, err := c.PollStatus(context.Background())
	if !core.IsKind(err, core.KindBackend) || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not-logged-in backend error, got %v", err)
	}
}

func TestFailureEnvelopeCarriesMessageVerbatim(t *testing.T) {
	c, fake := setup(t)
	ctx := context.Background()
	if err := c.Login(ctx, goodCreds); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	fake.failNext["/api/connect_edge"] = "Authentication failed: 401"
	fake.mu.Unlock()
	_, err := c.ConnectTarget(ctx, core.TargetCredentials{ControllerURL: "https://edge", Username: "u", Password: "p"})
	if !core.IsKind(err, core.KindBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Authentication failed: 401") {
		t.Errorf("message not preserved: %v", err)
	}
}

func TestUnreachableBackendIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.PollStatus(context.Background())
	if !core.IsKind(err, core.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExecuteSendsWireShape(t *testing.T) {
	c, fake := setup(t)
	ctx := context.Background()
	c.Login(ctx, goodCreds)

	g := assignment.NewGraph()
	g.Set("svc-1", "p-1", "Campus", core.Radio2)

	res, err := c.Execute(ctx, ExecuteRequest{
		ControllerURL:      "https://edge",
		Username:           "u",
		Password:           "p",
		DryRun:             false,
		SSIDStatus:         core.SSIDEnabled,
		ProfileAssignments: g,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := core.FormatCount(res.Results.Services); got != "1/1" {
		t.Errorf("services = %q", got)
	}

	var sent struct {
		ControllerURL      string                       `json:"controller_url"`
		DryRun             bool                         `json:"dry_run"`
		SSIDStatus         string                       `json:"ssid_status"`
		ProfileAssignments map[string][]json.RawMessage `json:"profile_assignments"`
	}
	if err := json.Unmarshal(fake.body("/api/migrate"), &sent); err != nil {
		t.Fatal(err)
	}
	if sent.ControllerURL != "https://edge" || sent.SSIDStatus != "enabled" || len(sent.ProfileAssignments["svc-1"]) != 1 {
		t.Errorf("unexpected request body: %s", fake.body("/api/migrate"))
	}
}

func TestConvertStatusResetAndWorstSites(t *testing.T) {
	c, fake := setup(t)
	ctx := context.Background()
	c.Login(ctx, goodCreds)

	res, err := c.Convert(ctx, ConvertRequest{SelectedSSIDs: []core.ID{"101"}, SelectedVLANs: []core.ID{}, SelectedRadius: []core.ID{}})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(res.Services) != 1 || res.Summary.Services != 1 {
		t.Errorf("unexpected conversion: %+v", res)
	}
	if !strings.Contains(string(fake.body("/api/convert")), `"selected_ssids":[101]`) {
		t.Errorf("numeric ids should be sent back as numbers: %s", fake.body("/api/convert"))
	}

	rep, err := c.PollStatus(ctx)
	if err != nil || len(rep.Logs) != 1 || rep.Progress != 40 {
		t.Errorf("PollStatus = %+v, %v", rep, err)
	}

	sites, err := c.FetchWorstSites(ctx)
	if err != nil || len(sites) != 1 || sites[0].Name != "HQ" {
		t.Errorf("FetchWorstSites = %+v, %v", sites, err)
	}

	if err := c.Reset(ctx); err != nil {
		t.Errorf("Reset: %v", err)
	}
}

func TestNewHTTPClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewHTTPClient("localhost:5000/api"); err == nil {
		t.Error("expected error for URL without scheme")
	}
}
