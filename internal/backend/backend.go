// Package backend defines the migration backend collaborator and its clients.
// The backend owns configuration translation and every call to the Source and
// Target systems; the wizard only sequences requests against it.
package backend

import (
	"context"

	"github.com/wlanmigrate/wlanmigrate/internal/assignment"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Backend is the request/response contract of the migration backend. Every
// method either succeeds with a payload or fails with a *core.Error of kind
// backend (the collaborator answered with a failure) or transport.
type Backend interface {
	ConnectSource(ctx context.Context, creds core.SourceCredentials) (*core.SourceInventory, error)
	ConnectTarget(ctx context.Context, creds core.TargetCredentials) (*core.TargetInventory, error)
	Convert(ctx context.Context, req ConvertRequest) (*core.ConversionResult, error)
	Execute(ctx context.Context, req ExecuteRequest) (*core.ExecuteResult, error)
	Reset(ctx context.Context) error
	PollStatus(ctx context.Context) (core.StatusReport, error)
	FetchWorstSites(ctx context.Context) ([]core.WorstSite, error)
}

// ConvertRequest names the selected Source resources to translate.
type ConvertRequest struct {
	SelectedSSIDs  []core.ID `json:"selected_ssids"`
	SelectedVLANs  []core.ID `json:"selected_vlans"`
	SelectedRadius []core.ID `json:"selected_radius"`
}

// ExecuteRequest asks the backend to push (or, on a dry run, only render) the
// converted configuration and apply the profile assignments.
type ExecuteRequest struct {
	ControllerURL      string            `json:"controller_url"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	DryRun             bool              `json:"dry_run"`
	SSIDStatus         core.SSIDStatus   `json:"ssid_status"`
	ProfileAssignments *assignment.Graph `json:"profile_assignments"`
}
