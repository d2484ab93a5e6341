// service.go implements the relay service layer: it forwards each request to
// the wrapped backend and records what happened.
package grpcapi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wlanmigrate/wlanmigrate/internal/audit"
	"github.com/wlanmigrate/wlanmigrate/internal/backend"
	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// Service forwards relay calls to a backend. It never logs credentials; only
// request shapes and outcomes.
type Service struct {
	backend backend.Backend
	audit   *audit.Logger
	logger  zerolog.Logger

	calls    atomic.Int64
	failures atomic.Int64
}

// NewService creates a relay service. auditLogger may be nil.
func NewService(b backend.Backend, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		backend: b,
		audit:   auditLogger,
		logger:  logger.With().Str("layer", "relay").Logger(),
	}
}

// Stats is a snapshot of relay counters.
type Stats struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
}

// Stats returns call counters since start.
func (s *Service) Stats() Stats {
	return Stats{Calls: s.calls.Load(), Failures: s.failures.Load()}
}

func (s *Service) observe(method string, start time.Time, err error) {
	s.calls.Add(1)
	ev := s.logger.Debug()
	if err != nil {
		s.failures.Add(1)
		ev = s.logger.Warn().Err(err).Str("kind", string(core.KindOf(err)))
	}
	ev.Str("method", method).Dur("elapsed", time.Since(start)).Msg("relay call")
}

func (s *Service) record(event audit.EventType, detail any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(event, "relay", "", "", detail); err != nil {
		s.logger.Warn().Err(err).Msg("audit write failed")
	}
}

func (s *Service) ConnectSource(ctx context.Context, creds core.SourceCredentials) (*core.SourceInventory, error) {
	start := time.Now()
	inv, err := s.backend.ConnectSource(ctx, creds)
	s.observe(backend.MethodConnectSource, start, err)
	if err != nil {
		s.record(audit.EventConnectFailed, map[string]string{"side": "source", "region": creds.Region})
		return nil, err
	}
	s.record(audit.EventSourceConnected, map[string]int{"ssids": len(inv.SSIDs), "vlans": len(inv.VLANs)})
	return inv, nil
}

func (s *Service) ConnectTarget(ctx context.Context, creds core.TargetCredentials) (*core.TargetInventory, error) {
	start := time.Now()
	inv, err := s.backend.ConnectTarget(ctx, creds)
	s.observe(backend.MethodConnectTarget, start, err)
	if err != nil {
		s.record(audit.EventConnectFailed, map[string]string{"side": "target", "controller_url": creds.ControllerURL})
		return nil, err
	}
	s.record(audit.EventTargetConnected, map[string]any{"controller_url": creds.ControllerURL, "profiles": len(inv.Profiles)})
	return inv, nil
}

func (s *Service) Convert(ctx context.Context, req backend.ConvertRequest) (*core.ConversionResult, error) {
	start := time.Now()
	res, err := s.backend.Convert(ctx, req)
	s.observe(backend.MethodConvert, start, err)
	if err == nil {
		s.record(audit.EventConverted, map[string]int{"services": len(res.Services)})
	}
	return res, err
}

func (s *Service) Execute(ctx context.Context, req backend.ExecuteRequest) (*core.ExecuteResult, error) {
	start := time.Now()
	s.record(audit.EventMigrationStarted, map[string]any{"dry_run": req.DryRun, "controller_url": req.ControllerURL})
	res, err := s.backend.Execute(ctx, req)
	s.observe(backend.MethodExecute, start, err)
	if err != nil {
		s.record(audit.EventMigrationFailed, map[string]string{"error": err.Error()})
		return nil, err
	}
	s.record(audit.EventMigrationFinished, map[string]bool{"dry_run": res.DryRun})
	return res, nil
}

func (s *Service) Reset(ctx context.Context) error {
	start := time.Now()
	err := s.backend.Reset(ctx)
	s.observe(backend.MethodReset, start, err)
	if err == nil {
		s.record(audit.EventSessionReset, nil)
	}
	return err
}

// PollStatus is not audited; it runs every poll interval.
func (s *Service) PollStatus(ctx context.Context) (core.StatusReport, error) {
	return s.backend.PollStatus(ctx)
}

func (s *Service) FetchWorstSites(ctx context.Context) ([]core.WorstSite, error) {
	start := time.Now()
	sites, err := s.backend.FetchWorstSites(ctx)
	s.observe(backend.MethodFetchWorstSites, start, err)
	return sites, err
}
