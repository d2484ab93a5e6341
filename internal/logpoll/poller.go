// Package logpoll follows the backend's status log on a fixed interval and
// delivers only the entries past a client-held cursor. The backend may return
// only a trailing window of its log, so the cursor is anchored on the last
// delivered entry rather than on a position.
package logpoll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = time.Second

// StatusSource reports the backend status, whose Logs may be a trailing window.
type StatusSource interface {
	PollStatus(ctx context.Context) (core.StatusReport, error)
}

// Config configures a Poller.
type Config struct {
	Source   StatusSource
	Clock    clock.Clock
	Interval time.Duration
	Logger   zerolog.Logger

	// Deliver receives each batch of new entries, in backend order. Required.
	Deliver func([]core.LogEntry)
	// Progress, when set, receives every successful status report.
	Progress func(core.StatusReport)
}

func (c Config) validate() error {
	if c.Source == nil {
		return errors.New("logpoll: nil Source")
	}
	if c.Deliver == nil {
		return errors.New("logpoll: nil Deliver")
	}
	return nil
}

// Poller polls a StatusSource. A failed poll is skipped silently; the loop
// keeps going until stopped.
type Poller struct {
	cfg Config

	mu        sync.Mutex
	cursor    int
	anchor    core.LogEntry
	hasAnchor bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and returns a stopped poller.
func New(cfg Config) (*Poller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	cfg.Logger = cfg.Logger.With().Str("worker", "logpoll").Logger()
	return &Poller{cfg: cfg}, nil
}

// Run polls every interval until ctx is done. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.cfg.Logger.Debug().Dur("interval", p.cfg.Interval).Msg("log poller started")
	defer p.cfg.Logger.Debug().Msg("log poller exited")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.cfg.Clock.After(p.cfg.Interval):
			p.PollOnce(ctx)
		}
	}
}

// Start runs the poller in the background. Starting a running poller restarts it.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
}

// Stop halts a background poller and waits for it to exit. It reports whether
// a poller was running.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// Running reports whether a background poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// PollOnce performs one poll and delivers any new entries. It reports whether
// the poll succeeded.
func (p *Poller) PollOnce(ctx context.Context) bool {
	report, err := p.cfg.Source.PollStatus(ctx)
	if err != nil {
		p.cfg.Logger.Debug().Err(err).Msg("status poll failed, skipping cycle")
		return false
	}

	p.mu.Lock()
	fresh := p.advanceLocked(report.Logs)
	p.mu.Unlock()

	if p.cfg.Progress != nil {
		p.cfg.Progress(report)
	}
	if len(fresh) > 0 {
		p.cfg.Deliver(fresh)
	}
	return true
}

// advanceLocked returns the entries of logs that follow the anchor and moves
// the cursor past them.
func (p *Poller) advanceLocked(logs []core.LogEntry) []core.LogEntry {
	start := 0
	switch {
	case !p.hasAnchor:
	case p.cursor > 0 && p.cursor <= len(logs) && logs[p.cursor-1] == p.anchor:
		// Full log, grown in place.
		start = p.cursor
	default:
		i := lastIndex(logs, p.anchor)
		switch {
		case i >= 0:
			// Trailing window that slid forward.
			start = i + 1
		case len(logs) < p.cursor:
			p.cfg.Logger.Debug().Int("cursor", p.cursor).Int("backend_len", len(logs)).Msg("backend log shrank, rebasing cursor")
			p.cursor = 0
			p.hasAnchor = false
		default:
			p.cfg.Logger.Debug().Int("cursor", p.cursor).Msg("log window moved past the last delivered entry")
		}
	}

	fresh := append([]core.LogEntry(nil), logs[start:]...)
	p.cursor += len(fresh)
	if len(fresh) > 0 {
		p.anchor, p.hasAnchor = fresh[len(fresh)-1], true
	}
	return fresh
}

func lastIndex(logs []core.LogEntry, e core.LogEntry) int {
	for i := len(logs) - 1; i >= 0; i-- {
		if logs[i] == e {
			return i
		}
	}
	return -1
}

// Cursor returns the number of entries delivered since the last rebase.
func (p *Poller) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Reset rewinds the cursor to zero, for use after a session reset.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = 0
	p.anchor, p.hasAnchor = core.LogEntry{}, false
}
