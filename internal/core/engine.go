// engine.go provides the Engine that wires the wizard's local subsystems together.
package core

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wlanmigrate/wlanmigrate/internal/audit"
	"github.com/wlanmigrate/wlanmigrate/internal/config"
	"github.com/wlanmigrate/wlanmigrate/internal/db"
	"github.com/wlanmigrate/wlanmigrate/internal/logging"
	"github.com/wlanmigrate/wlanmigrate/internal/vault"
	"github.com/wlanmigrate/wlanmigrate/internal/widgets"
)

// Engine owns the process-wide resources: the state and audit databases, the
// credential vault, the widget preference store and the logger.
type Engine struct {
	Config      config.GlobalConfig
	StateDB     *sql.DB
	AuditDB     *sql.DB
	Vault       *vault.Vault
	AuditLogger *audit.Logger
	Widgets     *widgets.Store
	Logger      zerolog.Logger
}

// EnsureInstanceUUID assigns a fresh instance id when cfg has none and
// reports whether it did, so the caller can persist the config.
func EnsureInstanceUUID(cfg *config.GlobalConfig) bool {
	if cfg.InstanceUUID != "" {
		return false
	}
	cfg.InstanceUUID = uuid.New().String()
	return true
}

// Open validates cfg and opens every subsystem under cfg.DataDir, creating
// the directory layout and databases on first use.
func Open(cfg config.GlobalConfig) (*Engine, error) {
	return OpenWithLogger(cfg, logging.NewLogger(cfg.LogLevel, cfg.InstanceUUID))
}

// OpenWithLogger is Open with a caller-supplied logger.
func OpenWithLogger(cfg config.GlobalConfig, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.InstanceUUID == "" {
		return nil, fmt.Errorf("config has no instance uuid")
	}
	if err := db.EnsureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}

	stateDB, err := db.OpenStateDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	auditDB, err := db.OpenAuditDB(cfg.DataDir)
	if err != nil {
		stateDB.Close()
		return nil, err
	}

	al, err := audit.NewLogger(auditDB, cfg.InstanceUUID)
	if err != nil {
		stateDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	v, err := vault.New()
	if err != nil {
		stateDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	store := widgets.NewStore(widgets.NewSQLStorage(stateDB), logger)
	store.Load()

	return &Engine{
		Config:      cfg,
		StateDB:     stateDB,
		AuditDB:     auditDB,
		Vault:       v,
		AuditLogger: al,
		Widgets:     store,
		Logger:      logger,
	}, nil
}

// Close wipes the vault and closes both databases.
func (e *Engine) Close() error {
	var firstErr error
	if e.Vault != nil {
		if err := e.Vault.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.StateDB != nil {
		if err := e.StateDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.AuditDB != nil {
		if err := e.AuditDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
