package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audited administrative actions.
const (
	AuditPermissionsUpdated = "PERMISSIONS_BULK_UPDATE"
	AuditSectionsSet        = "SECTIONS_SET"
)

// AuditLog is one administrative change stored in audit_logs.
type AuditLog struct {
	ActorID  string
	Role     string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// NewAuditLog stamps an entry with the acting identity.
func NewAuditLog(actor Identity, action, entity, entityID string, meta map[string]any) AuditLog {
	return AuditLog{ActorID: actor.UserID, Role: actor.Role, Action: action, Entity: entity, EntityID: entityID, Meta: meta}
}

// Validate checks the mandatory fields of an audit entry.
func (l AuditLog) Validate() error {
	switch {
	case l.Action == "":
		return fmt.Errorf("%w: audit action required", ErrValidation)
	case l.Entity == "" || l.EntityID == "":
		return fmt.Errorf("%w: audit entity required", ErrValidation)
	case l.ActorID == "":
		return fmt.Errorf("%w: audit actor required", ErrValidation)
	}
	return nil
}

// AuditLogger writes entries into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry, defaulting its timestamp to now.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, actor_role, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, log.ActorID, log.Role, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
