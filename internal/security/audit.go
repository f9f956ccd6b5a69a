// Package security provides access-token sealing, credential masking and the journal audit trail.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"trade-journal/internal/logging"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Broker session events
	AuditLogin          AuditEventType = "LOGIN"
	AuditLogout         AuditEventType = "LOGOUT"
	AuditSessionExpired AuditEventType = "SESSION_EXPIRED"

	// Journal events
	AuditTradeCreated    AuditEventType = "TRADE_CREATED"
	AuditTradeUpdated    AuditEventType = "TRADE_UPDATED"
	AuditTradeDeleted    AuditEventType = "TRADE_DELETED"
	AuditSnapshotCreated AuditEventType = "SNAPSHOT_CREATED"
	AuditSnapshotUpdated AuditEventType = "SNAPSHOT_UPDATED"
	AuditSnapshotDeleted AuditEventType = "SNAPSHOT_DELETED"

	// Reference data events
	AuditMasterRefreshed AuditEventType = "MASTER_REFRESHED"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	EntityID  int64                  `json:"entity_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// AuditLogger appends audit events as JSON lines.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		LogDir:     filepath.Join(home, ".config", "trade-journal", "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// NewAuditLogger creates an audit logger writing to a rotating file.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return NewAuditLoggerWithWriter(writer), nil
}

// NewAuditLoggerWithWriter creates an audit logger on an arbitrary writer.
func NewAuditLoggerWithWriter(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Log writes an audit event. A nil logger discards events.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if al == nil {
		return nil
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID
	event.RequestID = logging.RequestID(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogLogin logs a broker login attempt.
func (al *AuditLogger) LogLogin(ctx context.Context, userID string, success bool, errorMsg string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditLogin,
		UserID:    userID,
		Success:   success,
		ErrorMsg:  errorMsg,
	})
}

// LogLogout logs a broker logout.
func (al *AuditLogger) LogLogout(ctx context.Context) error {
	return al.Log(ctx, AuditEvent{EventType: AuditLogout, Success: true})
}

// LogSessionExpired logs a broker token being discarded after rejection.
func (al *AuditLogger) LogSessionExpired(ctx context.Context, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditSessionExpired,
		Success:   false,
		ErrorMsg:  MaskSensitive(reason),
	})
}

// LogEntity logs a change to a trade or snapshot.
func (al *AuditLogger) LogEntity(ctx context.Context, eventType AuditEventType, id int64, details map[string]interface{}) error {
	return al.Log(ctx, AuditEvent{
		EventType: eventType,
		EntityID:  id,
		Details:   details,
		Success:   true,
	})
}

// LogMasterRefresh logs a contract master refresh.
func (al *AuditLogger) LogMasterRefresh(ctx context.Context, source string, records int, err error) error {
	event := AuditEvent{
		EventType: AuditMasterRefreshed,
		Success:   err == nil,
		Details:   map[string]interface{}{"source": source, "records": records},
	}
	if err != nil {
		event.ErrorMsg = MaskSensitive(err.Error())
	}
	return al.Log(ctx, event)
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	return al.writer.Close()
}
