// Package audit records engine commands as an append-only JSON-lines trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"trade-journal/internal/logging"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Account events
	AccountCreated     EventType = "ACCOUNT_CREATED"
	AccountUpdated     EventType = "ACCOUNT_UPDATED"
	AccountDeleted     EventType = "ACCOUNT_DELETED"
	Deposit            EventType = "DEPOSIT"
	Withdrawal         EventType = "WITHDRAWAL"
	TransactionDeleted EventType = "TRANSACTION_DELETED"
	EquityRecomputed   EventType = "EQUITY_RECOMPUTED"

	// Trade events
	TradeOpened  EventType = "TRADE_OPENED"
	TradeEdited  EventType = "TRADE_EDITED"
	TradeClosed  EventType = "TRADE_CLOSED"
	TradeDeleted EventType = "TRADE_DELETED"

	BackupImported EventType = "BACKUP_IMPORTED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	AccountID string                 `json:"account_id,omitempty"`
	TradeID   string                 `json:"trade_id,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	Log(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

// Log implements Sink.
func (Nop) Log(context.Context, Event) error { return nil }

// Recorder keeps events in memory. Tests use it to assert on the trail.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Log implements Sink.
func (r *Recorder) Log(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

// Config holds audit logger configuration.
type Config struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogDir:     filepath.Join(home, ".config", "trade-journal", "audit"),
		MaxSize:    20,
		MaxBackups: 10,
		MaxAge:     365,
		Compress:   true,
	}
}

// Logger writes events to a rotated file.
type Logger struct {
	writer    *lumberjack.Logger
	mu        sync.Mutex
	sessionID string
}

// NewLogger creates a new audit logger.
func NewLogger(cfg Config) (*Logger, error) {
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

	return &Logger{
		writer:    writer,
		sessionID: uuid.NewString(),
	}, nil
}

// Log appends an event as one JSON line.
func (l *Logger) Log(ctx context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.SessionID = l.sessionID
	if event.RequestID == "" {
		event.RequestID = logging.RequestID(ctx)
	}
	if len(event.Details) > 0 {
		event.Details = logging.RedactFields(event.Details)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// Close closes the audit logger.
func (l *Logger) Close() error {
	return l.writer.Close()
}
