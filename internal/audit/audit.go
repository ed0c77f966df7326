// Package audit records every control-surface request to an
// append-only JSON-lines file, the way the teacher's
// internal/security.AuditLogger does. The UI event emission that file
// also performs is dropped; there is no UI here to receive it.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded control-surface request.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	Action    string    `json:"action"`
	Status    int       `json:"status"`
	Details   string    `json:"details"`
}

// Logger writes audit entries to both a JSON-lines file and the
// module's structured logger.
type Logger struct {
	mu      sync.Mutex
	logFile *os.File
	logPath string
	logger  *slog.Logger
}

// New opens (creating if needed) an audit log file under logDir.
func New(logDir string, logger *slog.Logger) *Logger {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.Error("failed to create audit log directory", "error", err)
	}

	path := filepath.Join(logDir, "control_access.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
	}

	return &Logger{
		logFile: f,
		logPath: path,
		logger:  logger,
	}
}

// Log records one control-surface request.
func (a *Logger) Log(sourceIP, action string, status int, details string) {
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		SourceIP:  sourceIP,
		Action:    action,
		Status:    status,
		Details:   details,
	}

	a.mu.Lock()
	if a.logFile != nil {
		line, _ := json.Marshal(entry)
		a.logFile.WriteString(string(line) + "\n")
	}
	a.mu.Unlock()

	level := slog.LevelInfo
	if status >= 400 {
		level = slog.LevelWarn
	}
	a.logger.Log(context.Background(), level, "audit", "action", action, "status", status, "ip", sourceIP)
}

// Close releases the underlying log file handle.
func (a *Logger) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// RecentEntries returns up to limit of the most recently written
// entries, newest first.
func (a *Logger) RecentEntries(limit int) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	content, err := os.ReadFile(a.logPath)
	if err != nil {
		return []Entry{}
	}

	lines := strings.Split(string(content), "\n")
	var entries []Entry
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
		if len(entries) >= limit {
			break
		}
	}
	return entries
}
