package sandbox

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditLogger appends one line per executed or refused command
type AuditLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	file   *os.File
}

// NewAuditLogger opens (or creates) the audit log for appending
func NewAuditLogger(logPath string) (*AuditLogger, error) {
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create audit log dir: %w", err)
		}
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open audit log: %w", err)
	}

	return &AuditLogger{
		logger: log.New(file, "", 0),
		file:   file,
	}, nil
}

// Log writes an entry: time|session:<id>|<action>|<command>|<status>|<message>
func (a *AuditLogger) Log(sessionID, action, command, status, message string) {
	if a == nil || a.logger == nil {
		return
	}

	entry := fmt.Sprintf("%s|session:%s|%s|%s|%s|%s",
		time.Now().Format(time.RFC3339),
		sessionID,
		action,
		auditField(command),
		status,
		auditField(message),
	)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger.Println(entry)
}

// Close closes the audit log file
func (a *AuditLogger) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	return a.file.Close()
}

// auditField keeps one entry per line and the field separator unambiguous
func auditField(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "¦")
}
