package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notification is a decoded job addressed to one user.
type Notification struct {
	Type    string
	UserID  string
	EventID string
	At      time.Time
	Text    string
}

// Notifier delivers notifications.  Email or push delivery would plug in
// here; the shipped implementation appends to a log file.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FileNotifier appends one line per notification to <dir>/notifications.log
// and mirrors it to the structured log.
type FileNotifier struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

func NewFileNotifier(dir string, log *zap.Logger) *FileNotifier {
	return &FileNotifier{dir: dir, log: log}
}

// Path returns the log file written by n.
func (n *FileNotifier) Path() string { return filepath.Join(n.dir, "notifications.log") }

func (n *FileNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Ensure logs directory exists
	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(n.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	line := fmt.Sprintf("[%s] %s | user_id=%s | event_id=%s | %s\n",
		at.UTC().Format(time.RFC3339), msg.Type, msg.UserID, msg.EventID, msg.Text)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	n.log.Info("notification delivered",
		zap.String("type", msg.Type), zap.String("user_id", msg.UserID), zap.String("event_id", msg.EventID))
	return nil
}
