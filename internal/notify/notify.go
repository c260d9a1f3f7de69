// Package notify defines the transient notification collaborator the cart core
// reports user-visible outcomes through. Rendering is the UI shell's job.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a transient, user-facing message.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier receives notifications from the cart core.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

// Success is shorthand for n.Notify(ctx, LevelSuccess, message).
func Success(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, LevelSuccess, message)
}

// Error is shorthand for n.Notify(ctx, LevelError, message).
func Error(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, LevelError, message)
}

// Warning is shorthand for n.Notify(ctx, LevelWarning, message).
func Warning(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, LevelWarning, message)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Level, string) {}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, level Level, message string) {
	logLevel := slog.LevelInfo
	if level == LevelError || level == LevelWarning {
		logLevel = slog.LevelWarn
	}
	l.Logger.Log(ctx, logLevel, "notification",
		slog.String("level", string(level)),
		slog.String("message", message),
	)
}

// DefaultRecorderCapacity bounds a Recorder created with capacity 0.
const DefaultRecorderCapacity = 50

// Recorder keeps the most recent notifications in memory.
// The local harness serves them to the UI shell; tests assert on them.
type Recorder struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	next     Notifier
}

// NewRecorder creates a Recorder that forwards to next (may be nil).
func NewRecorder(capacity int, next Notifier) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{capacity: capacity, next: next}
}

func (r *Recorder) Notify(ctx context.Context, level Level, message string) {
	r.mu.Lock()
	r.items = append(r.items, Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if len(r.items) > r.capacity {
		r.items = r.items[len(r.items)-r.capacity:]
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.Notify(ctx, level, message)
	}
}

// All returns a copy of the recorded notifications, oldest first.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Reset clears the recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
