package devhost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notification is one UI call a widget made.
type Notification struct {
	WidgetID string    `json:"widgetId,omitempty"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Notifier shows UI calls to whoever runs the host.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to slog.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	slog.Info(fmt.Sprintf("devhost:notifier - [%s] widget=%q %s", n.Kind, n.WidgetID, n.Message))
	return nil
}

// RecordingNotifier keeps the most recent notifications in memory.
type RecordingNotifier struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

// NewRecordingNotifier keeps at most limit notifications (100 if limit <= 0).
func NewRecordingNotifier(limit int) *RecordingNotifier {
	if limit <= 0 {
		limit = 100
	}
	return &RecordingNotifier{limit: limit}
}

func (r *RecordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
	return nil
}

// Recent returns the recorded notifications, oldest first.
func (r *RecordingNotifier) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, x := range ns {
		if err := x.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ConfirmPolicy answers ui.confirm on behalf of a user.
type ConfirmPolicy func(widgetID, message string) bool

// FixedConfirm always answers answer.
func FixedConfirm(answer bool) ConfirmPolicy {
	return func(string, string) bool { return answer }
}
