package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"worktrack/internal/clock"
)

// LogNotifier writes notifications to a logger. Scheduled notifications are
// logged when they come due.
type LogNotifier struct {
	logger *slog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	pending map[string][]clock.Timer
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger, c clock.Clock) *LogNotifier {
	return &LogNotifier{
		logger:  logger.With("component", "notify"),
		clock:   c,
		pending: make(map[string][]clock.Timer),
	}
}

func (n *LogNotifier) SendNow(ctx context.Context, kind Kind, jobName string, metadata map[string]string) error {
	n.logger.InfoContext(ctx, "notification", "kind", kind, "job_name", jobName, "metadata", metadata)
	return nil
}

func (n *LogNotifier) ScheduleAt(ctx context.Context, kind Kind, jobName string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := n.clock.AfterFunc(at.Sub(n.clock.Now()), func() {
		n.logger.Info("scheduled notification", "kind", kind, "job_name", jobName)
	})
	n.pending[jobName] = append(n.pending[jobName], t)
	return nil
}

func (n *LogNotifier) CancelScheduled(ctx context.Context, jobName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, t := range n.pending[jobName] {
		t.Stop()
	}
	delete(n.pending, jobName)
	return nil
}
