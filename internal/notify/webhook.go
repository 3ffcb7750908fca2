package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"worktrack/internal/clock"

	"golang.org/x/time/rate"
)

// ErrQueueFull is returned when the delivery queue cannot take another message.
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("notifier closed")

// Message is the JSON body posted to the webhook.
type Message struct {
	Kind     Kind              `json:"kind"`
	JobName  string            `json:"job_name"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL       string
	RateLimit rate.Limit
	Burst     int
	QueueSize int
	Timeout   time.Duration
}

// WebhookNotifier posts notifications to an HTTP endpoint from a single worker
// goroutine. Callers never block on the network.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	clock   clock.Clock
	logger  *slog.Logger

	queue chan Message
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending map[string][]clock.Timer
}

// NewWebhookNotifier starts the delivery worker. Call Close to stop it.
func NewWebhookNotifier(cfg WebhookConfig, c clock.Clock, logger *slog.Logger) *WebhookNotifier {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	n := &WebhookNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		clock:   c,
		logger:  logger.With("component", "notify", "sink", "webhook"),
		queue:   make(chan Message, cfg.QueueSize),
		done:    make(chan struct{}),
		pending: make(map[string][]clock.Timer),
	}

	n.wg.Add(1)
	go n.run()
	return n
}

func (n *WebhookNotifier) SendNow(ctx context.Context, kind Kind, jobName string, metadata map[string]string) error {
	return n.enqueue(Message{Kind: kind, JobName: jobName, Metadata: metadata, SentAt: n.clock.Now()})
}

func (n *WebhookNotifier) ScheduleAt(ctx context.Context, kind Kind, jobName string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	t := n.clock.AfterFunc(at.Sub(n.clock.Now()), func() {
		if err := n.enqueue(Message{Kind: kind, JobName: jobName, SentAt: n.clock.Now()}); err != nil {
			n.logger.Warn("scheduled notification dropped", "kind", kind, "job_name", jobName, "error", err)
		}
	})
	n.pending[jobName] = append(n.pending[jobName], t)
	return nil
}

func (n *WebhookNotifier) CancelScheduled(ctx context.Context, jobName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, t := range n.pending[jobName] {
		t.Stop()
	}
	delete(n.pending, jobName)
	return nil
}

// Close cancels scheduled notifications and waits for the worker to exit.
// Queued messages that have not been sent are dropped.
func (n *WebhookNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for name, timers := range n.pending {
		for _, t := range timers {
			t.Stop()
		}
		delete(n.pending, name)
	}
	close(n.done)
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *WebhookNotifier) enqueue(msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	select {
	case n.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *WebhookNotifier) run() {
	defer n.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-n.done
		cancel()
	}()

	for {
		select {
		case <-n.done:
			return
		case msg := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if err := n.post(ctx, msg); err != nil {
				n.logger.Warn("webhook delivery failed", "kind", msg.Kind, "job_name", msg.JobName, "error", err)
			}
		}
	}
}

func (n *WebhookNotifier) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
