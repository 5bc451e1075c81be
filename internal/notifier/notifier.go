// Package notifier sends best-effort email. Delivery failures are logged and
// counted but never surface to the caller.
package notifier

import (
	"context"
	"log/slog"

	notifiermetrics "shelterops/internal/notifier/metrics"
	"shelterops/pkg/platform/circuit"
)

// Transport delivers a single message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type Notifier struct {
	transport Transport
	breaker   *circuit.Breaker
	sender    string
	logger    *slog.Logger
	metrics   *notifiermetrics.Metrics
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetrics(m *notifiermetrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(n *Notifier) {
		n.breaker = b
	}
}

// WithSender sets the From address used when a message carries none.
func WithSender(sender string) Option {
	return func(n *Notifier) {
		n.sender = sender
	}
}

func New(transport Transport, opts ...Option) *Notifier {
	n := &Notifier{
		transport: transport,
		breaker:   circuit.New("notifier"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendEmail hands msg to the transport. It never fails; check the logs and
// the shelterd_notifier_* counters for delivery problems.
func (n *Notifier) SendEmail(ctx context.Context, msg Message) {
	if n == nil || n.transport == nil {
		return
	}
	if msg.Sender == "" {
		msg.Sender = n.sender
	}
	if err := msg.Validate(); err != nil {
		n.logger.WarnContext(ctx, "email dropped", "subject", msg.Subject, "error", err)
		n.incrementDropped()
		return
	}
	if !n.breaker.Allow() {
		n.logger.WarnContext(ctx, "email dropped, mail transport circuit open",
			"subject", msg.Subject, "recipients", len(msg.To))
		n.incrementDropped()
		return
	}

	if err := n.transport.Send(ctx, msg); err != nil {
		_, change := n.breaker.RecordFailure()
		if change.Opened {
			n.logger.ErrorContext(ctx, "mail transport circuit opened", "breaker", n.breaker.Name())
		}
		n.logger.ErrorContext(ctx, "failed to send email",
			"subject", msg.Subject, "recipients", len(msg.To), "error", err)
		if n.metrics != nil {
			n.metrics.IncrementFailed()
		}
		return
	}
	if _, change := n.breaker.RecordSuccess(); change.Closed {
		n.logger.InfoContext(ctx, "mail transport circuit closed", "breaker", n.breaker.Name())
	}
	n.logger.InfoContext(ctx, "email sent", "subject", msg.Subject, "recipients", len(msg.To))
	if n.metrics != nil {
		n.metrics.IncrementSent()
	}
}

func (n *Notifier) incrementDropped() {
	if n.metrics != nil {
		n.metrics.IncrementDropped()
	}
}
