package notifier

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Alerter delivers operator alerts.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Sender makes a single delivery attempt.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// NoopAlerter drops alerts; used when Telegram is not configured.
type NoopAlerter struct{}

func (NoopAlerter) Alert(context.Context, string) error { return nil }

// RetryAlerter retries a Sender with a doubling backoff.
type RetryAlerter struct {
	Sender  Sender
	Retries int
	Backoff time.Duration
}

// NewAlerter wraps s with three retries starting at one second.
func NewAlerter(s Sender) *RetryAlerter {
	return &RetryAlerter{Sender: s, Retries: 3, Backoff: time.Second}
}

// Alert returns nil on the first successful attempt. Cancelling ctx stops the
// backoff early.
func (r *RetryAlerter) Alert(ctx context.Context, text string) error {
	backoff := r.Backoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = r.Sender.Send(ctx, text); err == nil {
			return nil
		}
		if attempt == r.Retries {
			return fmt.Errorf("alert failed after %d attempts: %w", attempt+1, err)
		}
		log.Printf("[WARN] alert attempt %d/%d failed: %v, retrying in %v", attempt+1, r.Retries+1, err, backoff)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
}
