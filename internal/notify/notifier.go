// Package notify delivers one-time codes to phone numbers.
package notify

import (
	"context"
	"time"
)

// DeliveryReceipt identifies a message accepted by the provider.
type DeliveryReceipt struct {
	ID     string
	Status string
	SentAt time.Time
}

// Notifier sends code to phone. Implementations must not log the code
// outside development builds.
type Notifier interface {
	Send(ctx context.Context, phone, code string) (*DeliveryReceipt, error)
}
