package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes the code to the log instead of sending it. Development only.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, phone, code string) (*DeliveryReceipt, error) {
	n.logger.WithFields(logrus.Fields{
		"phone": phone,
		"otp":   code,
	}).Info("OTP generated (logged for development)")

	return &DeliveryReceipt{
		ID:     uuid.NewString(),
		Status: "logged",
		SentAt: time.Now().UTC(),
	}, nil
}
