package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qcom/phoneauth/internal/config"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const defaultTimeout = 15 * time.Second

// ProviderError is a rejection reported by the Twilio API.
type ProviderError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("twilio: status=%d code=%d: %s", e.StatusCode, e.Code, e.Message)
}

// TwilioNotifier sends codes through the Twilio Messages API, either as a
// WhatsApp content template or as a plain SMS.
type TwilioNotifier struct {
	cfg        config.TwilioConfig
	httpClient *http.Client
	backoff    func() retry.Backoff
	logger     *logrus.Logger
}

func NewTwilioNotifier(cfg config.TwilioConfig, logger *logrus.Logger) *TwilioNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &TwilioNotifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(250*time.Millisecond))
		},
		logger: logger,
	}
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

func (n *TwilioNotifier) form(phone, code string) url.Values {
	form := url.Values{}
	if n.cfg.Channel == "sms" {
		form.Set("From", n.cfg.PhoneNumber)
		form.Set("To", phone)
		form.Set("Body", fmt.Sprintf("Your verification code is %s", code))
		return form
	}

	vars, _ := json.Marshal(map[string]string{"1": code})
	form.Set("From", "whatsapp:"+n.cfg.PhoneNumber)
	form.Set("To", "whatsapp:"+phone)
	form.Set("ContentSid", n.cfg.ContentSID)
	form.Set("ContentVariables", string(vars))
	return form
}

// Send retries throttling and 5xx responses; other rejections fail at once.
func (n *TwilioNotifier) Send(ctx context.Context, phone, code string) (*DeliveryReceipt, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(n.cfg.BaseURL, "/"), url.PathEscape(n.cfg.AccountSID))
	body := n.form(phone, code).Encode()

	var msg twilioMessage
	err := retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(n.cfg.AccountSID, n.cfg.AuthToken)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}

		if resp.StatusCode >= 300 {
			perr := &ProviderError{StatusCode: resp.StatusCode}
			if jerr := json.Unmarshal(raw, perr); jerr != nil || perr.Message == "" {
				perr.Message = http.StatusText(resp.StatusCode)
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				n.logger.WithError(perr).WithField("phone", phone).Warn("Twilio send failed, retrying")
				return retry.RetryableError(perr)
			}
			return perr
		}

		return json.Unmarshal(raw, &msg)
	})
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"phone":       phone,
				"twilio_code": perr.Code,
			}).Error("Twilio rejected OTP message")
		}
		return nil, fmt.Errorf("failed to send OTP via twilio: %w", err)
	}

	return &DeliveryReceipt{
		ID:     msg.SID,
		Status: msg.Status,
		SentAt: time.Now().UTC(),
	}, nil
}
