package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qcom/phoneauth/internal/config"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestNotifier(url, channel string) *TwilioNotifier {
	n := NewTwilioNotifier(config.TwilioConfig{
		AccountSID:  "AC123",
		AuthToken:   "secret",
		PhoneNumber: "+15550001111",
		ContentSID:  "HX999",
		Channel:     channel,
		BaseURL:     url,
	}, quietLogger())
	n.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return n
}

func TestTwilioNotifier_SendWhatsApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q/%q (%v)", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "whatsapp:+15551230000" {
			t.Errorf("To = %q", got)
		}
		if got := r.PostForm.Get("From"); got != "whatsapp:+15550001111" {
			t.Errorf("From = %q", got)
		}
		if got := r.PostForm.Get("ContentSid"); got != "HX999" {
			t.Errorf("ContentSid = %q", got)
		}
		var vars map[string]string
		if err := json.Unmarshal([]byte(r.PostForm.Get("ContentVariables")), &vars); err != nil || vars["1"] != "123456" {
			t.Errorf("ContentVariables = %q", r.PostForm.Get("ContentVariables"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	receipt, err := newTestNotifier(srv.URL, "whatsapp").Send(context.Background(), "+15551230000", "123456")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if receipt.ID != "SM1" || receipt.Status != "queued" {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestTwilioNotifier_SendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.PostForm.Get("To"); got != "+15551230000" {
			t.Errorf("To = %q", got)
		}
		if got := r.PostForm.Get("Body"); got != "Your verification code is 654321" {
			t.Errorf("Body = %q", got)
		}
		if r.PostForm.Has("ContentSid") {
			t.Error("SMS request should not carry a content template")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM2","status":"queued"}`))
	}))
	defer srv.Close()

	if _, err := newTestNotifier(srv.URL, "sms").Send(context.Background(), "+15551230000", "654321"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestTwilioNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	_, err := newTestNotifier(srv.URL, "whatsapp").Send(context.Background(), "+15551230000", "123456")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if perr.Code != 21211 || perr.StatusCode != http.StatusBadRequest {
		t.Errorf("ProviderError = %+v", perr)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestTwilioNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM3","status":"queued"}`))
	}))
	defer srv.Close()

	receipt, err := newTestNotifier(srv.URL, "whatsapp").Send(context.Background(), "+15551230000", "123456")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if receipt.ID != "SM3" || calls.Load() != 3 {
		t.Errorf("receipt = %+v after %d calls", receipt, calls.Load())
	}
}

func TestTwilioNotifier_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestNotifier(srv.URL, "whatsapp").Send(context.Background(), "+15551230000", "123456")
	if err == nil {
		t.Fatal("Send should fail after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
