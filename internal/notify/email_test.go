package notify

import (
	"context"
	"errors"
	"testing"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "test@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Evolvian AI" {
		t.Errorf("expected default from name 'Evolvian AI', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test",
		Body:    "Test body",
	})

	if err == nil {
		t.Error("expected error when client is nil")
	}
}

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestFailoverEmailSender_UsesPrimary(t *testing.T) {
	primary := &recordingSender{}
	secondary := &recordingSender{}
	sender := NewFailoverEmailSender(primary, secondary, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.sent) != 1 {
		t.Errorf("expected primary to send, got %d", len(primary.sent))
	}
	if len(secondary.sent) != 0 {
		t.Errorf("expected secondary untouched, got %d", len(secondary.sent))
	}
}

func TestFailoverEmailSender_FallsBack(t *testing.T) {
	primary := &recordingSender{err: errors.New("sendgrid down")}
	secondary := &recordingSender{}
	sender := NewFailoverEmailSender(primary, secondary, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secondary.sent) != 1 {
		t.Errorf("expected secondary to send, got %d", len(secondary.sent))
	}
}

func TestFailoverEmailSender_BothFail(t *testing.T) {
	primary := &recordingSender{err: errors.New("primary down")}
	secondary := &recordingSender{err: errors.New("secondary down")}
	sender := NewFailoverEmailSender(primary, secondary, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err == nil {
		t.Error("expected error when both senders fail")
	}
}

func TestFailoverEmailSender_NoneConfigured(t *testing.T) {
	sender := NewFailoverEmailSender(nil, nil, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err == nil {
		t.Error("expected error when no sender is configured")
	}
}
