package mailer

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	done chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	return nil
}

func TestInProcessDelivers(t *testing.T) {
	sender := &recordingSender{done: make(chan struct{})}
	q := &InProcess{Sender: sender}

	msg := Message{To: []string{"a@example.com"}, Subject: "Verify your email", HTML: "<p>hi</p>"}
	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("message was never delivered")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 || sender.sent[0].Subject != "Verify your email" {
		t.Fatalf("unexpected delivery: %+v", sender.sent)
	}
}

func TestSMTPSenderRequiresRecipients(t *testing.T) {
	s := &SMTPSender{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}
	if err := s.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatalf("expected an error for a message without recipients")
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{To: []string{"a@example.com"}}); err != nil {
		t.Fatalf("LogSender must never fail: %v", err)
	}
}
