// Package mailer delivers account emails (verification and password-reset
// links) off the request path. Messages are enqueued by the auth service and
// drained by a background worker; delivery failures never fail the request
// that produced the message.
package mailer

import "context"

// Message is one outbound email job.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Queue accepts email jobs for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Sender performs the actual delivery of one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
