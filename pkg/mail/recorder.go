package mail

import (
	"context"
	"sync"
)

// Recorder is an in-memory Mailer that keeps every message it is asked to send.
// It backs tests and local runs where no SMTP relay exists.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned from Send after the message is recorded.
	Err error
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of the recorded messages in send order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message and whether one exists.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
