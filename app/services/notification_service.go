package services

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// SMSArrivedEvent notifies a customer that a verification code arrived for
// their activation
type SMSArrivedEvent struct {
	ActivationID uuid.UUID
	CustomerID   uint
	PhoneNumber  string
	Service      string
	Code         string
	Sender       string
}

// NotificationDispatcher delivers customer-facing events. Dispatch failures
// never fail the operation that produced the event.
type NotificationDispatcher interface {
	NotifySMSArrived(ctx context.Context, event SMSArrivedEvent) error
}

// LogNotificationDispatcher writes events to the application log. It is the
// default dispatcher until a push channel is wired in.
type LogNotificationDispatcher struct{}

// NewLogNotificationDispatcher creates the log-backed dispatcher
func NewLogNotificationDispatcher() NotificationDispatcher {
	return &LogNotificationDispatcher{}
}

// NotifySMSArrived logs the arrival event
func (d *LogNotificationDispatcher) NotifySMSArrived(_ context.Context, event SMSArrivedEvent) error {
	log.Printf("notification: sms arrived for customer %d activation %s service %s code %s",
		event.CustomerID, event.ActivationID, event.Service, event.Code)
	return nil
}

// MockNotificationDispatcher records dispatched events for tests
type MockNotificationDispatcher struct {
	mu     sync.Mutex
	Events []SMSArrivedEvent
	Err    error
}

// NotifySMSArrived appends the event and returns the configured error
func (d *MockNotificationDispatcher) NotifySMSArrived(_ context.Context, event SMSArrivedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Events = append(d.Events, event)
	return d.Err
}

// Dispatched returns a copy of the recorded events
func (d *MockNotificationDispatcher) Dispatched() []SMSArrivedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SMSArrivedEvent, len(d.Events))
	copy(out, d.Events)
	return out
}
