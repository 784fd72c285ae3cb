// Package broker defines the message broker port (interface).
package broker

import "context"

// Message is the envelope handed to a consumer. AckID is the broker's
// handle for acknowledging or extending the lease on this delivery.
type Message struct {
	MessageID  string
	AckID      string
	Data       []byte
	Attributes map[string]string
}

// Broker is the port interface for pull-based consumption and publishing.
type Broker interface {
	// Pull fetches up to max messages from the subscription. A short
	// poll returning zero messages is not an error.
	Pull(ctx context.Context, subscription string, max int) ([]Message, error)

	// Acknowledge confirms processing of the given deliveries. Unacked
	// messages are redelivered after their ack deadline elapses.
	Acknowledge(ctx context.Context, subscription string, ackIDs []string) error

	// ModifyAckDeadline extends the visibility deadline for in-flight
	// deliveries by the given number of seconds.
	ModifyAckDeadline(ctx context.Context, subscription string, ackIDs []string, seconds int) error

	// Publish sends data to the given topic.
	Publish(ctx context.Context, topic string, data []byte) error
}

// Subject constants for the fleet's topics.
const (
	SubjectJobs    = "jobs"         // jobs.{role}: dispatched work per agent role
	SubjectResults = "jobs.results" // results published by workers
	SubjectAlerts  = "fleet.alerts" // alert publications
)

// JobSubject returns the per-role job subject.
func JobSubject(role string) string {
	return SubjectJobs + "." + role
}
