// Package queue defines the net lifecycle events exchanged over RabbitMQ and
// the consumer that records them.
package queue

import "time"

// Net lifecycle event types.
const (
	EventNetScheduled = "net.scheduled"
	EventNetStarted   = "net.started"
	EventNetCompleted = "net.completed"
)

// NetEvent is published when a net is scheduled, started or completed. It
// carries enough detail for the consumer to log the event without querying
// the database.
type NetEvent struct {
	Type             string     `json:"type"`
	NetOperationID   uint64     `json:"net_operation_id"`
	OperatorID       uint64     `json:"operator_id"`
	OperatorCallsign string     `json:"operator_callsign"`
	NetName          string     `json:"net_name"`
	Frequency        string     `json:"frequency"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	CheckInCount     int        `json:"check_in_count"`
	Occurrences      int        `json:"occurrences,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}
