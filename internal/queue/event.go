// Package queue defines session lifecycle events and moves them over the
// message broker.
package queue

import "time"

// SessionQueueName is the durable queue session events are published to.
const SessionQueueName = "auth.session_events"

// EventType names a session lifecycle transition.
type EventType string

const (
	EventUserRegistered    EventType = "user.registered"
	EventSessionCreated    EventType = "session.created"
	EventSessionRefreshed  EventType = "session.refreshed"
	EventSessionRevoked    EventType = "session.revoked"
	EventSessionRevokedAll EventType = "session.revoked_all"
)

// SessionEvent is published after each successful transition. It never
// carries token or password material.
type SessionEvent struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Method     string    `json:"method,omitempty"` // password | google | github | refresh
	Revoked    int64     `json:"revoked,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
