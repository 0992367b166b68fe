package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventElectionPublished EventType = "election.published"
	EventElectionClosed    EventType = "election.closed"
	EventTokenIssued       EventType = "token.issued"
	EventTokenRedeemed     EventType = "token.redeemed"
)

// Event represents a domain event emitted by services. Payloads carry digests
// or election ids only, never member references together with ballot data.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	ElectionID string      `json:"election_id"`
	Actor      string      `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// TokenRedeemedPayload payload.
type TokenRedeemedPayload struct {
	Digest string `json:"digest"`
}

// TokenIssuedPayload payload.
type TokenIssuedPayload struct {
	Digest    string    `json:"digest"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ElectionClosedPayload payload.
type ElectionClosedPayload struct {
	ClosedAt time.Time `json:"closed_at"`
}
