package domain

import "time"

// AuditEventType enumerates ledger entries. Both authorities use the same set.
type AuditEventType string

const (
	AuditIssued         AuditEventType = "issued"
	AuditRegistered     AuditEventType = "registered"
	AuditRedeemed       AuditEventType = "redeemed"
	AuditElectionClosed AuditEventType = "election-closed"
)

// ActorSystem marks events not triggered by an administrator.
const ActorSystem = "system"

// AuditEvent is an append-only ledger entry keyed by digest. It never carries
// ballot content or a member reference.
type AuditEvent struct {
	ID         string         `json:"id"`
	ElectionID string         `json:"election_id"`
	Type       AuditEventType `json:"type"`
	Digest     string         `json:"digest,omitempty"`
	Actor      string         `json:"actor"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RegisteredTokenView is one ballot-side ledger row as exported for reconciliation.
type RegisteredTokenView struct {
	Digest    string    `json:"digest"`
	ExpiresAt time.Time `json:"expires_at"`
	Redeemed  bool      `json:"redeemed"`
}

// LedgerExport is the ballot side's ledger for one election. BallotCount must
// equal the number of redeemed tokens.
type LedgerExport struct {
	ElectionID  string                `json:"election_id"`
	Tokens      []RegisteredTokenView `json:"tokens"`
	Events      []AuditEvent          `json:"events"`
	BallotCount int                   `json:"ballot_count"`
}
