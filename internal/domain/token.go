package domain

import "time"

// VotingTokenState distinguishes a reservation from a confirmed issuance.
type VotingTokenState string

const (
	VotingTokenReserved VotingTokenState = "reserved"
	VotingTokenIssued   VotingTokenState = "issued"
)

// VotingToken lives on the eligibility side only.
type VotingToken struct {
	MemberRef  string
	ElectionID string
	Digest     string
	State      VotingTokenState
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
}

// Live reports an issued, unused, unexpired token.
func (t *VotingToken) Live(now time.Time) bool {
	return t.State == VotingTokenIssued && !t.Used && now.Before(t.ExpiresAt)
}

// TokenStatus is what a member may learn about their own participation.
type TokenStatus struct {
	TokenIssued bool       `json:"token_issued"`
	Voted       bool       `json:"voted"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// RegisteredToken lives on the ballot side and carries no member attribute.
type RegisteredToken struct {
	Digest       string
	ElectionID   string
	ExpiresAt    time.Time
	Redeemed     bool
	RedeemedAt   *time.Time
	RegisteredAt time.Time
}

// TokenRegistration is the only issuance fact that crosses to the ballot side.
type TokenRegistration struct {
	Digest     string    `json:"digest"`
	ElectionID string    `json:"election_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RedemptionState is all the ballot side reveals about one digest.
type RedemptionState struct {
	Redeemed bool `json:"redeemed"`
	Expired  bool `json:"expired"`
}
