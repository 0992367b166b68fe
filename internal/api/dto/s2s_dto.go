package dto

import "time"

// CloseElectionRequest is sent to the ballot authority on closure.
type CloseElectionRequest struct {
	ClosedAt time.Time `json:"closed_at"`
	Actor    string    `json:"actor"`
}

// NotifyUsedRequest tells the eligibility authority a digest was redeemed.
type NotifyUsedRequest struct {
	Digest     string `json:"digest"`
	ElectionID string `json:"election_id"`
}

// NotifyUsedResponse reports whether the call changed state.
type NotifyUsedResponse struct {
	Changed bool `json:"changed"`
}

// ErrorBody is the error object every failed request answers with.
// Retryable marks upstream or capacity failures; local validation and state
// errors never carry it.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ErrorEnvelope is the error response shape, shared by the error middleware
// and the S2S client.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
