package dto

import "github.com/ballotbox/election-service/internal/domain"

// CastBallotRequest payload. The token is the only credential the ballot
// authority ever sees.
type CastBallotRequest struct {
	Token   string               `json:"token"`
	Content domain.BallotContent `json:"content"`
}

// CastBallotResponse is the receipt. It deliberately omits the digest.
type CastBallotResponse struct {
	BallotID string `json:"ballot_id"`
}
