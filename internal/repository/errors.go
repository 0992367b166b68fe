package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// Sentinel errors shared by the Postgres and in-memory stores. Services
// translate them into DomainErrors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrConflict        = errors.New("record changed concurrently")
	ErrAlreadyIssued   = errors.New("voting token already issued")
	ErrTokenRedeemed   = errors.New("voting token already redeemed")
	ErrTokenExpired    = errors.New("voting token expired")
	ErrElectionNotOpen = errors.New("election not accepting votes")
	ErrElectionClosed  = errors.New("election closed")
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
