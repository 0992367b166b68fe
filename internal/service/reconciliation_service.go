package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/domain"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/repository"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// ReconciliationReport compares the two ledgers for one election by digest.
type ReconciliationReport struct {
	ElectionID string `json:"election_id"`
	Issued     int    `json:"issued"`
	Used       int    `json:"used"`
	Registered int    `json:"registered"`
	Redeemed   int    `json:"redeemed"`
	Ballots    int    `json:"ballots"`
	// MissingRemote lists digests issued here but unknown to the ballot side.
	MissingRemote []string `json:"missing_remote"`
	// UnknownRemote lists digests registered remotely with no local issuance.
	UnknownRemote []string `json:"unknown_remote"`
	// UsedMismatch lists digests redeemed remotely but not yet marked used here.
	UsedMismatch            []string `json:"used_mismatch"`
	Repaired                int      `json:"repaired"`
	BallotsMatchRedemptions bool     `json:"ballots_match_redemptions"`
	Consistent              bool     `json:"consistent"`
}

// ReconciliationService audits issuance against redemption.
type ReconciliationService struct {
	elections repository.ElectionRepository
	tokens    repository.VotingTokenRepository
	ballot    BallotAuthority
	logger    *zap.Logger
	clock     Clock
}

// ReconciliationDependencies bundles collaborators.
type ReconciliationDependencies struct {
	ElectionRepo repository.ElectionRepository
	TokenRepo    repository.VotingTokenRepository
	Ballot       BallotAuthority
	Logger       *zap.Logger
	Clock        Clock
}

func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		elections: deps.ElectionRepo,
		tokens:    deps.TokenRepo,
		ballot:    deps.Ballot,
		logger:    logger,
		clock:     deps.Clock,
	}
}

// Reconcile pulls the ballot side's ledger and compares it with local
// issuance. With repair set, tokens the ballot side has redeemed are marked
// used locally, covering lost notifications.
func (s *ReconciliationService) Reconcile(ctx context.Context, electionID string, repair bool) (*ReconciliationReport, error) {
	election, err := s.elections.GetByID(ctx, electionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("election", nil)
	}
	if err != nil {
		return nil, err
	}
	if election.Status == domain.ElectionStatusDraft {
		return nil, apperrors.NewElectionNotOpen("draft elections have no ledger")
	}

	local, err := s.tokens.ListByElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	remote, err := s.ballot.FetchLedger(ctx, electionID)
	if err != nil {
		return nil, apperrors.NewReconciliationFailed(err)
	}

	report := &ReconciliationReport{
		ElectionID:    electionID,
		Registered:    len(remote.Tokens),
		Ballots:       remote.BallotCount,
		MissingRemote: []string{},
		UnknownRemote: []string{},
		UsedMismatch:  []string{},
	}

	issued := make(map[string]domain.VotingToken, len(local))
	for _, t := range local {
		if t.State != domain.VotingTokenIssued {
			continue
		}
		issued[t.Digest] = t
		report.Issued++
		if t.Used {
			report.Used++
		}
	}

	seen := make(map[string]struct{}, len(remote.Tokens))
	for _, rt := range remote.Tokens {
		seen[rt.Digest] = struct{}{}
		if rt.Redeemed {
			report.Redeemed++
		}
		t, ok := issued[rt.Digest]
		if !ok {
			report.UnknownRemote = append(report.UnknownRemote, rt.Digest)
			continue
		}
		if rt.Redeemed && !t.Used {
			report.UsedMismatch = append(report.UsedMismatch, rt.Digest)
		}
	}
	for digest := range issued {
		if _, ok := seen[digest]; !ok {
			report.MissingRemote = append(report.MissingRemote, digest)
		}
	}
	sort.Strings(report.MissingRemote)
	sort.Strings(report.UnknownRemote)
	sort.Strings(report.UsedMismatch)

	if repair {
		now := s.clock.now()
		for _, digest := range report.UsedMismatch {
			changed, err := s.tokens.MarkUsed(ctx, digest, now)
			if err != nil {
				s.logger.Warn("repair mark-used failed", observability.Digest(digest), zap.Error(err))
				continue
			}
			if changed {
				report.Repaired++
				report.Used++
			}
		}
	}

	report.BallotsMatchRedemptions = report.Ballots == report.Redeemed
	report.Consistent = report.BallotsMatchRedemptions &&
		len(report.MissingRemote) == 0 &&
		len(report.UnknownRemote) == 0 &&
		len(report.UsedMismatch) == report.Repaired

	s.logger.Info("reconciliation finished",
		zap.String("election_id", electionID),
		zap.Int("issued", report.Issued),
		zap.Int("redeemed", report.Redeemed),
		zap.Int("repaired", report.Repaired),
		zap.Bool("consistent", report.Consistent))
	return report, nil
}
