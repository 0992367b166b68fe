package service

import "github.com/ballotbox/election-service/internal/domain"

// Ineligibility reasons returned to callers.
const (
	ReasonMembershipInactive = "membership_inactive"
	ReasonRoleMissing        = "role_missing"
)

// Eligibility is the evaluator's verdict.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// EvaluateEligibility decides whether caller may take part in election. It
// only looks at asserted attributes: active membership, and when the election
// restricts roles, at least one of them.
func EvaluateEligibility(election *domain.Election, caller domain.CallerAttributes) Eligibility {
	if caller.MembershipStatus != domain.MembershipActive {
		return Eligibility{Reason: ReasonMembershipInactive}
	}
	if len(election.EligibleRoles) == 0 {
		return Eligibility{Eligible: true}
	}
	for _, role := range election.EligibleRoles {
		if caller.HasRole(role) {
			return Eligibility{Eligible: true}
		}
	}
	return Eligibility{Reason: ReasonRoleMissing}
}
