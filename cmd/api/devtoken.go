package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ballotbox/election-service/internal/auth"
	"github.com/ballotbox/election-service/internal/config"
	"github.com/ballotbox/election-service/internal/domain"
)

// devTokenCmd mints a caller JWT the way the membership provider would, for
// local testing against the eligibility authority.
func devTokenCmd() *cobra.Command {
	var (
		memberRef string
		roles     []string
		inactive  bool
	)
	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a development caller token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadAuth()
			status := domain.MembershipActive
			if inactive {
				status = domain.MembershipInactive
			}
			tm := auth.NewTokenManager(cfg.JWTSecret, cfg.Issuer, cfg.AccessTokenTTLMinutes)
			token, expires, err := tm.GenerateToken(domain.CallerAttributes{
				MemberRef:        memberRef,
				MembershipStatus: status,
				Roles:            roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().StringVar(&memberRef, "member", "", "opaque member reference")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to assert (repeatable)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "assert an inactive membership")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
