/*
upline.go - Upline chain walker

PURPOSE:
  Produces the ordered ancestor chain of a member - direct sponsor first,
  then the sponsor's sponsor, and so on - up to a maximum depth. The chain
  is what the distribution engine pays depth commissions against.

INVARIANTS:
  - The buyer is never part of their own upline.
  - The chain never exceeds maxDepth entries; depth 0 is an empty chain.
  - A revisited ID means the sponsor graph is corrupt. The walk fails
    loudly with CycleError - it must never truncate silently, because a
    silent truncation would misdirect commission to the company fund and
    hide the corruption.
*/
package engine

import "context"

// SponsorLookup resolves a member's direct sponsor. A nil result means the
// member is a root (no sponsor). Implementations return ErrMemberNotFound
// for unknown IDs.
type SponsorLookup interface {
	Sponsor(ctx context.Context, id MemberID) (*MemberID, error)
}

// WalkUpline returns memberID's ancestors, nearest first, at most maxDepth
// of them. The walk stops at a root member.
func WalkUpline(ctx context.Context, lookup SponsorLookup, memberID MemberID, maxDepth int) ([]MemberID, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	visited := map[MemberID]bool{memberID: true}
	chain := make([]MemberID, 0, maxDepth)

	current := memberID
	for len(chain) < maxDepth {
		sponsor, err := lookup.Sponsor(ctx, current)
		if err != nil {
			return nil, err
		}
		if sponsor == nil {
			break // Root reached
		}
		if visited[*sponsor] {
			return nil, &CycleError{MemberID: memberID, RepeatsAt: *sponsor, Walked: chain}
		}
		visited[*sponsor] = true
		chain = append(chain, *sponsor)
		current = *sponsor
	}

	return chain, nil
}
