package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/store"
)

// IssueFailureKind classifies session issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidPrincipal
	IssueFailureSessionLimit
	IssueFailureIssue
	IssueFailureStore
)

// IssueResult carries the new pair or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Pair    IssuedPair
	TokenID string
}

// IssueStore is the subset of store.Store used at login.
type IssueStore interface {
	Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) (*store.RefreshToken, error)
	CountActive(ctx context.Context, userID string) (int, error)
}

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	Store            IssueStore
	StoreTimeout     time.Duration
	IssuePair        func(Principal) (IssuedPair, error)
	MaxActivePerUser int
}

// RunIssue mints a pair for p and persists its refresh token.
func RunIssue(ctx context.Context, p Principal, deps IssueDeps) IssueResult {
	if p.ID == "" {
		return IssueResult{Failure: IssueFailureInvalidPrincipal}
	}

	if deps.MaxActivePerUser > 0 {
		cctx, cancel := withTimeout(ctx, deps.StoreTimeout)
		n, err := deps.Store.CountActive(cctx, p.ID)
		cancel()
		if err != nil {
			return IssueResult{Failure: IssueFailureStore, Err: err}
		}
		if n >= deps.MaxActivePerUser {
			return IssueResult{Failure: IssueFailureSessionLimit}
		}
	}

	pair, err := deps.IssuePair(p)
	if err != nil {
		return IssueResult{Failure: IssueFailureIssue, Err: err}
	}

	cctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	rec, err := deps.Store.Create(cctx, p.ID, pair.RefreshToken, pair.RefreshExpiresAt)
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}
	return IssueResult{Pair: pair, TokenID: rec.ID}
}
