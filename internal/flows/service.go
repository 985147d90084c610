package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Rotate.Store != nil && s.deps.Validate.ParseAccess != nil
}

func (s Service) Rotate(ctx context.Context, rawToken string) RotateResult {
	return RunRotate(ctx, rawToken, s.deps.Rotate)
}

func (s Service) Issue(ctx context.Context, p Principal) IssueResult {
	return RunIssue(ctx, p, s.deps.Issue)
}

func (s Service) Revoke(ctx context.Context, rawToken string) error {
	return RunRevoke(ctx, rawToken, s.deps.Logout)
}

func (s Service) RevokeAll(ctx context.Context, userID string) (int, error) {
	return RunRevokeAll(ctx, userID, s.deps.Logout)
}

func (s Service) Validate(tokenStr string) ValidateResult {
	return RunValidate(tokenStr, s.deps.Validate)
}
