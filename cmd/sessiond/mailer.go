package main

import (
	"context"

	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
)

// logMailer stands in for a mail relay; it records that a reset was requested.
type logMailer struct {
	logger zerolog.Logger
}

func (m logMailer) SendPasswordReset(_ context.Context, p goSession.Principal) error {
	m.logger.Info().Str("user_id", p.ID).Msg("password reset requested")
	return nil
}
