// Package meeting attaches video meeting links to appointments.
//
// Two Provider implementations exist: GoogleProvider books a Google
// Calendar event with a Meet conference, SyntheticProvider fabricates a
// Meet-shaped link locally. NewProvider chooses one at startup from the
// credentials it can find. Neither implementation ever fails: the Google
// provider answers every upstream error with a synthetic resource.
package meeting

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// ErrProviderDegraded marks a provider call that was answered with a
// synthetic resource. It is logged and counted, never returned to callers.
var ErrProviderDegraded = errors.New("meeting provider degraded")

type Request struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Location    string
}

type Provider interface {
	// CreateMeeting always returns a resource with a JoinURL. Every call
	// creates a new resource upstream, so callers must not retry it.
	CreateMeeting(ctx context.Context, req Request) model.MeetingResource
}

type Config struct {
	// CredentialsFile is probed before the default locations.
	CredentialsFile string
	Google          GoogleConfig
}

// NewProvider resolves credentials once. Without a usable service
// account the synthetic provider serves the whole process lifetime.
func NewProvider(ctx context.Context, cfg Config, log *logger.Logger, m *metrics.Metrics) Provider {
	synthetic := NewSyntheticProvider(m)

	creds, err := ResolveCredentials(CandidatePaths(cfg.CredentialsFile))
	if err != nil {
		log.ZL.Warn().Err(err).Msg("calendar credentials unavailable, meetings will use synthetic links")
		return synthetic
	}

	client, err := NewGoogleCalendarClient(ctx, creds.JSON)
	if err != nil {
		log.ZL.Warn().Err(err).Str("path", creds.Path).Msg("calendar client init failed, meetings will use synthetic links")
		return synthetic
	}

	log.ZL.Info().
		Str("path", creds.Path).
		Str("client_email", creds.ClientEmail).
		Msg("calendar provider enabled")
	return NewGoogleProvider(client, cfg.Google, synthetic, log, m)
}
