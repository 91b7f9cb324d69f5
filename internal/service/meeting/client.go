package meeting

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type googleCalendarClient struct {
	svc *calendar.Service
}

// NewGoogleCalendarClient authenticates as the service account in
// credentialsJSON. ctx scopes token refreshes and should outlive requests.
func NewGoogleCalendarClient(ctx context.Context, credentialsJSON []byte) (CalendarClient, error) {
	jwtCfg, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &googleCalendarClient{svc: svc}, nil
}

// InsertEvent asks Calendar to provision a Meet conference and to mail
// the attendees.
func (c *googleCalendarClient) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	return c.svc.Events.Insert(calendarID, event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
}
