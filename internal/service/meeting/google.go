package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/circuitbreaker"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const (
	defaultTimeout  = 8 * time.Second
	minTimeout      = 5 * time.Second
	maxTimeout      = 10 * time.Second
	defaultLocation = "Google Meet"
)

var (
	errMalformedResponse = errors.New("calendar response has no join url or event id")
	// errCallerDone marks calls abandoned because the booking request
	// itself was cancelled; they do not count against the breaker.
	errCallerDone = errors.New("caller abandoned calendar request")
)

// CalendarClient inserts events into a calendar. The production
// implementation is googleCalendarClient; tests substitute fakes.
type CalendarClient interface {
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
}

type GoogleConfig struct {
	CalendarID string
	// TimeZone is sent with event start and end, e.g. Asia/Kolkata.
	TimeZone          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// GoogleProvider creates a Calendar event with a Meet conference per
// appointment. Calls are rate limited to the Calendar quota, bounded by
// Timeout and guarded by a circuit breaker; any failure falls back to
// the synthetic provider.
type GoogleProvider struct {
	client   CalendarClient
	cfg      GoogleConfig
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	fallback Provider
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewGoogleProvider(client CalendarClient, cfg GoogleConfig, fallback Provider, log *logger.Logger, m *metrics.Metrics) *GoogleProvider {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	cfg.Timeout = clampTimeout(cfg.Timeout)
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &GoogleProvider{
		client:   client,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		fallback: fallback,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}

	p.breaker = circuitbreaker.New(circuitbreaker.Settings{
		Name:                "google-calendar",
		Timeout:             cfg.BreakerTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerDone)
		},
	}, log)

	return p
}

// clampTimeout keeps the Calendar call inside 5-10s; zero means the default.
func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return defaultTimeout
	case d < minTimeout:
		return minTimeout
	case d > maxTimeout:
		return maxTimeout
	default:
		return d
	}
}

func (p *GoogleProvider) CreateMeeting(ctx context.Context, req Request) model.MeetingResource {
	start := time.Now()
	res, err := p.create(ctx, req)
	p.metrics.ProviderLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := degradedReason(err)
		p.metrics.ProviderDegraded.WithLabelValues(reason).Inc()
		p.logger.ZL.Warn().
			Err(err).
			Str("reason", reason).
			Time("start", req.Start).
			Msg("calendar provider degraded, attaching synthetic meeting")
		return p.fallback.CreateMeeting(ctx, req)
	}

	p.metrics.MeetingResources.WithLabelValues("real").Inc()
	return res
}

func (p *GoogleProvider) create(parent context.Context, req Request) (model.MeetingResource, error) {
	ctx, cancel := context.WithTimeout(parent, p.cfg.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return model.MeetingResource{}, fmt.Errorf("%w: rate limiter: %w", ErrProviderDegraded, err)
	}

	event := p.buildEvent(req)
	out, err := p.breaker.Execute(func() (interface{}, error) {
		created, err := p.insert(ctx, event)
		if err != nil {
			if parent.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerDone, err)
			}
			return nil, err
		}
		joinURL, err := JoinURL(created)
		if err != nil {
			return nil, err
		}
		if created.Id == "" {
			return nil, errMalformedResponse
		}
		return model.MeetingResource{ExternalID: created.Id, JoinURL: joinURL, IsReal: true}, nil
	})
	if err != nil {
		return model.MeetingResource{}, fmt.Errorf("%w: %w", ErrProviderDegraded, err)
	}
	return out.(model.MeetingResource), nil
}

// insert returns when the client does or when ctx expires, whichever is
// first, so a client that ignores its context cannot stall a booking.
func (p *GoogleProvider) insert(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	type result struct {
		event *calendar.Event
		err   error
	}
	done := make(chan result, 1)
	go func() {
		ev, err := p.client.InsertEvent(ctx, p.cfg.CalendarID, event)
		done <- result{ev, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.event == nil {
			return nil, errMalformedResponse
		}
		return r.event, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *GoogleProvider) buildEvent(req Request) *calendar.Event {
	attendees := make([]*calendar.EventAttendee, 0, len(req.Attendees))
	for _, email := range req.Attendees {
		if email == "" {
			continue
		}
		attendees = append(attendees, &calendar.EventAttendee{Email: email, ResponseStatus: "needsAction"})
	}

	location := req.Location
	if location == "" {
		location = defaultLocation
	}

	return &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Location:    location,
		Start: &calendar.EventDateTime{
			DateTime: req.Start.Format(time.RFC3339),
			TimeZone: p.cfg.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: req.End.Format(time.RFC3339),
			TimeZone: p.cfg.TimeZone,
		},
		Attendees: attendees,
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             fmt.Sprintf("meet-%d-%s", p.now().UnixMilli(), randomString(lowerAlnum, 9)),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
		ColorId: "5",
	}
}

// JoinURL picks the richest link in a created event: the Meet link,
// then a video entry point, then any entry point, and finally a URL
// built from the conference id.
func JoinURL(ev *calendar.Event) (string, error) {
	if ev == nil {
		return "", errMalformedResponse
	}
	if ev.HangoutLink != "" {
		return ev.HangoutLink, nil
	}

	cd := ev.ConferenceData
	if cd == nil {
		return "", errMalformedResponse
	}
	for _, ep := range cd.EntryPoints {
		if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
			return ep.Uri, nil
		}
	}
	for _, ep := range cd.EntryPoints {
		if ep != nil && ep.Uri != "" {
			return ep.Uri, nil
		}
	}
	if cd.ConferenceId != "" {
		return meetBaseURL + cd.ConferenceId, nil
	}
	return "", errMalformedResponse
}

func degradedReason(err error) string {
	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case circuitbreaker.IsOpen(err):
		return "circuit_open"
	case errors.Is(err, errMalformedResponse):
		return "malformed_response"
	case errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden):
		return "auth"
	default:
		return "provider_error"
	}
}
