package meeting

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const meetBaseURL = "https://meet.google.com/"

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	lowerAlnum   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// SyntheticProvider produces meeting links without calling out. The
// links follow Meet's xxx-xxxx-xxx shape but are not backed by a room.
type SyntheticProvider struct {
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSyntheticProvider(m *metrics.Metrics) *SyntheticProvider {
	return &SyntheticProvider{metrics: m, now: time.Now}
}

func (p *SyntheticProvider) CreateMeeting(_ context.Context, _ Request) model.MeetingResource {
	p.metrics.MeetingResources.WithLabelValues("synthetic").Inc()

	return model.MeetingResource{
		ExternalID: fmt.Sprintf("mock-event-%d-%s", p.now().UnixMilli(), randomString(lowerAlnum, 6)),
		JoinURL:    meetBaseURL + MeetingSlug(),
		IsReal:     false,
	}
}

// MeetingSlug returns a random code such as "kqz-wmtr-bpa".
func MeetingSlug() string {
	return randomString(lowerLetters, 3) + "-" + randomString(lowerLetters, 4) + "-" + randomString(lowerLetters, 3)
}

func randomString(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
