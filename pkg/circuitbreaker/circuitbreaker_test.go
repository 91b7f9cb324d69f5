package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/consult-api/pkg/logger"
)

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	cb := New(Settings{Name: "test", Timeout: time.Minute, ConsecutiveFailures: 3}, logger.NewNop())
	boom := errors.New("boom")

	calls := 0
	fail := func() (interface{}, error) {
		calls++
		return nil, boom
	}

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(fail)
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsOpen(err))
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(fail)
	assert.True(t, IsOpen(err))
	assert.Equal(t, 3, calls)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	cb := New(Settings{Name: "test", Timeout: time.Minute, ConsecutiveFailures: 2}, logger.NewNop())

	fail := func() (interface{}, error) { return nil, errors.New("boom") }
	ok := func() (interface{}, error) { return "ok", nil }

	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(ok)
	_, _ = cb.Execute(fail)

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreakerIgnoresErrorsReportedAsSuccessful(t *testing.T) {
	callerGone := errors.New("caller gone")
	cb := New(Settings{
		Name:                "test",
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, callerGone)
		},
	}, logger.NewNop())

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, callerGone })
		assert.ErrorIs(t, err, callerGone)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}
