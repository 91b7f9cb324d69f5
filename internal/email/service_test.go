package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/consult-api/pkg/logger"
)

type recordingSender struct {
	messages []*gomail.Message
	err      error
}

func (r *recordingSender) DialAndSend(m ...*gomail.Message) error {
	r.messages = append(r.messages, m...)
	return r.err
}

func TestSendCustomComposesMessage(t *testing.T) {
	sender := &recordingSender{}
	svc := NewSMTPService(sender, "no-reply@consult.local")

	err := svc.SendCustom(context.Background(), "patient@example.com", "Appointment booked", "See you soon")
	require.NoError(t, err)
	require.Len(t, sender.messages, 1)

	m := sender.messages[0]
	assert.Equal(t, []string{"patient@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Appointment booked"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "See you soon")
}

func TestSendCustomErrors(t *testing.T) {
	svc := NewSMTPService(&recordingSender{err: errors.New("auth failed")}, "no-reply@consult.local")

	err := svc.SendCustom(context.Background(), "patient@example.com", "s", "b")
	assert.ErrorContains(t, err, "auth failed")

	err = svc.SendCustom(context.Background(), "", "s", "b")
	assert.Error(t, err)
}

func TestNewServiceWithoutHostOnlyLogs(t *testing.T) {
	svc := NewService(Config{}, logger.NewNop())

	_, ok := svc.(*logService)
	assert.True(t, ok)
	assert.NoError(t, svc.SendCustom(context.Background(), "patient@example.com", "s", "b"))
}
