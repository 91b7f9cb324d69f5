package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kolkata", cfg.Scheduling.TimeZone)
	assert.Equal(t, DefaultSlotTemplate, cfg.Scheduling.SlotTemplate)
	assert.Equal(t, 30, cfg.Scheduling.DefaultDuration)
	assert.Equal(t, 8*time.Second, cfg.Meeting.Timeout)
	assert.Equal(t, "primary", cfg.Meeting.CalendarID)
	assert.Equal(t, "appointments", cfg.Outbox.Channel)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 12*time.Hour, cfg.CORS.MaxAge)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9090
scheduling:
  time_zone: UTC
  slot_template: ["08:00", "08:30"]
meeting:
  timeout: 6s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), content, 0o600))

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Join(dir, "config.yml"))
	require.NoError(t, v.ReadInConfig())

	cfg, err := unmarshal(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"08:00", "08:30"}, cfg.Scheduling.SlotTemplate)
	assert.Equal(t, 6*time.Second, cfg.Meeting.Timeout)

	loc, err := cfg.Scheduling.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestValidateRejectsUnknownZone(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("scheduling.time_zone", "Mars/Olympus")

	_, err := unmarshal(v)
	assert.Error(t, err)
}

func TestValidateBoundsDefaultDuration(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -15, true},
		{"minimum", 1, false},
		{"maximum", 240, false},
		{"above maximum", 241, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set("scheduling.default_duration", tt.minutes)

			_, err := unmarshal(v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "consult", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=consult sslmode=disable", c.DSN())
}
