package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(defaults())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 3, cfg.Capture.Workers)
	assert.Equal(t, 5, cfg.Capture.MaxCamerasPerIncident)
	assert.Equal(t, 150, cfg.Capture.SegmentLimit())
	assert.Equal(t, "xflow.m3u8", cfg.Stream.VariantFilename)
	assert.Equal(t, "District 2", cfg.Auth.DefaultSystemSourceID)
	assert.Equal(t, []string{"crash", "accident", "collision", "wreck"}, cfg.Monitor.CrashKeywords)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestFromViperTrimsBaseURL(t *testing.T) {
	v := defaults()
	v.Set("feed.base_url", "https://example.test///")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", cfg.Feed.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string

		key   string
		value any

		expectedErr string
	}{
		{
			description: "rejects a zero poll interval",
			key:         "monitor.interval",
			value:       "0s",
			expectedErr: "monitor.interval",
		},
		{
			description: "rejects a negative worker count",
			key:         "capture.workers",
			value:       -1,
			expectedErr: "capture.workers",
		},
		{
			description: "rejects a zero page size",
			key:         "feed.page_size",
			value:       0,
			expectedErr: "feed.page_size",
		},
		{
			description: "rejects an empty exchange endpoint",
			key:         "auth.exchange_url",
			value:       "",
			expectedErr: "auth.exchange_url",
		},
		{
			description: "rejects a zero feed timeout",
			key:         "feed.timeout",
			value:       "0s",
			expectedErr: "feed.timeout",
		},
		{
			description: "rejects a zero auth timeout",
			key:         "auth.timeout",
			value:       "0s",
			expectedErr: "auth.timeout",
		},
		{
			description: "rejects a negative stream timeout",
			key:         "stream.timeout",
			value:       "-1s",
			expectedErr: "stream.timeout",
		},
		{
			description: "rejects zero segment concurrency",
			key:         "stream.segment_concurrency",
			value:       0,
			expectedErr: "stream.segment_concurrency",
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			v := defaults()
			v.Set(test.key, test.value)

			_, err := FromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.expectedErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	v := defaults()
	v.Set("monitor.interval", "0s")
	v.Set("capture.workers", 0)

	_, err := FromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor.interval")
	assert.Contains(t, err.Error(), "capture.workers")
}

func TestSegmentLimit(t *testing.T) {
	tests := []struct {
		description string

		capture CaptureConfig

		expected int
	}{
		{
			description: "five minutes of two second segments",
			capture:     CaptureConfig{Duration: 5 * time.Minute, NominalSegmentDuration: 2 * time.Second},
			expected:    150,
		},
		{
			description: "duration shorter than one segment still captures one",
			capture:     CaptureConfig{Duration: time.Second, NominalSegmentDuration: 2 * time.Second},
			expected:    1,
		},
		{
			description: "zero nominal duration captures one",
			capture:     CaptureConfig{Duration: time.Minute},
			expected:    1,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			assert.Equal(t, test.expected, test.capture.SegmentLimit())
		})
	}
}

func TestValidateRejectsDisabledTimeouts(t *testing.T) {
	v := defaults()
	v.Set("feed.timeout", "0s")
	v.Set("auth.timeout", "0s")
	v.Set("stream.timeout", "0s")

	_, err := FromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.timeout")
	assert.Contains(t, err.Error(), "auth.timeout")
	assert.Contains(t, err.Error(), "stream.timeout")
}
