package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestWithBuildersChain(t *testing.T) {
	c := Default().
		WithFrameIntervalMs(50).
		WithTrackTTLMs(5000).
		WithServiceLingerSec(45)
	assert.Equal(t, 50, c.FrameIntervalMs)
	assert.Equal(t, 5000, c.TrackTTLMs)
	assert.Equal(t, 45, c.ServiceLingerSec)
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsNonPositiveFrameInterval(t *testing.T) {
	c := Default().WithFrameIntervalMs(0)
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNegativeGrace(t *testing.T) {
	c := Default().WithVisitEndGraceSec(-1)
	assert.Error(t, c.Validate())
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MOCK_LIDAR", "true")
	t.Setenv("TRACK_TTL_MS", "3000")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.True(t, c.MockLiDAR)
	assert.Equal(t, 3000, c.TrackTTLMs)
}

func TestFromEnvRejectsInvalidBool(t *testing.T) {
	t.Setenv("MOCK_LIDAR", "not-a-bool")
	_, err := FromEnv()
	assert.Error(t, err)
}
