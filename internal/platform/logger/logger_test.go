package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToInfo(t *testing.T) {
	t.Setenv("MATCHING_LOG_LEVEL", "")
	log := New("matching-service")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewHonorsLogLevelEnv(t *testing.T) {
	t.Setenv("MATCHING_LOG_LEVEL", "debug")
	log := New("matching-service")
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewIgnoresInvalidLevel(t *testing.T) {
	t.Setenv("MATCHING_LOG_LEVEL", "loud")
	log := New("matching-service")
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
