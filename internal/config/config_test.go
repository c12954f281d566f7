package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sphere-social/sphere-matching/internal/model"
)

func TestResolveDefaultsDerivesDriver(t *testing.T) {
	cfg := NewForTesting()
	cfg.DBDriver = "auto"
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "sqlite", cfg.DBDriver)

	cfg = NewForTesting()
	cfg.BuildTarget = "cloud"
	cfg.DBDriver = "auto"
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "postgres", cfg.DBDriver)
}

func TestResolveDefaultsRejectsBadValues(t *testing.T) {
	cfg := NewForTesting()
	cfg.BuildTarget = "mainframe"
	require.Error(t, cfg.ResolveDefaults())

	cfg = NewForTesting()
	cfg.MatchThreshold = 1.5
	require.Error(t, cfg.ResolveDefaults())

	cfg = NewForTesting()
	cfg.ScoreWorkers = 0
	require.Error(t, cfg.ResolveDefaults())
}

func TestResolveDefaultsRequiresWeightsSummingToOne(t *testing.T) {
	cfg := NewForTesting()
	require.NoError(t, cfg.ResolveDefaults())

	cfg.ProfileWeight = 0.40
	cfg.InterestsWeight = 0.40
	cfg.ExpertiseWeight = 0.40
	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestMatchThresholdFor(t *testing.T) {
	cfg := NewForTesting()
	assert.Equal(t, cfg.MatchThreshold, cfg.MatchThresholdFor(model.EventScope("ev-1")))
	assert.Equal(t, cfg.CityMatchThreshold, cfg.MatchThresholdFor(model.CityScope("Lisbon")))
	assert.Equal(t, cfg.CrossCommunityMatchThreshold, cfg.MatchThresholdFor(model.CrossCommunityScope("c-1")))
	assert.Equal(t, cfg.MatchThreshold, cfg.MatchThresholdFor(model.GlobalScope()))
}
