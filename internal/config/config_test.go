package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("FYP_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "FYP API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "@every 5m", cfg.SweepSchedule)
	require.Equal(t, 4*time.Minute, cfg.SweepTimeout)
	require.Equal(t, workflow.CompletionSubmitted, cfg.CompletionPolicy)
	require.Equal(t, 3, cfg.WorkflowMaxAttempts)
	require.Equal(t, int64(20<<20), cfg.UploadMaxBytes)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("FYP_JWT_SECRET", "secret")
	t.Setenv("FYP_EVALUATION_COMPLETION_POLICY", "roster")
	t.Setenv("FYP_DEADLINE_SWEEP_SCHEDULE", "*/10 * * * *")
	t.Setenv("FYP_RESULTS_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, workflow.CompletionRoster, cfg.CompletionPolicy)
	require.Equal(t, "*/10 * * * *", cfg.SweepSchedule)
	require.Equal(t, 30*time.Second, cfg.ResultCacheTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	v := viper.New()
	_, err := fromViper(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("jwt.secret", "secret")
	v.Set("evaluation.completion_policy", "majority")
	_, err = fromViper(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("jwt.secret", "secret")
	v.Set("deadline.sweep_timeout", "soon")
	_, err = fromViper(v)
	require.ErrorContains(t, err, "deadline.sweep_timeout")
}
