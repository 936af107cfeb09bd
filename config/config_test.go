package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/circulation-engine/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.LoanPolicy().TermDays)
	assert.Equal(t, 30, cfg.LoanPolicy().HorizonDays)
	assert.Equal(t, "2.00", cfg.FineSchedule().DailyRate.StringFixed(2))
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
		"loan": {"term_days": 21, "horizon_days": 60},
		"fines": {"daily_rate": "0.50"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 21, cfg.LoanPolicy().TermDays)
	assert.Equal(t, 60, cfg.LoanPolicy().HorizonDays)
	assert.Equal(t, "0.50", cfg.FineSchedule().DailyRate.StringFixed(2))
}

func TestParse_PartialOverride_KeepsDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`{"loan": {"term_days": 7, "horizon_days": 30}}`))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.LoanPolicy().TermDays)
	assert.Equal(t, "2.00", cfg.FineSchedule().DailyRate.StringFixed(2))
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"malformed", `{`},
		{"zero term", `{"loan": {"term_days": 0, "horizon_days": 30}}`},
		{"horizon shorter than term", `{"loan": {"term_days": 20, "horizon_days": 10}}`},
		{"rate not decimal", `{"fines": {"daily_rate": "two"}}`},
		{"negative rate", `{"fines": {"daily_rate": "-1.00"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.json))
			assert.Error(t, err)
		})
	}
}
