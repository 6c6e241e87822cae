package authflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsMissingFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *SessionConfig)
	}{
		{"missing email", func(c *SessionConfig) { c.Identity.Email = "" }},
		{"missing password", func(c *SessionConfig) { c.Identity.Password = "" }},
		{"missing entry url", func(c *SessionConfig) { c.EntryURL = "" }},
		{"missing verification url", func(c *SessionConfig) { c.VerificationURL = "" }},
		{"verification url without host", func(c *SessionConfig) { c.VerificationURL = "/team/admin-console" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestWithDefaultsFillsEmpiricalDurations(t *testing.T) {
	cfg := SessionConfig{
		Identity:        Identity{Email: "a@b.test", Password: "pw"},
		EntryURL:        testEntryURL,
		VerificationURL: testVerificationURL,
	}.withDefaults()

	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, time.Second*180, cfg.PollTimeout)
	require.Equal(t, time.Second*5, cfg.PollInterval)
	require.Equal(t, time.Second*30, cfg.CallbackGrace)
	require.Equal(t, time.Second*10, cfg.RetryBackoff)
}

func TestWithDefaultsKeepsOverrides(t *testing.T) {
	cfg := testConfig().withDefaults()
	require.Equal(t, time.Second*60, cfg.PollTimeout)
	require.Equal(t, time.Second*15, cfg.CallbackGrace)
}
