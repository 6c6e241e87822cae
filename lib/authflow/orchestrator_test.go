package authflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateFirstAttemptSucceeds(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{
		loginCapableSession(testVerificationURL),
	}}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeAuthenticated, result.Outcome)
	require.Equal(t, 1, result.AttemptsUsed)
	require.Equal(t, testVerificationURL, result.FinalLocation)
	require.NotNil(t, result.Session)
	// the session is handed to the caller, not torn down
	require.False(t, factory.sessions[0].quit)
}

func TestAuthenticateExhaustsRetries(t *testing.T) {
	// every attempt bounces back to the sign-in page
	sessions := []*fakeSession{
		loginCapableSession(testEntryURL),
		loginCapableSession(testEntryURL),
		loginCapableSession(testEntryURL),
	}
	factory := &fakeFactory{sessions: sessions}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeExhaustedRetries, result.Outcome)
	require.Equal(t, 3, result.AttemptsUsed)
	require.Nil(t, result.Session)
	// exactly N sessions were created, and every one was torn down
	require.Equal(t, 3, factory.created)
	for i, s := range sessions {
		require.True(t, s.quit, "session %d was not torn down", i)
	}
}

func TestAuthenticateProfilesAreUniqueAcrossAttempts(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{
		loginCapableSession(testEntryURL),
		loginCapableSession(testEntryURL),
		loginCapableSession(testEntryURL),
	}}
	o := newTestOrchestrator(factory, newFakeClock())

	o.Authenticate(context.Background(), testConfig())

	require.Len(t, factory.profiles, 3)
	seen := map[string]bool{}
	for _, p := range factory.profiles {
		require.False(t, seen[p], "profile %q reused across attempts", p)
		seen[p] = true
	}
}

func TestAuthenticateRecoversOnThirdAttempt(t *testing.T) {
	sessions := []*fakeSession{
		loginCapableSession(testEntryURL),
		loginCapableSession(testEntryURL),
		loginCapableSession(testVerificationURL),
	}
	factory := &fakeFactory{sessions: sessions}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeAuthenticated, result.Outcome)
	require.Equal(t, 3, result.AttemptsUsed)
	require.True(t, sessions[0].quit)
	require.True(t, sessions[1].quit)
	require.False(t, sessions[2].quit)
}

func TestAuthenticateMissingIdentityIsConfigurationError(t *testing.T) {
	factory := &fakeFactory{}
	o := newTestOrchestrator(factory, newFakeClock())

	cfg := testConfig()
	cfg.Identity = Identity{}
	result := o.Authenticate(context.Background(), cfg)

	require.Equal(t, OutcomeConfigurationError, result.Outcome)
	require.Error(t, result.Err)
	// no attempt was ever made
	require.Zero(t, factory.created)
}

func TestAuthenticateSpawnFailureIsConfigurationError(t *testing.T) {
	factory := &fakeFactory{spawnErr: fmt.Errorf("chrome binary not found")}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeConfigurationError, result.Outcome)
	require.Zero(t, result.AttemptsUsed)
	require.ErrorContains(t, result.Err, "chrome binary not found")
}

func TestAuthenticateButtonNotFoundConsumesAttempt(t *testing.T) {
	// pages with no provider button at all
	bare := func() *fakeSession {
		s := newFakeSession()
		s.loc = testEntryURL
		return s
	}
	sessions := []*fakeSession{bare(), bare(), bare()}
	factory := &fakeFactory{sessions: sessions}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeExhaustedRetries, result.Outcome)
	require.Equal(t, 3, factory.created)
}

func TestAuthenticatePanickingDriverConsumesAttempt(t *testing.T) {
	panicking := loginCapableSession(testVerificationURL)
	panicking.locFn = func() string { panic("render process gone") }
	sessions := []*fakeSession{panicking, loginCapableSession(testVerificationURL)}
	factory := &fakeFactory{sessions: sessions}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeAuthenticated, result.Outcome)
	require.Equal(t, 2, result.AttemptsUsed)
	require.True(t, sessions[0].quit)
}

func TestAuthenticateIndependentVerificationRejectsFalsePositive(t *testing.T) {
	// the poller sees a verified-looking url, but fetching the protected
	// resource bounces the session back to sign-in
	flaky := loginCapableSession(testVerificationURL)
	flaky.onNavigate = func(s *fakeSession, url string) {
		if url == testVerificationURL && len(s.navigated) > 1 {
			s.loc = testEntryURL
			return
		}
		s.loc = url
	}
	sessions := []*fakeSession{flaky, loginCapableSession(testVerificationURL)}
	factory := &fakeFactory{sessions: sessions}
	o := newTestOrchestrator(factory, newFakeClock())

	result := o.Authenticate(context.Background(), testConfig())

	require.Equal(t, OutcomeAuthenticated, result.Outcome)
	require.Equal(t, 2, result.AttemptsUsed)
	require.True(t, sessions[0].quit)
}
