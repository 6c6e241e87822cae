package authflow

import (
	"context"
	"testing"

	"classlens-backend/lib/browser"

	"github.com/stretchr/testify/require"
)

func TestExecuteHappyPath(t *testing.T) {
	s := loginCapableSession(testVerificationURL)
	flow := NewProviderFlow(NewSuppressor(), newFakeClock())
	state := &AttemptState{Attempt: 1}

	outcome := flow.Execute(context.Background(), s, Identity{Email: "admin@school.test", Password: "hunter2"}, state)

	require.Equal(t, FlowSubmitted, outcome)
	require.Equal(t, "admin@school.test", s.typed["email"])
	require.Equal(t, "hunter2", s.typed["password"])
	require.Equal(t, []string{"google button", "email next", "password next"}, s.clicked)
	require.Equal(t, PhaseSubmittingCredentials, state.Phase)
}

func TestExecuteFallsBackThroughButtonLocators(t *testing.T) {
	s := loginCapableSession(testVerificationURL)
	// first two locators miss entirely, only the div-wrapped variant hits
	button := s.find[providerButtonLocators[0].XPath]
	delete(s.find, providerButtonLocators[0].XPath)
	s.find[providerButtonLocators[2].XPath] = button

	flow := NewProviderFlow(NewSuppressor(), newFakeClock())
	outcome := flow.Execute(context.Background(), s, Identity{Email: "a@b.test", Password: "pw"}, &AttemptState{})

	require.Equal(t, FlowSubmitted, outcome)
}

func TestExecuteButtonNotFoundAfterAllLocators(t *testing.T) {
	s := newFakeSession()
	s.loc = testEntryURL

	flow := NewProviderFlow(NewSuppressor(), newFakeClock())
	outcome := flow.Execute(context.Background(), s, Identity{Email: "a@b.test", Password: "pw"}, &AttemptState{})

	require.Equal(t, FlowButtonNotFound, outcome)
	require.Empty(t, s.clicked)
}

func TestExecuteInvisibleButtonDoesNotCount(t *testing.T) {
	s := newFakeSession()
	s.loc = testEntryURL
	s.find[providerButtonLocators[0].XPath] = []browser.Element{
		&fakeElement{name: "hidden google button", visible: false},
	}

	flow := NewProviderFlow(NewSuppressor(), newFakeClock())
	outcome := flow.Execute(context.Background(), s, Identity{Email: "a@b.test", Password: "pw"}, &AttemptState{})

	require.Equal(t, FlowButtonNotFound, outcome)
}

func TestExecuteFailsWhenClickDoesNotRedirect(t *testing.T) {
	s := loginCapableSession(testVerificationURL)
	// a click that has no effect leaves the session on the entry page
	s.find[providerButtonLocators[0].XPath] = []browser.Element{
		&fakeElement{name: "dead google button", visible: true},
	}

	flow := NewProviderFlow(NewSuppressor(), newFakeClock())
	outcome := flow.Execute(context.Background(), s, Identity{Email: "a@b.test", Password: "pw"}, &AttemptState{})

	require.Equal(t, FlowCredentialEntryFailed, outcome)
}

func TestExecuteFailsWhenPasswordFieldMissing(t *testing.T) {
	s := loginCapableSession(testVerificationURL)
	delete(s.find, passwordField.XPath)

	flow := NewProviderFlow(NewSuppressor(), newFakeClock())
	outcome := flow.Execute(context.Background(), s, Identity{Email: "a@b.test", Password: "pw"}, &AttemptState{})

	require.Equal(t, FlowCredentialEntryFailed, outcome)
	// the email step already went through, no partial recovery afterwards
	require.Equal(t, "a@b.test", s.typed["email"])
	require.NotContains(t, s.clicked, "password next")
}
