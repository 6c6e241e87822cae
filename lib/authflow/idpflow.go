package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"classlens-backend/lib/browser"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type FlowOutcome int

const (
	FlowSubmitted FlowOutcome = iota
	FlowButtonNotFound
	FlowCredentialEntryFailed
)

func (o FlowOutcome) String() string {
	switch o {
	case FlowSubmitted:
		return "submitted"
	case FlowButtonNotFound:
		return "button_not_found"
	case FlowCredentialEntryFailed:
		return "credential_entry_failed"
	}
	return "unknown"
}

// ordered fallback list for the provider button; the console's markup
// changes across cohorts and experiments so no single locator is reliable
var providerButtonLocators = []browser.Locator{
	{Name: "continue with google (button)", XPath: `//button[contains(text(), 'Continue with Google')]`},
	{Name: "sign in with google (button)", XPath: `//button[contains(text(), 'Sign in with Google')]`},
	{Name: "continue with google (wrapped)", XPath: `//div[contains(text(), 'Continue with Google')]/parent::button`},
	{Name: "continue with google (any)", XPath: `//*[contains(text(), 'Continue with Google')]`},
}

var (
	emailField    = browser.Locator{Name: "email field", XPath: `//input[@type='email']`}
	emailNext     = browser.Locator{Name: "email next", XPath: `//*[@id='identifierNext']`}
	passwordField = browser.Locator{Name: "password field", XPath: `//input[@type='password']`}
	passwordNext  = browser.Locator{Name: "password next", XPath: `//*[@id='passwordNext']`}
)

// ProviderFlow drives the external OAuth login form: locate the provider
// button on the target's sign-in page, follow the redirect, submit the
// account identifier, submit the secret.
type ProviderFlow struct {
	suppressor Suppressor
	clock      Clock
	// providerDomain must appear in the location after the button click,
	// otherwise the click had no effect and the attempt is dead.
	providerDomain string
	stepWait       time.Duration
}

func NewProviderFlow(suppressor Suppressor, clock Clock) ProviderFlow {
	return ProviderFlow{
		suppressor:     suppressor,
		clock:          clock,
		providerDomain: "google",
		stepWait:       time.Second * 3,
	}
}

// firstVisible tries locators strictly in order and returns the first
// visible candidate. Only after every locator has missed does it give up.
func firstVisible(ctx context.Context, session browser.Session, locators []browser.Locator) (browser.Element, string) {
	for _, loc := range locators {
		candidates, err := session.FindCandidates(ctx, loc)
		if err != nil {
			continue
		}
		for _, el := range candidates {
			visible, err := session.IsVisible(ctx, el)
			if err != nil || !visible {
				continue
			}
			return el, loc.Name
		}
	}
	return nil, ""
}

// Execute runs the provider handshake on a session that is already sitting
// on the target's sign-in page. The suppressor runs before and after the
// button click; chrome's dialogs are observed to appear at exactly that
// transition.
func (f ProviderFlow) Execute(ctx context.Context, session browser.Session, identity Identity, state *AttemptState) FlowOutcome {
	ctx, span := tracer.Start(ctx, "ProviderFlow.Execute")
	defer span.End()

	button, locatorName := firstVisible(ctx, session, providerButtonLocators)
	if button == nil {
		span.SetStatus(codes.Error, "provider button not found")
		slog.Warn("identity provider button not found, all locators exhausted")
		return FlowButtonNotFound
	}
	span.SetAttributes(attribute.KeyValue{
		Key:   "button_locator",
		Value: attribute.StringValue(locatorName),
	})
	slog.Debug("identity provider button found", "locator", locatorName)

	f.suppressor.Suppress(ctx, session)
	err := session.Click(ctx, button)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider button click failed")
		return FlowCredentialEntryFailed
	}
	if f.clock.Sleep(ctx, f.stepWait) != nil {
		return FlowCredentialEntryFailed
	}
	f.suppressor.Suppress(ctx, session)

	location, err := session.Location(ctx)
	if err == nil {
		state.observe(location)
	}
	if err != nil || !strings.Contains(strings.ToLower(location), f.providerDomain) {
		span.SetStatus(codes.Error, "no redirect to identity provider")
		slog.Warn("click did not reach the identity provider", "location", location)
		return FlowCredentialEntryFailed
	}

	state.setPhase(PhaseSubmittingCredentials)

	// the two submissions are independently fallible; provider forms do
	// not recover cleanly mid-way so the first failure ends the attempt
	err = f.submitField(ctx, session, emailField, identity.Email, emailNext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "email entry failed")
		return FlowCredentialEntryFailed
	}
	err = f.submitField(ctx, session, passwordField, identity.Password, passwordNext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password entry failed")
		return FlowCredentialEntryFailed
	}

	return FlowSubmitted
}

func (f ProviderFlow) submitField(ctx context.Context, session browser.Session, field browser.Locator, value string, advance browser.Locator) error {
	f.suppressor.Suppress(ctx, session)

	input, _ := firstVisible(ctx, session, []browser.Locator{field})
	if input == nil {
		return fieldError{field.Name, "not found"}
	}
	err := session.Type(ctx, input, value)
	if err != nil {
		return fieldError{field.Name, err.Error()}
	}

	next, _ := firstVisible(ctx, session, []browser.Locator{advance})
	if next == nil {
		return fieldError{advance.Name, "not found"}
	}
	err = session.Click(ctx, next)
	if err != nil {
		return fieldError{advance.Name, err.Error()}
	}

	return f.clock.Sleep(ctx, f.stepWait)
}

type fieldError struct {
	field  string
	reason string
}

func (e fieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.reason)
}
