package authflow

import (
	"context"
	"time"

	"classlens-backend/lib/browser"
)

// fakeClock advances instantly on Sleep so deadline-bounded loops resolve
// without wall time passing.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.now = c.now.Add(d)
	return nil
}

type fakeElement struct {
	name    string
	visible bool
	onClick func(s *fakeSession)
}

type fakeSession struct {
	loc        string
	locFn      func() string
	locErr     error
	content    string
	find       map[string][]browser.Element
	navigated  []string
	clicked    []string
	typed      map[string]string
	onNavigate func(s *fakeSession, url string)
	quit       bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		find:  map[string][]browser.Element{},
		typed: map[string]string{},
	}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	if s.onNavigate != nil {
		s.onNavigate(s, url)
	} else {
		s.loc = url
	}
	return nil
}

func (s *fakeSession) Location(ctx context.Context) (string, error) {
	if s.locFn != nil {
		return s.locFn(), s.locErr
	}
	return s.loc, s.locErr
}

func (s *fakeSession) FindCandidates(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	return s.find[loc.XPath], nil
}

func (s *fakeSession) IsVisible(ctx context.Context, el browser.Element) (bool, error) {
	return el.(*fakeElement).visible, nil
}

func (s *fakeSession) Click(ctx context.Context, el browser.Element) error {
	fe := el.(*fakeElement)
	s.clicked = append(s.clicked, fe.name)
	if fe.onClick != nil {
		fe.onClick(s)
	}
	return nil
}

func (s *fakeSession) Type(ctx context.Context, el browser.Element, text string) error {
	s.typed[el.(*fakeElement).name] = text
	return nil
}

func (s *fakeSession) RunScript(ctx context.Context, js string, out any) error {
	if sp, ok := out.(*string); ok {
		*sp = s.content
	}
	return nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, nil
}

func (s *fakeSession) Quit() error {
	s.quit = true
	return nil
}

const (
	testEntryURL        = "https://app.acely.test/sign-in"
	testVerificationURL = "https://app.acely.test/team/admin-console"
	testProviderURL     = "https://accounts.google.test/v3/signin/identifier"
)

// loginCapableSession wires up a fake sign-in page whose provider button,
// email form and password form all work; submitting the password lands the
// session on finalLoc.
func loginCapableSession(finalLoc string) *fakeSession {
	s := newFakeSession()
	s.loc = testEntryURL

	button := &fakeElement{name: "google button", visible: true, onClick: func(s *fakeSession) {
		s.loc = testProviderURL
	}}
	s.find[providerButtonLocators[0].XPath] = []browser.Element{button}

	s.find[emailField.XPath] = []browser.Element{&fakeElement{name: "email", visible: true}}
	s.find[emailNext.XPath] = []browser.Element{&fakeElement{name: "email next", visible: true}}
	s.find[passwordField.XPath] = []browser.Element{&fakeElement{name: "password", visible: true}}
	s.find[passwordNext.XPath] = []browser.Element{&fakeElement{name: "password next", visible: true, onClick: func(s *fakeSession) {
		s.loc = finalLoc
	}}}

	return s
}

type fakeFactory struct {
	sessions []*fakeSession
	profiles []string
	spawnErr error
	created  int
}

func (f *fakeFactory) NewSession(ctx context.Context, headless bool, profile string) (browser.Session, error) {
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.profiles = append(f.profiles, profile)
	s := f.sessions[f.created]
	f.created++
	return s, nil
}

func newTestOrchestrator(factory SessionFactory, clock Clock) *Orchestrator {
	suppressor := NewSuppressor()
	return &Orchestrator{
		factory:      factory,
		suppressor:   suppressor,
		flow:         NewProviderFlow(suppressor, clock),
		poller:       NewPoller(suppressor, clock),
		clock:        clock,
		processStart: time.Now(),
	}
}

func testConfig() SessionConfig {
	return SessionConfig{
		Identity:        Identity{Email: "admin@school.test", Password: "hunter2"},
		EntryURL:        testEntryURL,
		VerificationURL: testVerificationURL,
		MaxAttempts:     3,
		PollTimeout:     time.Second * 60,
		PollInterval:    time.Second * 5,
		CallbackGrace:   time.Second * 15,
		SignInGrace:     time.Second * 10,
		RetryBackoff:    time.Second * 10,
		StepWait:        time.Second,
	}
}
