package authflow

import (
	"fmt"
	"net/url"
	"time"
)

// Identity is the credential pair submitted to the identity provider.
type Identity struct {
	Email    string
	Password string
}

// SessionConfig describes one authentication run. It is constructed once per
// Authenticate call and never mutated afterwards.
//
// The durations are empirical knobs tuned against the observed flakiness of
// a specific provider, not correctness requirements. All of them have
// defaults and can be overridden freely.
type SessionConfig struct {
	Identity Identity
	Headless bool

	// EntryURL is the target site's own sign-in page, where the identity
	// provider button lives.
	EntryURL string
	// VerificationURL is a protected resource that only an authenticated
	// session can reach without being bounced to sign-in.
	VerificationURL string

	MaxAttempts int
	// PollTimeout bounds a single attempt's completion polling.
	PollTimeout time.Duration
	// PollInterval is the fixed sleep between completion polls.
	PollInterval time.Duration
	// CallbackGrace is how long after polling starts a stranded callback
	// page is given to redirect on its own before recovery kicks in.
	CallbackGrace time.Duration
	// SignInGrace is how long after polling starts a sign-in page is
	// still considered transient rather than a rejected login.
	SignInGrace time.Duration
	// RetryBackoff is the fixed wait between failed attempts.
	RetryBackoff time.Duration
	// StepWait is the settling pause after form submissions and forced
	// navigations.
	StepWait time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = time.Second * 180
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second * 5
	}
	if c.CallbackGrace == 0 {
		c.CallbackGrace = time.Second * 30
	}
	if c.SignInGrace == 0 {
		c.SignInGrace = time.Second * 30
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second * 10
	}
	if c.StepWait == 0 {
		c.StepWait = time.Second * 3
	}
	return c
}

// Validate rejects configurations that can never authenticate. A failure
// here surfaces as a configuration error before any attempt is made.
func (c SessionConfig) Validate() error {
	if c.Identity.Email == "" || c.Identity.Password == "" {
		return fmt.Errorf("identity credentials are missing")
	}
	if c.EntryURL == "" {
		return fmt.Errorf("entry url is missing")
	}
	if c.VerificationURL == "" {
		return fmt.Errorf("verification url is missing")
	}
	parsed, err := url.Parse(c.VerificationURL)
	if err != nil {
		return fmt.Errorf("invalid verification url: %w", err)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("verification url has no host: %s", c.VerificationURL)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
