package authflow

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"classlens-backend/lib/browser"

	"go.opentelemetry.io/otel/attribute"
)

type LocationClass int

const (
	LocationUnknown LocationClass = iota
	LocationCallback
	LocationSignIn
	LocationVerified
)

func (c LocationClass) String() string {
	switch c {
	case LocationCallback:
		return "callback"
	case LocationSignIn:
		return "sign_in"
	case LocationVerified:
		return "verified"
	}
	return "unknown"
}

// ClassifyLocation buckets a browser location by URL shape. The external
// system offers no structured signal of login state, so substring rules on
// the URL are a deliberate choice; keeping them in one place keeps them
// independently testable.
func ClassifyLocation(location, verificationURL string) LocationClass {
	lower := strings.ToLower(location)
	if strings.Contains(lower, "callback") {
		return LocationCallback
	}
	if strings.Contains(lower, "sign-in") || strings.Contains(lower, "login") {
		return LocationSignIn
	}
	if hostname(location) != "" && hostname(location) == hostname(verificationURL) {
		return LocationVerified
	}
	return LocationUnknown
}

func hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

type PollOutcome int

const (
	PollVerified PollOutcome = iota
	PollRedirectLoopTimeout
	PollBouncedToSignIn
)

func (o PollOutcome) String() string {
	switch o {
	case PollVerified:
		return "verified"
	case PollRedirectLoopTimeout:
		return "redirect_loop_timeout"
	case PollBouncedToSignIn:
		return "bounced_to_sign_in"
	}
	return "unknown"
}

// Poller watches the session's location after credentials have been
// submitted and decides how the attempt resolved. Every wait inside it is
// bounded, so it can never block past PollTimeout.
type Poller struct {
	suppressor Suppressor
	clock      Clock
}

func NewPoller(suppressor Suppressor, clock Clock) Poller {
	return Poller{
		suppressor: suppressor,
		clock:      clock,
	}
}

// PollUntilResolved polls on a fixed interval until the location resolves
// to one of the terminal classes or the deadline passes.
//
// The provider's redirect back to the target site is known to strand
// sessions on an intermediate callback page indefinitely. A stranded
// callback first gets CallbackGrace to sort itself out; after that the
// poller forces a direct navigation to the verification URL rather than
// waiting out the deadline on a redirect that will never come.
func (p Poller) PollUntilResolved(ctx context.Context, session browser.Session, cfg SessionConfig, state *AttemptState) PollOutcome {
	ctx, span := tracer.Start(ctx, "Poller.PollUntilResolved")
	defer span.End()

	start := p.clock.Now()
	deadline := start.Add(cfg.PollTimeout)
	callbackSeen := false

	for p.clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return PollRedirectLoopTimeout
		}

		// dialogs are uncorrelated with the oauth flow's state and can
		// show up between any two polls
		p.suppressor.Suppress(ctx, session)

		location, err := session.Location(ctx)
		if err != nil {
			slog.Warn("failed to read location", "err", err)
			if p.clock.Sleep(ctx, cfg.PollInterval) != nil {
				return PollRedirectLoopTimeout
			}
			continue
		}
		state.observe(location)

		switch ClassifyLocation(location, cfg.VerificationURL) {
		case LocationVerified:
			span.SetAttributes(attribute.KeyValue{
				Key:   "final_location",
				Value: attribute.StringValue(location),
			})
			return PollVerified

		case LocationCallback:
			if !callbackSeen {
				callbackSeen = true
				slog.Info("callback page detected, oauth redirect may be stuck", "location", location)
			}
			if p.clock.Now().Sub(start) < cfg.CallbackGrace {
				break
			}
			slog.Info("callback still stranded after grace period, forcing direct navigation",
				"target", cfg.VerificationURL)
			err := session.Navigate(ctx, cfg.VerificationURL)
			if err != nil {
				slog.Warn("forced navigation failed", "err", err)
				break
			}
			if p.clock.Sleep(ctx, cfg.StepWait) != nil {
				return PollRedirectLoopTimeout
			}
			location, err = session.Location(ctx)
			if err != nil {
				break
			}
			state.observe(location)
			if ClassifyLocation(location, cfg.VerificationURL) == LocationVerified {
				return PollVerified
			}

		case LocationSignIn:
			if p.clock.Now().Sub(start) > cfg.SignInGrace {
				slog.Warn("bounced back to sign-in, credentials rejected or session dropped",
					"location", location)
				return PollBouncedToSignIn
			}
		}

		if p.clock.Sleep(ctx, cfg.PollInterval) != nil {
			return PollRedirectLoopTimeout
		}
	}

	slog.Warn("authentication polling deadline elapsed", "timeout", cfg.PollTimeout)
	return PollRedirectLoopTimeout
}
