// Package authflow turns a credential pair into a verified, authenticated
// browser session against a login flow guarded by a third-party identity
// provider. The flow is hostile and only semi-deterministic: browser-chrome
// dialogs appear at arbitrary points, the provider's callback redirect is
// unreliable, and a failed attempt can leave the browser in a corrupted
// state. The orchestrator therefore runs bounded, fully isolated attempts:
// every attempt gets a fresh browser process and profile directory, and
// nothing survives from one attempt into the next.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"classlens-backend/lib/browser"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("classlens.lib.authflow")

type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseAwaitingIdentityRedirect
	PhaseSubmittingCredentials
	PhasePollingCompletion
	PhaseVerified
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAwaitingIdentityRedirect:
		return "awaiting_identity_redirect"
	case PhaseSubmittingCredentials:
		return "submitting_credentials"
	case PhasePollingCompletion:
		return "polling_completion"
	case PhaseVerified:
		return "verified"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// AttemptState is the mutable bookkeeping of a single attempt. It is owned
// exclusively by that attempt and discarded with it; the underlying browser
// session dies at the same time, so there is nothing worth carrying over.
type AttemptState struct {
	Phase        Phase
	Attempt      int
	StartedAt    time.Time
	LastLocation string
}

func (s *AttemptState) setPhase(p Phase) {
	if s == nil {
		return
	}
	slog.Debug("attempt phase transition", "attempt", s.Attempt, "phase", p.String())
	s.Phase = p
}

func (s *AttemptState) observe(location string) {
	if s == nil {
		return
	}
	s.LastLocation = location
}

type Outcome int

const (
	OutcomeAuthenticated Outcome = iota
	OutcomeExhaustedRetries
	OutcomeConfigurationError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeExhaustedRetries:
		return "exhausted_retries"
	case OutcomeConfigurationError:
		return "configuration_error"
	}
	return "unknown"
}

// Result is the terminal outcome of an Authenticate call. Callers see
// exactly one of three things: a live verified session, retry exhaustion,
// or a configuration problem. Raw driver errors never escape.
type Result struct {
	Outcome Outcome
	// Session is a live, verified browser session. Set only when Outcome
	// is OutcomeAuthenticated; the caller owns it and must Quit it.
	Session       browser.Session
	AttemptsUsed  int
	FinalLocation string
	// Err carries detail for OutcomeConfigurationError.
	Err error
}

// SessionFactory produces a fresh, isolated browser session per attempt.
// Implementations must not share any on-disk or in-process state between
// sessions.
type SessionFactory interface {
	NewSession(ctx context.Context, headless bool, profile string) (browser.Session, error)
}

// Orchestrator sequences isolated authentication attempts. Attempts run
// strictly one at a time: each needs exclusive use of a browser session and
// shares nothing with any other attempt.
type Orchestrator struct {
	factory      SessionFactory
	suppressor   Suppressor
	flow         ProviderFlow
	poller       Poller
	clock        Clock
	processStart time.Time
}

func NewOrchestrator(factory SessionFactory) *Orchestrator {
	clock := systemClock{}
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

// Authenticate runs up to cfg.MaxAttempts isolated attempts and returns a
// verified session or a terminal failure. Failures inside one attempt are
// recovered locally: the session is discarded, a fixed backoff passes, and
// the next attempt starts from scratch.
func (o *Orchestrator) Authenticate(ctx context.Context, cfg SessionConfig) Result {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	cfg = cfg.withDefaults()
	err := cfg.Validate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid session config")
		return Result{Outcome: OutcomeConfigurationError, Err: err}
	}

	flow := o.flow
	flow.stepWait = cfg.StepWait

	finalLocation := ""
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		slog.Info("authentication attempt starting", "attempt", attempt, "max_attempts", cfg.MaxAttempts)

		session, err := o.factory.NewSession(ctx, cfg.Headless, o.profileName(attempt))
		if err != nil {
			// failing to even spawn a browser is an environment
			// problem; retrying cannot fix it and it does not
			// consume an attempt
			span.RecordError(err)
			span.SetStatus(codes.Error, "browser spawn failed")
			return Result{
				Outcome:      OutcomeConfigurationError,
				AttemptsUsed: attempt - 1,
				Err:          err,
			}
		}

		state := &AttemptState{
			Phase:     PhaseInitializing,
			Attempt:   attempt,
			StartedAt: o.clock.Now(),
		}
		verified := o.runAttempt(ctx, flow, session, cfg, state)
		finalLocation = state.LastLocation

		if verified {
			slog.Info("authentication successful", "attempt", attempt, "location", state.LastLocation)
			span.SetAttributes(attribute.KeyValue{
				Key:   "attempts_used",
				Value: attribute.IntValue(attempt),
			})
			return Result{
				Outcome:       OutcomeAuthenticated,
				Session:       session,
				AttemptsUsed:  attempt,
				FinalLocation: state.LastLocation,
			}
		}

		err = session.Quit()
		if err != nil {
			slog.Warn("failed to tear down browser session", "attempt", attempt, "err", err)
		}
		if ctx.Err() != nil {
			return Result{
				Outcome:       OutcomeExhaustedRetries,
				AttemptsUsed:  attempt,
				FinalLocation: finalLocation,
			}
		}
		if attempt < cfg.MaxAttempts {
			slog.Info("attempt failed, backing off before retry", "attempt", attempt, "backoff", cfg.RetryBackoff)
			if o.clock.Sleep(ctx, cfg.RetryBackoff) != nil {
				return Result{
					Outcome:       OutcomeExhaustedRetries,
					AttemptsUsed:  attempt,
					FinalLocation: finalLocation,
				}
			}
		}
	}

	slog.Error("all authentication attempts failed", "attempts", cfg.MaxAttempts)
	span.SetStatus(codes.Error, "exhausted retries")
	return Result{
		Outcome:       OutcomeExhaustedRetries,
		AttemptsUsed:  cfg.MaxAttempts,
		FinalLocation: finalLocation,
	}
}

// runAttempt executes one isolated attempt end to end. A panicking driver
// burns the attempt but must never take down the whole authentication call.
func (o *Orchestrator) runAttempt(ctx context.Context, flow ProviderFlow, session browser.Session, cfg SessionConfig, state *AttemptState) (verified bool) {
	ctx, span := tracer.Start(ctx, "attempt")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "attempt",
		Value: attribute.IntValue(state.Attempt),
	})

	defer func() {
		r := recover()
		if r != nil {
			slog.Error("authentication attempt panicked", "attempt", state.Attempt, "panic", r)
			span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
			state.setPhase(PhaseFailed)
			verified = false
		}
	}()

	err := session.Navigate(ctx, cfg.EntryURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach entry url")
		state.setPhase(PhaseFailed)
		return false
	}
	if o.clock.Sleep(ctx, cfg.StepWait) != nil {
		state.setPhase(PhaseFailed)
		return false
	}
	o.suppressor.Suppress(ctx, session)

	state.setPhase(PhaseAwaitingIdentityRedirect)
	outcome := flow.Execute(ctx, session, cfg.Identity, state)
	if outcome != FlowSubmitted {
		slog.Warn("identity provider flow failed", "attempt", state.Attempt, "outcome", outcome.String())
		span.SetStatus(codes.Error, outcome.String())
		state.setPhase(PhaseFailed)
		return false
	}

	state.setPhase(PhasePollingCompletion)
	pollOutcome := o.poller.PollUntilResolved(ctx, session, cfg, state)
	if pollOutcome != PollVerified {
		slog.Warn("completion polling failed", "attempt", state.Attempt, "outcome", pollOutcome.String())
		span.SetStatus(codes.Error, pollOutcome.String())
		state.setPhase(PhaseFailed)
		return false
	}

	// the poller's verdict is a heuristic on URL shape alone; cross-check
	// it against an actual protected-resource fetch before handing the
	// session back
	ok := o.verifySession(ctx, session, cfg, state)
	if !ok {
		slog.Warn("independent verification failed", "attempt", state.Attempt, "location", state.LastLocation)
		span.SetStatus(codes.Error, "independent verification failed")
		state.setPhase(PhaseFailed)
		return false
	}

	state.setPhase(PhaseVerified)
	return true
}

func (o *Orchestrator) verifySession(ctx context.Context, session browser.Session, cfg SessionConfig, state *AttemptState) bool {
	ctx, span := tracer.Start(ctx, "verifySession")
	defer span.End()

	err := session.Navigate(ctx, cfg.VerificationURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification navigation failed")
		return false
	}
	if o.clock.Sleep(ctx, cfg.StepWait) != nil {
		return false
	}
	location, err := session.Location(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read location")
		return false
	}
	state.observe(location)
	return ClassifyLocation(location, cfg.VerificationURL) == LocationVerified
}

// profileName is unique per (process start, attempt number) so no two
// attempts can ever observe each other's cached browser state.
func (o *Orchestrator) profileName(attempt int) string {
	nonce, err := random.String(8)
	if err != nil {
		nonce = fmt.Sprintf("%d", o.clock.Now().UnixNano())
	}
	return fmt.Sprintf("classlens_chrome_%d_%d_%s", attempt, o.processStart.Unix(), nonce)
}
