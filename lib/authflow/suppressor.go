package authflow

import (
	"context"
	"log/slog"
	"strings"

	"classlens-backend/lib/browser"
)

// interstitial phrases observed in chrome's own sign-in and profile-setup
// prompts, which can cover the page at any point in the flow
var interstitialPhrases = []string{
	"Sign in to Chrome?",
	"Set up a school profile",
	"Use Chrome Without an Account",
	"Continue as Learning",
	"chrome://settings",
}

var dismissalActions = []browser.Locator{
	{Name: "use chrome without account", XPath: `//button[contains(text(), 'Use Chrome Without an Account')]`},
	{Name: "use chrome without account (lowercase)", XPath: `//button[contains(text(), 'Use Chrome without an account')]`},
	{Name: "no thanks", XPath: `//button[contains(text(), 'No thanks')]`},
	{Name: "not now", XPath: `//button[contains(text(), 'Not now')]`},
	{Name: "continue as learning", XPath: `//button[contains(text(), 'Continue as Learning')]`},
	{Name: "use chrome without account (div)", XPath: `//div[contains(text(), 'Use Chrome Without an Account')]`},
}

const pageContentScript = `document.documentElement ? document.documentElement.outerHTML : ''`

// Suppressor detects and dismisses browser-chrome dialogs that are
// unrelated to the target site and uncorrelated with the login flow's own
// state. It is safe and cheap to call at every phase boundary; when no
// dialog is present a call is a pure no-op.
type Suppressor struct {
	phrases    []string
	dismissals []browser.Locator
}

func NewSuppressor() Suppressor {
	return Suppressor{
		phrases:    interstitialPhrases,
		dismissals: dismissalActions,
	}
}

// Suppress scans the rendered page for known interstitial phrases and, on a
// match, tries the dismissal actions in order until one lands. It reports
// whether a dialog was found and dismissed. Errors along the way are
// swallowed: a failed scan is indistinguishable from no dialog, and the
// next phase boundary will scan again.
func (s Suppressor) Suppress(ctx context.Context, session browser.Session) bool {
	var content string
	err := session.RunScript(ctx, pageContentScript, &content)
	if err != nil {
		return false
	}
	lower := strings.ToLower(content)

	matched := ""
	for _, phrase := range s.phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			matched = phrase
			break
		}
	}
	if matched == "" {
		return false
	}
	slog.Info("interstitial dialog detected", "phrase", matched)

	for _, action := range s.dismissals {
		candidates, err := session.FindCandidates(ctx, action)
		if err != nil {
			continue
		}
		for _, el := range candidates {
			visible, err := session.IsVisible(ctx, el)
			if err != nil || !visible {
				continue
			}
			err = session.Click(ctx, el)
			if err != nil {
				continue
			}
			slog.Info("interstitial dialog dismissed", "action", action.Name)
			return true
		}
	}

	slog.Warn("interstitial dialog detected but no dismissal action landed", "phrase", matched)
	return false
}
