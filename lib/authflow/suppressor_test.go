package authflow

import (
	"context"
	"testing"

	"classlens-backend/lib/browser"

	"github.com/stretchr/testify/require"
)

func TestSuppressNoDialogIsNoop(t *testing.T) {
	s := newFakeSession()
	s.content = "<html><body><h1>Admin Console</h1></body></html>"

	dismissed := NewSuppressor().Suppress(context.Background(), s)

	require.False(t, dismissed)
	require.Empty(t, s.clicked)
	require.Empty(t, s.navigated)
}

func TestSuppressDismissesKnownDialog(t *testing.T) {
	s := newFakeSession()
	s.content = "<html><body>Sign in to Chrome?</body></html>"
	s.find[dismissalActions[0].XPath] = []browser.Element{
		&fakeElement{name: "use chrome without account", visible: true},
	}

	dismissed := NewSuppressor().Suppress(context.Background(), s)

	require.True(t, dismissed)
	require.Equal(t, []string{"use chrome without account"}, s.clicked)
}

func TestSuppressFallsThroughDismissalList(t *testing.T) {
	s := newFakeSession()
	s.content = "set up a school profile"
	// first actions yield nothing, an invisible candidate sits in the
	// middle, the "not now" button is the first one that can land
	s.find[dismissalActions[2].XPath] = []browser.Element{
		&fakeElement{name: "hidden no thanks", visible: false},
	}
	s.find[dismissalActions[3].XPath] = []browser.Element{
		&fakeElement{name: "not now", visible: true},
	}

	dismissed := NewSuppressor().Suppress(context.Background(), s)

	require.True(t, dismissed)
	require.Equal(t, []string{"not now"}, s.clicked)
}

func TestSuppressDialogWithNoLandingAction(t *testing.T) {
	s := newFakeSession()
	s.content = "Use Chrome Without an Account"

	dismissed := NewSuppressor().Suppress(context.Background(), s)

	require.False(t, dismissed)
	require.Empty(t, s.clicked)
}

func TestSuppressMatchesCaseInsensitively(t *testing.T) {
	s := newFakeSession()
	s.content = "<div>SIGN IN TO CHROME?</div>"
	s.find[dismissalActions[2].XPath] = []browser.Element{
		&fakeElement{name: "no thanks", visible: true},
	}

	require.True(t, NewSuppressor().Suppress(context.Background(), s))
}
