package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("classlens.lib.browser")

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// evaluated on every new document before the page's own scripts run, so the
// target's automation checks see a regular browser
const identitySpoofScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

type FactoryOptions struct {
	// OpTimeout bounds each individual protocol call on sessions produced
	// by this factory. Zero means 10 seconds.
	OpTimeout time.Duration
	// ProfileRoot is the directory under which per-session profile
	// directories are created. Zero means os.TempDir().
	ProfileRoot string
	// UserAgent overrides the spoofed user agent string.
	UserAgent string
}

// Factory produces isolated chrome sessions. Every session gets its own
// browser process and its own profile directory so first-run prompts and
// cached sign-in state can never leak from one session into the next.
type Factory struct {
	opts FactoryOptions
}

func NewFactory(opts FactoryOptions) Factory {
	if opts.OpTimeout == 0 {
		opts.OpTimeout = time.Second * 10
	}
	if opts.ProfileRoot == "" {
		opts.ProfileRoot = os.TempDir()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return Factory{opts: opts}
}

// NewSession spawns a fresh automation-controlled browser under a profile
// directory derived from `profile`. The directory must not be reused across
// sessions; callers are expected to pass a unique identifier every time.
func (f Factory) NewSession(ctx context.Context, headless bool, profile string) (Session, error) {
	ctx, span := tracer.Start(ctx, "NewSession")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "profile",
		Value: attribute.StringValue(profile),
	})

	profileDir := filepath.Join(f.opts.ProfileRoot, profile)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		// chrome's own sign-in chrome is the main source of interstitial
		// dialogs, switch off everything that can trigger it
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-features", "ChromeSigninProfileChooser"),
		chromedp.Flag("disable-account-consistency", true),
		chromedp.Flag("disable-signin-scoped-device-id", true),
		chromedp.Flag("disable-signin-frame-dialog", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-profile-picker-on-startup", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.UserAgent(f.opts.UserAgent),
		chromedp.UserDataDir(profileDir),
	)

	// the allocator deliberately does not inherit ctx: an authenticated
	// session is handed back to the caller and must outlive this call
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		profileDir:  profileDir,
		opTimeout:   f.opts.OpTimeout,
	}

	// an empty Run forces the browser process to start; failure here means
	// the environment cannot spawn chrome at all
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(identitySpoofScript).Do(ctx)
		return err
	}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to spawn browser")
		s.tabCancel()
		s.allocCancel()
		return nil, fmt.Errorf("spawn browser: %w", err)
	}

	slog.Debug("browser session created", "profile", profile, "headless", headless)
	return s, nil
}
