package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// chromeSession implements Session on top of chromedp. One chromeSession
// owns one browser process and one profile directory.
type chromeSession struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	profileDir  string
	opTimeout   time.Duration
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := mergeDeadline(ctx, s.tabCtx, s.opTimeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// mergeDeadline bounds an operation on the tab context with both the
// caller's ctx and the per-operation timeout.
func mergeDeadline(ctx, tab context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(tab, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	if err != nil {
		return "", err
	}
	return loc, nil
}

func (s *chromeSession) FindCandidates(ctx context.Context, loc Locator) ([]Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(loc.XPath, &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (s *chromeSession) node(el Element) (*cdp.Node, error) {
	n, ok := el.(*cdp.Node)
	if !ok {
		return nil, fmt.Errorf("element does not belong to a chrome session: %T", el)
	}
	return n, nil
}

func (s *chromeSession) IsVisible(ctx context.Context, el Element) (bool, error) {
	n, err := s.node(el)
	if err != nil {
		return false, err
	}
	visible := false
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			// nodes detached from layout have no box model
			return nil
		}
		visible = box.Width > 0 && box.Height > 0
		return nil
	}))
	if err != nil {
		return false, err
	}
	return visible, nil
}

func (s *chromeSession) Click(ctx context.Context, el Element) error {
	n, err := s.node(el)
	if err != nil {
		return err
	}
	return s.run(ctx,
		chromedp.ScrollIntoView([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID),
		chromedp.MouseClickNode(n),
	)
}

func (s *chromeSession) Type(ctx context.Context, el Element, text string) error {
	n, err := s.node(el)
	if err != nil {
		return err
	}
	return s.run(ctx,
		chromedp.Clear([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID),
		chromedp.SendKeys([]cdp.NodeID{n.NodeID}, text, chromedp.ByNodeID),
	)
}

func (s *chromeSession) RunScript(ctx context.Context, js string, out any) error {
	return s.run(ctx, chromedp.Evaluate(js, out))
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.FullScreenshot(&buf, 90))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Quit() error {
	s.tabCancel()
	s.allocCancel()
	if s.profileDir != "" {
		return os.RemoveAll(s.profileDir)
	}
	return nil
}
