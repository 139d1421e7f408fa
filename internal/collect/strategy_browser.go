package collect

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"kestrel/internal/domain"
)

// BrowserStrategy is the last-resort variant for portals whose primary flow
// rejects plain HTTP clients outright. It drives a headless browser through
// the listing page with the session cookie attached and hands the rendered
// HTML to the markup parser. Disabled unless configured into the chain.
type BrowserStrategy struct{}

func (s *BrowserStrategy) Name() string { return "browser" }

func (s *BrowserStrategy) Fetch(ctx context.Context, session *Session, _ DateRange) (*domain.RawPayload, error) {
	if session.Source.ListPath == "" {
		return nil, nil
	}

	target, err := resolveURL(session.Source.BaseURL, session.Source.ListPath)
	if err != nil {
		return nil, transportError(s.Name(), err)
	}

	controlURL, err := launcher.New().
		Leakless(true).
		Headless(true).
		Launch()
	if err != nil {
		return nil, transportError(s.Name(), fmt.Errorf("launch browser: %w", err))
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, transportError(s.Name(), fmt.Errorf("connect browser: %w", err))
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("Failed to close headless browser", "error", err)
		}
	}()

	if err := s.attachSessionCookie(browser, session, target); err != nil {
		return nil, transportError(s.Name(), err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, transportError(s.Name(), fmt.Errorf("stealth page: %w", err))
	}
	defer page.Close()

	if timeout := session.Client.Timeout; timeout > 0 {
		page = page.Timeout(timeout)
	}

	if err := page.Navigate(target); err != nil {
		return nil, transportError(s.Name(), fmt.Errorf("navigate: %w", err))
	}
	if err := page.WaitLoad(); err != nil {
		return nil, transportError(s.Name(), fmt.Errorf("wait load: %w", err))
	}

	html, err := page.HTML()
	if err != nil {
		return nil, transportError(s.Name(), fmt.Errorf("read html: %w", err))
	}
	if html == "" {
		return nil, nil
	}

	return &domain.RawPayload{Kind: domain.PayloadMarkup, Body: []byte(html)}, nil
}

func (s *BrowserStrategy) attachSessionCookie(browser *rod.Browser, session *Session, target string) error {
	if session.Token == nil || session.Token.Token == "" {
		return nil
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return err
	}

	names := session.Source.TokenCookies
	if len(names) == 0 {
		names = []string{"token"}
	}

	expiry := proto.TimeSinceEpoch(float64(time.Now().Add(time.Hour).Unix()))
	cookies := make([]*proto.NetworkCookieParam, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &proto.NetworkCookieParam{
			Name:    name,
			Value:   session.Token.Token,
			Domain:  parsed.Hostname(),
			Path:    "/",
			Expires: expiry,
		})
	}

	return browser.SetCookies(cookies)
}
