package amazonau

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	sl "scraping_service/internal/lib/logger"
)

// Session owns the shared headless browser. Page loads are serialized: Amazon
// ties the delivery postcode to the browser session, so concurrent tabs with
// separate state would report stock for the wrong region.
type Session struct {
	mu          sync.Mutex
	log         *slog.Logger
	browser     *rod.Browser
	postalCode  string
	headless    bool
	pageTimeout time.Duration
	located     bool
}

func NewSession(log *slog.Logger, postalCode string, headless bool, pageTimeout time.Duration) *Session {
	return &Session{
		log:         log,
		postalCode:  postalCode,
		headless:    headless,
		pageTimeout: pageTimeout,
	}
}

func (s *Session) Start() error {
	const op = "amazonau.Session.Start"

	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url, err := launcher.New().
		Headless(s.headless).
		Bin(path).
		NoSandbox(true).
		Launch()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.browser = browser
	s.log.Info("browser started", slog.Bool("headless", s.headless))
	return nil
}

func (s *Session) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
}

// HTML loads url in a fresh stealth tab and returns the rendered page source.
func (s *Session) HTML(ctx context.Context, url string) (string, error) {
	const op = "amazonau.Session.HTML"

	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := stealth.Page(s.browser)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(s.pageTimeout)

	if err := s.normalizeViewport(page); err != nil {
		s.log.Debug("viewport setup failed", sl.Err(err))
	}

	if !s.located {
		s.applyPostalCode(page)
		s.located = true
	}

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("%s: navigate: %w", op, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("%s: wait load: %w", op, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	// A refresh sometimes clears the interstitial without solving anything.
	if strings.Contains(strings.ToLower(html), "captcha") {
		s.log.Warn("captcha interstitial, reloading once", slog.String("url", url))
		if err := page.Reload(); err == nil {
			if err := page.WaitLoad(); err == nil {
				if fresh, err := page.HTML(); err == nil {
					html = fresh
				}
			}
		}
	}

	return html, nil
}

// normalizeViewport pins the window size and zoom so price and availability
// blocks render in their desktop layout.
func (s *Session) normalizeViewport(page *rod.Page) error {
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
}

// applyPostalCode sets the delivery location once per browser session. Stock
// answers differ per postcode, so this runs before the first product page.
// Failures are logged and ignored; the pass proceeds with default location.
func (s *Session) applyPostalCode(page *rod.Page) {
	if s.postalCode == "" {
		return
	}

	if err := page.Navigate("https://www.amazon.com.au/"); err != nil {
		s.log.Warn("postcode setup: home page failed", sl.Err(err))
		return
	}
	if err := page.WaitLoad(); err != nil {
		s.log.Warn("postcode setup: home page load failed", sl.Err(err))
		return
	}

	link, err := page.Element("#nav-global-location-popover-link")
	if err != nil {
		s.log.Warn("postcode setup: location link not found", sl.Err(err))
		return
	}
	if err := link.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.log.Warn("postcode setup: location link click failed", sl.Err(err))
		return
	}

	input, err := page.Element("#GLUXZipUpdateInput")
	if err != nil {
		s.log.Warn("postcode setup: postcode input not found", sl.Err(err))
		return
	}
	if err := input.Input(s.postalCode); err != nil {
		s.log.Warn("postcode setup: input failed", sl.Err(err))
		return
	}

	apply, err := page.Element("#GLUXZipUpdate input")
	if err != nil {
		s.log.Warn("postcode setup: apply button not found", sl.Err(err))
		return
	}
	if err := apply.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.log.Warn("postcode setup: apply click failed", sl.Err(err))
		return
	}

	s.log.Info("delivery postcode applied", slog.String("postal_code", s.postalCode))
}
