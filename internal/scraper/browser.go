package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"github.com/williampepple1/website-auditor/internal/config"
	"github.com/williampepple1/website-auditor/internal/extraction"
	"github.com/williampepple1/website-auditor/internal/proxy"
	"github.com/williampepple1/website-auditor/pkg/logger"
	"github.com/williampepple1/website-auditor/pkg/models"
	"go.uber.org/zap"
)

// teardownGrace bounds how long a probe waits for its tab to close
const teardownGrace = 2 * time.Second

// screenshotTimeout bounds a diagnostic capture
const screenshotTimeout = 5 * time.Second

const outerHTMLScript = `document.documentElement ? document.documentElement.outerHTML : ""`

// ErrBrowserLaunch is returned when Chrome cannot be started at all
var ErrBrowserLaunch = errors.New("could not launch browser")

// BrowserScraper owns one Chrome process for the run and audits each
// website in a fresh incognito browser context
type BrowserScraper struct {
	Config    *config.BrowserConfig
	Extractor *extraction.Extractor

	// ProxyUsed is the proxy server Chrome was started with, if any
	ProxyUsed string
	// UserAgents are rotated per tab; empty keeps the launch user agent
	UserAgents []string
	// ScreenshotDir receives captures when Config.Screenshot is set
	ScreenshotDir string

	proxyUser, proxyPass string
	useAuth              bool

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowserScraper starts Chrome. Failing to launch is fatal for the run.
func NewBrowserScraper(ctx context.Context, cfg *config.AppConfig) (*BrowserScraper, error) {
	opts := allocatorOptions(&cfg.Browser)

	proxies := proxy.NewManager(&cfg.Proxies)
	opts, proxyUsed, err := proxies.ApplyToAllocator(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	// The allocator outlives the caller's context; Close tears it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	screenshotDir := cfg.Browser.ScreenshotDir
	if screenshotDir == "" {
		screenshotDir = filepath.Join(cfg.IO.LogsDir, "screenshots")
	}

	s := &BrowserScraper{
		Config:        &cfg.Browser,
		Extractor:     extraction.NewExtractor(),
		ProxyUsed:     proxyUsed,
		ScreenshotDir: screenshotDir,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}
	s.proxyUser, s.proxyPass, s.useAuth = proxies.Credentials()
	if !cfg.Browser.MobileView {
		s.UserAgents = cfg.Scraper.UserAgents
	}

	launchTimeout := cfg.Browser.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}

	// An empty Run starts the browser process.
	errChan := make(chan error, 1)
	go func() {
		errChan <- chromedp.Run(browserCtx)
	}()

	select {
	case err = <-errChan:
	case <-time.After(launchTimeout):
		err = fmt.Errorf("browser did not start within %v", launchTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	logger.Info(ctx, "browser started",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Bool("mobileViewport", cfg.Browser.MobileView),
		zap.String("proxy", proxyUsed))

	return s, nil
}

func allocatorOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	for _, flag := range config.HardeningFlags {
		opts = append(opts, chromedp.Flag(flag, true))
	}
	for _, raw := range cfg.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(raw), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.MobileView {
		opts = append(opts, chromedp.WindowSize(config.MobileWidth, config.MobileHeight))
	}
	return opts
}

// Close shuts the browser down
func (s *BrowserScraper) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// pageState is what the tab listener observes about the main document
type pageState struct {
	mu        sync.Mutex
	mainID    network.RequestID
	response  *network.Response
	navigated bool
}

func (p *pageState) mainResponse() *network.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.response
}

// Probe audits one website in an isolated browser context. It never
// returns later than timeout plus the teardown grace, even when Chrome
// stops answering.
func (s *BrowserScraper) Probe(ctx context.Context, req models.AuditRequest, timeout time.Duration) (out models.AuditOutcome) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "probe panicked", zap.Any("panic", p), zap.String("website", req.Website))
			out = models.Fail(models.FailureUnknown, fmt.Sprintf("probe panic: %v", p))
		}
		out.Elapsed = time.Since(start)
	}()

	target, err := NormalizeWebsite(req.Website)
	if err != nil {
		return models.Fail(models.FailureNavigation, err.Error())
	}

	if s.browserCtx.Err() != nil {
		return models.Fail(models.FailureUnknown, "browser is no longer running")
	}

	// The tab hangs off the browser, not the caller, so that cancelling the
	// caller closes only this tab.
	probeCtx, cancelProbe := context.WithTimeout(s.browserCtx, timeout)
	defer cancelProbe()
	stop := context.AfterFunc(ctx, cancelProbe)
	defer stop()

	tabCtx, closeTab := chromedp.NewContext(probeCtx, chromedp.WithNewBrowserContext())
	defer s.teardown(ctx, closeTab)

	state := &pageState{}
	s.listen(tabCtx, state)

	page := &loadedPage{userAgent: s.pickUserAgent()}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.navigate(tabCtx, target, page)
	}()

	select {
	case err = <-errChan:
	case <-probeCtx.Done():
		if s.browserCtx.Err() != nil {
			return models.Fail(models.FailureUnknown, "browser exited during probe")
		}
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Fail(models.FailureUnknown, "probe cancelled")
		}
		return models.Fail(models.FailureTimeout, fmt.Sprintf("no load event within %v", timeout))
	}

	if err != nil {
		if probeCtx.Err() != nil && s.browserCtx.Err() == nil {
			return models.Fail(models.FailureTimeout, fmt.Sprintf("no load event within %v", timeout))
		}
		out = models.Fail(Classify(err), err.Error())
		out.Screenshot = s.screenshot(ctx, tabCtx, req, out.Kind())
		return out
	}

	sig := s.signals(target, page, state.mainResponse())
	out = models.Success(sig)
	if code := sig.StatusCode; code != nil && (*code < 200 || *code >= 300) {
		out.Screenshot = s.screenshot(ctx, tabCtx, req, strconv.Itoa(*code))
	}
	return out
}

// loadedPage is what navigate collects. Fields are written before navigate
// returns and read only after.
type loadedPage struct {
	userAgent    string
	finalURL     string
	html         string
	responseTime time.Duration
	metrics      *extraction.PageMetrics
}

// pickUserAgent returns a random user agent for the next tab, or "" to keep
// the one Chrome was launched with
func (s *BrowserScraper) pickUserAgent() string {
	if len(s.UserAgents) == 0 {
		return ""
	}
	return s.UserAgents[rand.Intn(len(s.UserAgents))]
}

// navigate loads target and collects what the audit needs from the page
func (s *BrowserScraper) navigate(ctx context.Context, target string, page *loadedPage) error {
	setup := chromedp.Tasks{network.Enable()}
	if page.userAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(page.userAgent))
	}
	if s.useAuth {
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}
	if s.Config.MobileView {
		setup = append(setup, chromedp.EmulateViewport(config.MobileWidth, config.MobileHeight, chromedp.EmulateMobile))
	}
	if err := chromedp.Run(ctx, setup); err != nil {
		return err
	}

	start := time.Now()
	if err := chromedp.Run(ctx, chromedp.Navigate(target)); err != nil {
		return err
	}
	page.responseTime = time.Since(start)

	// The page has loaded; a failure here only costs the title and quality.
	if err := chromedp.Run(ctx,
		chromedp.Location(&page.finalURL),
		chromedp.Evaluate(outerHTMLScript, &page.html),
	); err != nil {
		logger.Debug(ctx, "could not read page after load", zap.String("website", target), zap.Error(err))
		return nil
	}

	var metrics extraction.PageMetrics
	if err := chromedp.Run(ctx, chromedp.Evaluate(extraction.PageScript, &metrics)); err != nil {
		logger.Debug(ctx, "could not measure page", zap.String("website", target), zap.Error(err))
		return nil
	}
	page.metrics = &metrics
	return nil
}

// listen tracks the main document response and answers proxy auth challenges
func (s *BrowserScraper) listen(ctx context.Context, state *pageState) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			if ev.Type != network.ResourceTypeDocument {
				return
			}
			state.mu.Lock()
			if !state.navigated {
				state.mainID = ev.RequestID
				state.navigated = true
			}
			state.mu.Unlock()

		case *network.EventResponseReceived:
			state.mu.Lock()
			if ev.RequestID == state.mainID {
				state.response = ev.Response
			}
			state.mu.Unlock()

		case *fetch.EventRequestPaused:
			go s.execute(ctx, fetch.ContinueRequest(ev.RequestID))

		case *fetch.EventAuthRequired:
			go s.execute(ctx, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: s.proxyUser,
				Password: s.proxyPass,
			}))
		}
	})
}

func (s *BrowserScraper) execute(ctx context.Context, action chromedp.Action) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	if err := action.Do(cdp.WithExecutor(ctx, c.Target)); err != nil {
		logger.Debug(ctx, "listener action failed", zap.Error(err))
	}
}

// teardown closes the tab and disposes its browser context. It gives up
// after teardownGrace so a hung browser cannot hold the slot.
func (s *BrowserScraper) teardown(ctx context.Context, closeTab context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		closeTab()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(teardownGrace):
		logger.Warn(ctx, "tab teardown still pending, continuing")
	}
}

func (s *BrowserScraper) signals(target string, page *loadedPage, resp *network.Response) models.Signals {
	finalURL := page.finalURL
	if finalURL == "" {
		finalURL = target
		if resp != nil && resp.URL != "" {
			finalURL = resp.URL
		}
	}

	sig := models.Signals{
		Reachable:      true,
		ResponseTimeMS: page.responseTime.Milliseconds(),
		FinalURL:       finalURL,
		UsesTLS:        strings.HasPrefix(strings.ToLower(finalURL), "https://"),
	}

	if resp != nil {
		code := int(resp.Status)
		sig.StatusCode = &code
		sig.Reachable = code < 400
	}

	if sig.UsesTLS {
		// Certificate errors are never bypassed, so a loaded https page
		// passed verification unless Chrome still flags it as insecure.
		valid := true
		if resp != nil && (resp.SecurityState == security.StateInsecure || resp.SecurityState == security.StateInsecureBroken) {
			valid = false
		}
		sig.TLSValid = &valid
	}

	if page.html == "" {
		return sig
	}
	doc, err := s.Extractor.Parse(page.html)
	if err != nil {
		return sig
	}
	if title, ok := s.Extractor.TitleFromDocument(doc); ok {
		sig.PageTitle = &title
	}
	quality := s.Extractor.Quality(doc, extraction.Page{
		Metrics:      page.metrics,
		LastModified: lastModified(resp),
		Now:          time.Now(),
	})
	sig.Quality = &quality

	return sig
}

// lastModified reads the Last-Modified header of the main document
func lastModified(resp *network.Response) time.Time {
	if resp == nil {
		return time.Time{}
	}
	for name, value := range resp.Headers {
		if !strings.EqualFold(name, "Last-Modified") {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			return time.Time{}
		}
		t, err := http.ParseTime(raw)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// screenshot captures the tab for diagnostics when captures are enabled.
// It returns the file written, or "" when nothing was saved.
func (s *BrowserScraper) screenshot(ctx, tabCtx context.Context, req models.AuditRequest, label string) string {
	if !s.Config.Screenshot || tabCtx.Err() != nil {
		return ""
	}

	shotCtx, cancel := context.WithTimeout(tabCtx, screenshotTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil || len(buf) == 0 {
		logger.Debug(ctx, "could not capture screenshot", zap.String("website", req.Website), zap.Error(err))
		return ""
	}

	path, err := SaveScreenshot(s.ScreenshotDir, req, label, buf)
	if err != nil {
		logger.Warn(ctx, "could not save screenshot", zap.String("website", req.Website), zap.Error(err))
		return ""
	}
	return path
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SaveScreenshot writes a PNG capture for req into dir. The name carries
// the input row and label so it can be matched to the output table.
func SaveScreenshot(dir string, req models.AuditRequest, label string, png []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create screenshot directory: %w", err)
	}

	name := fmt.Sprintf("row%05d_%s.png", req.Row, unsafeFileChars.ReplaceAllString(label, "_"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("could not write screenshot: %w", err)
	}
	return path, nil
}
