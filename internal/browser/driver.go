// Package browser drives the challenge site through a real Chrome instance:
// problem extraction, code submission, and verdict parsing.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"leetforge/internal/config"
	"leetforge/pkg/models"
)

const (
	verdictPollInterval = 2 * time.Second

	// sessionCookieName is the cookie the site issues on login.
	sessionCookieName = "LEETCODE_SESSION"
)

var errNotStarted = errors.New("browser not started")

// Driver owns one browser tab for the lifetime of a session. It is not safe
// for concurrent use.
type Driver struct {
	cfg    config.AgentConfig
	logger *slog.Logger

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tab         context.Context
}

// NewDriver builds an unstarted driver. Start must be called before any page
// interaction.
func NewDriver(cfg config.AgentConfig, logger *slog.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		logger: logger.With("component", "browser"),
	}
}

// Start launches Chrome and opens the tab all later calls run in.
func (d *Driver) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1600, 1000),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Force the browser to actually launch so startup failures surface here
	// rather than on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("starting browser: %w", err)
	}

	d.allocCancel = allocCancel
	d.tabCancel = tabCancel
	d.tab = tabCtx
	d.logger.Info("Browser started", "headless", d.cfg.Headless)
	return nil
}

// Close shuts the browser down. Safe to call on an unstarted driver.
func (d *Driver) Close() {
	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
}

// Navigate opens the given URL and waits for the document body.
func (d *Driver) Navigate(ctx context.Context, pageURL string) error {
	if err := d.started(); err != nil {
		return err
	}
	navCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigating to %s: %w", pageURL, err)
	}
	return nil
}

// NavigateDaily opens the problem set page, resolves the daily challenge link
// and navigates to it.
func (d *Driver) NavigateDaily(ctx context.Context) (string, error) {
	listURL := strings.TrimSuffix(d.cfg.BaseURL, "/") + "/problemset/"
	if err := d.Navigate(ctx, listURL); err != nil {
		return "", &ExtractionError{Cause: err}
	}

	findCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	var href string
	err := chromedp.Run(findCtx,
		chromedp.WaitVisible(`a[href*="envType=daily-question"]`, chromedp.ByQuery),
		chromedp.AttributeValue(`a[href*="envType=daily-question"]`, "href", &href, nil, chromedp.ByQuery),
	)
	if err != nil {
		return "", &ExtractionError{Cause: fmt.Errorf("locating daily challenge link: %w", err)}
	}

	problemURL, err := d.absoluteURL(href)
	if err != nil {
		return "", &ExtractionError{Cause: err}
	}
	if err := d.Navigate(ctx, problemURL); err != nil {
		return "", &ExtractionError{Cause: err}
	}
	return problemURL, nil
}

// SetSessionCookie installs the site's login cookie so headless runs can
// authenticate without an interactive login.
func (d *Driver) SetSessionCookie(ctx context.Context, value string) error {
	if err := d.started(); err != nil {
		return err
	}
	domain, err := d.cookieDomain()
	if err != nil {
		return err
	}

	setCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	err = chromedp.Run(setCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookie(sessionCookieName, value).
			WithDomain(domain).
			WithPath("/").
			WithHTTPOnly(true).
			WithSecure(true).
			Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("setting session cookie: %w", err)
	}
	d.logger.Info("Session cookie installed", "domain", domain)
	return nil
}

// LoggedIn reports whether the browser currently holds a login session
// cookie for the site.
func (d *Driver) LoggedIn(ctx context.Context) (bool, error) {
	if err := d.started(); err != nil {
		return false, err
	}

	checkCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(checkCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return false, fmt.Errorf("reading cookies: %w", err)
	}

	for _, c := range cookies {
		if c.Name == sessionCookieName && c.Value != "" {
			return true, nil
		}
	}
	return false, nil
}

// PrimeLocalStorage sets the flags that keep the site from showing feature
// tours and pins the editor language before a problem page loads.
func (d *Driver) PrimeLocalStorage(ctx context.Context, language string) error {
	if err := d.started(); err != nil {
		return err
	}
	langJSON, err := json.Marshal(language)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`
		localStorage.setItem('hasShownNewFeatureGuide', 'true');
		localStorage.setItem('global_lang', JSON.stringify(%s));
	`, string(langJSON))

	primeCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	if err := chromedp.Run(primeCtx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("priming local storage: %w", err)
	}
	return nil
}

// ExtractProblem reads the statement, title, difficulty and starter code off
// the currently open problem page.
func (d *Driver) ExtractProblem(ctx context.Context) (*models.Problem, error) {
	if err := d.started(); err != nil {
		return nil, &ExtractionError{Cause: err}
	}
	extractCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	var statement, starter, pageURL string
	err := chromedp.Run(extractCtx,
		chromedp.Location(&pageURL),
		chromedp.WaitVisible(`div[data-track-load="description_content"]`, chromedp.ByQuery),
		chromedp.Text(`div[data-track-load="description_content"]`, &statement, chromedp.ByQuery),
		chromedp.WaitVisible(`.view-lines`, chromedp.ByQuery),
		chromedp.Text(`.view-lines`, &starter, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &ExtractionError{Cause: err}
	}

	// Title and difficulty are cosmetic; a redesigned page must not fail the
	// extraction over them.
	title := d.optionalText(ctx, `.text-title-large`)
	difficulty := d.optionalText(ctx, `div[class*="text-difficulty-"]`)

	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, &ExtractionError{Cause: fmt.Errorf("problem statement is empty")}
	}

	p := &models.Problem{
		Slug:        slugFromURL(pageURL),
		Title:       strings.TrimSpace(title),
		Difficulty:  strings.TrimSpace(difficulty),
		Statement:   statement,
		StarterCode: normalizeEditorText(starter),
		Language:    d.cfg.Language,
		URL:         pageURL,
	}
	d.logger.Info("Problem extracted", "slug", p.Slug, "title", p.Title, "difficulty", p.Difficulty)
	return p, nil
}

// optionalText reads the text of a selector with a short wait, returning ""
// when the element never appears.
func (d *Driver) optionalText(ctx context.Context, selector string) string {
	readCtx, cancel := d.bounded(ctx, 2)
	defer cancel()

	var text string
	if err := chromedp.Run(readCtx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// Submit types the solution into the editor, presses submit, and waits for
// the judge to settle. A judge that never settles within the configured
// timeout yields a SubmissionError with Timeout set.
func (d *Driver) Submit(ctx context.Context, sourceCode, language string) (*models.Verdict, error) {
	if err := d.started(); err != nil {
		return nil, err
	}
	if err := d.setEditorContent(ctx, sourceCode); err != nil {
		return nil, &SubmissionError{Cause: err}
	}

	clickCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	if err := chromedp.Run(clickCtx,
		chromedp.WaitVisible(`//button[@data-cid='3']`, chromedp.BySearch),
		chromedp.Click(`//button[@data-cid='3']`, chromedp.BySearch),
	); err != nil {
		cancel()
		return nil, &SubmissionError{Cause: fmt.Errorf("clicking submit: %w", err)}
	}
	cancel()
	d.logger.Info("Solution submitted, waiting for verdict", "language", language)

	return d.awaitVerdict(ctx)
}

// setEditorContent replaces the Monaco buffer wholesale. Typing key-by-key is
// slow and fights the editor's auto-indent.
func (d *Driver) setEditorContent(ctx context.Context, sourceCode string) error {
	codeJSON, err := json.Marshal(sourceCode)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
		const models = monaco.editor.getModels();
		if (!models.length) { throw new Error('no editor model'); }
		models[0].setValue(%s);
		return true;
	})()`, string(codeJSON))

	setCtx, cancel := d.bounded(ctx, d.cfg.ExtractTimeoutSeconds)
	defer cancel()

	var ok bool
	if err := chromedp.Run(setCtx,
		chromedp.WaitVisible(`.view-lines`, chromedp.ByQuery),
		chromedp.Evaluate(script, &ok),
	); err != nil {
		return fmt.Errorf("setting editor content: %w", err)
	}
	return nil
}

// awaitVerdict polls the result panel until a final verdict renders.
func (d *Driver) awaitVerdict(ctx context.Context) (*models.Verdict, error) {
	deadline := time.Now().Add(time.Duration(d.cfg.JudgeTimeoutSeconds) * time.Second)
	ticker := time.NewTicker(verdictPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &SubmissionError{Cause: ctx.Err()}
		case <-ticker.C:
		}

		text, err := d.resultPanelText(ctx)
		if err != nil {
			// The panel detaches and re-renders while the verdict loads.
			d.logger.Debug("Result panel not readable yet", "error", err)
		} else if verdictSettled(text) {
			verdict := ParseVerdict(text)
			d.logger.Info("Verdict received", "kind", verdict.Kind)
			return &verdict, nil
		}

		if time.Now().After(deadline) {
			return nil, &SubmissionError{
				Cause:   fmt.Errorf("no verdict after %ds", d.cfg.JudgeTimeoutSeconds),
				Timeout: true,
			}
		}
	}
}

func (d *Driver) resultPanelText(ctx context.Context) (string, error) {
	readCtx, cancel := d.bounded(ctx, int(verdictPollInterval/time.Second))
	defer cancel()

	var text string
	err := chromedp.Run(readCtx,
		chromedp.Text(`//*[@data-layout-path='/ts0/tb1']`, &text, chromedp.BySearch),
	)
	return text, err
}

// started guards every page interaction; bounded would otherwise derive a
// context from a nil tab.
func (d *Driver) started() error {
	if d.tab == nil {
		return errNotStarted
	}
	return nil
}

func (d *Driver) cookieDomain() (string, error) {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	return base.Hostname(), nil
}

// bounded combines the caller's context with the driver's tab and a timeout.
// The tab context carries the chromedp target; the caller's context carries
// cancellation.
func (d *Driver) bounded(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	boundedCtx, cancel := context.WithTimeout(d.tab, time.Duration(seconds)*time.Second)
	stop := context.AfterFunc(ctx, cancel)
	return boundedCtx, func() {
		stop()
		cancel()
	}
}

func (d *Driver) absoluteURL(href string) (string, error) {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parsing link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// slugFromURL pulls the problem slug out of a /problems/<slug>/ URL.
func slugFromURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, part := range parts {
		if part == "problems" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// normalizeEditorText undoes the non-breaking spaces Monaco renders in place
// of regular spaces.
func normalizeEditorText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
}
