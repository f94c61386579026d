package olx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/utils"
)

// PageSink receives each page's completed records as soon as the page is
// done. The walker does not care what the sink does with them; the
// orchestrator uses one for incremental cache saves.
type PageSink interface {
	OnPage(pageNum int, apartments []*models.Apartment)
}

// PageSinkFunc adapts a plain function to the PageSink interface.
type PageSinkFunc func(pageNum int, apartments []*models.Apartment)

func (f PageSinkFunc) OnPage(pageNum int, apartments []*models.Apartment) {
	f(pageNum, apartments)
}

// FetchError describes a failed page fetch. Transient failures (network
// errors, timeouts, 429, 5xx) are retried; everything else propagates
// immediately.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// Scraper drives the OLX fetch–parse–paginate–enrich pipeline.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	client  *http.Client
	retry   *utils.RetryConfig
	visited *utils.URLSet
}

// New creates a ready-to-use OLX Scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Retryable:   IsTransient,
			Logger:      logger,
		},
		visited: utils.NewURLSet(),
	}
}

// Scrape walks listing pages starting at the configured search URL until
// pagination is exhausted, MaxPages is hit, or a page-level error occurs.
// Whatever was accumulated before a failure is always returned; the error
// is non-nil only when nothing at all was scraped.
func (s *Scraper) Scrape(ctx context.Context, sink PageSink) ([]*models.Apartment, error) {
	maxPages := "unlimited"
	if s.cfg.MaxPages > 0 {
		maxPages = strconv.Itoa(s.cfg.MaxPages)
	}
	s.logger.Info("[olx] Starting scrape — URL: %s", s.cfg.SearchURL)
	s.logger.Info("[olx] Max pages: %s | enrich: %t | phones: %t",
		maxPages, s.cfg.EnrichDetails, s.cfg.FetchPhones)

	var all []*models.Apartment
	var walkErr error
	currentURL := s.cfg.SearchURL
	pageCount := 0

	for currentURL != "" {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("[olx] Walk interrupted: %v", err)
			walkErr = err
			break
		}

		pageCount++
		if s.cfg.MaxPages > 0 && pageCount > s.cfg.MaxPages {
			s.logger.Info("[olx] Reached maximum page limit: %d", s.cfg.MaxPages)
			break
		}

		if !s.visited.Add(currentURL) {
			s.logger.Warn("[olx] Pagination cycle detected at %s — stopping", currentURL)
			break
		}

		apartments, nextURL, err := s.scrapePage(ctx, currentURL)
		if err != nil {
			s.logger.Error("[olx] Page %d failed: %v", pageCount, err)
			walkErr = err
			break
		}

		all = append(all, apartments...)
		if sink != nil && len(apartments) > 0 {
			sink.OnPage(pageCount, apartments)
		}

		currentURL = nextURL
	}

	s.logger.Info("[olx] Total apartments scraped: %d from %d pages", len(all), pageCount)

	if len(all) == 0 && walkErr != nil {
		return nil, walkErr
	}
	return all, nil
}

// scrapePage fetches and parses one listing page, enriches its records, and
// returns them with the next page URL.
func (s *Scraper) scrapePage(ctx context.Context, pageURL string) ([]*models.Apartment, string, error) {
	html, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}

	apartments, pagination, err := s.parseListingPage(html)
	if err != nil {
		return nil, "", err
	}

	if s.cfg.EnrichDetails && len(apartments) > 0 {
		s.enrichAll(ctx, apartments)
	}

	// The pagination block sometimes reads "1" on deep pages; the page
	// query parameter in the requested URL is more trustworthy. Log-only,
	// control flow always follows the parsed next link.
	actualPage := pagination.CurrentPage
	if actualPage == 1 {
		if fromURL := pageFromURL(pageURL); fromURL > 1 {
			actualPage = fromURL
		}
	}
	s.logger.Info("[olx] Scraped page %d/%d: found %d apartments",
		actualPage, pagination.TotalPages, len(apartments))

	return apartments, pagination.NextPageURL, nil
}

// enrichAll runs detail enrichment for one page's records through the
// worker pool and blocks until the page is complete. Records are mutated
// in place, so per-page order is preserved regardless of completion order.
func (s *Scraper) enrichAll(ctx context.Context, apartments []*models.Apartment) {
	pool := utils.NewWorkerPool(s.cfg.MaxConcurrency)
	for _, apt := range apartments {
		apt := apt
		pool.Submit(func() {
			s.Enrich(ctx, apt)
		})
	}
	pool.Wait()
}

// fetchPage performs one rate-limited, retried GET and returns the raw
// markup. The uniform random delay before every attempt is the sole
// rate-limiting mechanism.
func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (string, error) {
	var body string

	err := s.retry.Do(ctx, "fetch "+pageURL, func() error {
		if err := s.delay(ctx); err != nil {
			return err
		}

		s.logger.Debug("[olx] Fetching URL: %s", pageURL)

		content, err := s.doFetch(ctx, pageURL)
		if err != nil {
			return err
		}
		body = content
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("[olx] Fetched %s (%d bytes)", pageURL, len(body))
	return body, nil
}

func (s *Scraper) doFetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	s.setBrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &FetchError{URL: pageURL, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Transient: transient}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: pageURL, Transient: true, Err: err}
	}
	return string(b), nil
}

func (s *Scraper) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "uk,ru;q=0.7,en-US;q=0.5,en;q=0.3")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// delay sleeps a duration drawn uniformly from [MinDelay, MaxDelay].
func (s *Scraper) delay(ctx context.Context) error {
	d := s.cfg.MinDelay
	if span := s.cfg.MaxDelay - s.cfg.MinDelay; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	return utils.SleepContext(ctx, d)
}

// pageFromURL extracts an explicit page query parameter, or 0.
func pageFromURL(pageURL string) int {
	u, err := url.Parse(pageURL)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return 0
	}
	return n
}

// resolveURL joins a possibly relative href against the configured base URL.
func (s *Scraper) resolveURL(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
