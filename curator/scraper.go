package curator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/lmittmann/tint"
)

// TimelineScraper collects recent posts from the tracked public accounts
// with a cookie-authenticated headless browser, and writes one line-
// delimited JSON record file per handle into the digest data directory.
type TimelineScraper struct {
	config   *ScraperConfig
	handles  []string
	dataDir  string
	lookback time.Duration
	logger   *slog.Logger
}

// NewTimelineScraper builds a scraper over the configured handle list and
// data directory.
func NewTimelineScraper(
	config *ScraperConfig,
	digest *DigestConfig,
) *TimelineScraper {
	return &TimelineScraper{
		config:   config,
		handles:  digest.Handles,
		dataDir:  digest.DataDir,
		lookback: digest.Lookback,
		logger: slog.New(newLogHandler(config.LogLevel)).With(
			loggerNameKey, "scraper",
		),
	}
}

// scrapedPost is the raw data extracted from a profile timeline via
// JavaScript.
type scrapedPost struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	Outlinks  []string `json:"outlinks"`
	MediaURLs []string `json:"mediaUrls"`
	IsRetweet bool     `json:"isRetweet"`
	IsReply   bool     `json:"isReply"`
	IsQuote   bool     `json:"isQuote"`
}

// record converts a scraped post into the persisted JSONL record shape.
func (p scrapedPost) record() jsonlRecord {
	rec := jsonlRecord{
		Content:  p.Content,
		Outlinks: p.Outlinks,
	}
	if p.Timestamp != "" {
		ts := p.Timestamp
		rec.Date = &ts
	}
	if p.IsRetweet {
		rec.RetweetedTweet = json.RawMessage(`{}`)
	}
	if p.IsReply {
		rec.InReplyToTweetID = json.RawMessage(`"x"`)
	}
	if p.IsQuote {
		rec.QuotedTweet = json.RawMessage(`{}`)
	}
	for _, u := range p.MediaURLs {
		rec.Media = append(rec.Media, map[string]string{"fullUrl": u})
	}
	return rec
}

// ScrapeAll authenticates with stored cookies, pulls each handle's timeline,
// filters to the lookback window, and writes `<data_dir>/<handle>.jsonl`.
// Per-handle failures are logged and skipped; the run continues.
func (s *TimelineScraper) ScrapeAll(ctx context.Context) error {
	cookies, err := loadSessionCookies(s.config.CookiesFile)
	if err != nil {
		return fmt.Errorf("unable to load session cookies: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := injectCookies(browserCtx, cookies); err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}

	since := time.Now().UTC().Add(-s.lookback)
	written := 0

	for _, handle := range s.handles {
		humanPause(3, 8)

		posts, err := s.scrapeHandle(browserCtx, handle)
		if err != nil {
			s.logger.Error("scrape error", tint.Err(err), "handle", handle)
			continue
		}

		var records []jsonlRecord
		for _, p := range posts {
			if p.Timestamp == "" {
				continue
			}
			created, perr := time.Parse(time.RFC3339, p.Timestamp)
			if perr != nil || created.Before(since) {
				continue
			}
			records = append(records, p.record())
		}

		if len(records) == 0 {
			s.logger.Info("nothing in window", "handle", handle)
			continue
		}

		if err := s.writeRecords(handle, records); err != nil {
			s.logger.Error("error writing records", tint.Err(err), "handle", handle)
			continue
		}
		s.logger.Info("wrote records", "handle", handle, "count", len(records))
		written++
	}

	s.logger.Info("scrape complete", "handles_written", written)
	return nil
}

// scrapeHandle loads a profile timeline and extracts posts until the scan
// cap is reached or scrolling stops yielding new posts.
func (s *TimelineScraper) scrapeHandle(
	ctx context.Context,
	handle string,
) ([]scrapedPost, error) {
	tabCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, 2*time.Minute)
	defer timeoutCancel()

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate("https://x.com/"+handle),
		chromedp.WaitVisible(`article[data-testid="tweet"]`, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to load timeline for %s: %w", handle, err)
	}

	var posts []scrapedPost
	seen := map[string]bool{}
	maxScan := s.config.MaxScanPerHandle
	scrollAttempts := 0
	maxScrollAttempts := maxScan/5 + 2

	for len(posts) < maxScan && scrollAttempts < maxScrollAttempts {
		visible, err := extractVisiblePosts(tabCtx)
		if err != nil {
			return nil, err
		}
		for _, p := range visible {
			if p.ID != "" && !seen[p.ID] {
				seen[p.ID] = true
				posts = append(posts, p)
			}
		}

		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
		); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(500+scrollAttempts*100) * time.Millisecond)
		scrollAttempts++
	}

	if len(posts) > maxScan {
		posts = posts[:maxScan]
	}
	return posts, nil
}

// extractVisiblePosts parses currently visible tweets from the DOM.
func extractVisiblePosts(ctx context.Context) ([]scrapedPost, error) {
	extractJS := `
		(function() {
			const tweets = document.querySelectorAll('article[data-testid="tweet"]');
			const results = [];

			tweets.forEach(el => {
				try {
					const statusLink = el.querySelector('a[href*="/status/"]');
					const id = statusLink?.href?.match(/status\/(\d+)/)?.[1];
					if (!id) return;

					const tweetTextEl = el.querySelector('[data-testid="tweetText"]');
					const content = tweetTextEl?.textContent || '';

					const timeEl = el.querySelector('time');
					const timestamp = timeEl?.getAttribute('datetime') || '';

					const outlinks = [];
					el.querySelectorAll('a[href^="http"]').forEach(a => {
						const href = a.getAttribute('href');
						if (href && !href.includes('x.com/') && !href.includes('twitter.com/')) {
							outlinks.push(href);
						}
					});

					const mediaUrls = [];
					el.querySelectorAll('[data-testid="tweetPhoto"] img, [data-testid="videoPlayer"] video').forEach(m => {
						const src = m.src || m.poster;
						if (src) mediaUrls.push(src);
					});

					const socialContext = el.querySelector('[data-testid="socialContext"]');
					const isRetweet = socialContext?.textContent?.toLowerCase().includes('repost') ||
					                  socialContext?.textContent?.toLowerCase().includes('retweeted') || false;

					const isQuote = el.querySelector('[data-testid="quoteTweet"]') !== null;
					const isReply = el.textContent?.includes('Replying to') || false;

					results.push({ id, content, timestamp, outlinks, mediaUrls,
						isRetweet, isReply, isQuote });
				} catch (e) {
					console.error('Error extracting tweet:', e);
				}
			});

			return results;
		})()
	`

	var posts []scrapedPost
	if err := chromedp.Run(ctx, chromedp.Evaluate(extractJS, &posts)); err != nil {
		return nil, fmt.Errorf("failed to extract posts from DOM: %w", err)
	}
	return posts, nil
}

// writeRecords writes the handle's records as line-delimited JSON,
// replacing any previous file.
func (s *TimelineScraper) writeRecords(handle string, records []jsonlRecord) error {
	path := filepath.Join(s.dataDir, handle+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// injectCookies sets cookies in the browser context before navigation.
func injectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// loadSessionCookies reads stored session cookies and verifies the
// auth_token and ct0 cookies required for an authenticated timeline are
// present.
func loadSessionCookies(path string) ([]*network.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cookies []*network.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		// scroll-captured stores wrap the list in an object
		var stored struct {
			Cookies []*network.Cookie `json:"cookies"`
		}
		if err2 := json.Unmarshal(data, &stored); err2 != nil {
			return nil, err
		}
		cookies = stored.Cookies
	}

	hasAuthToken := false
	hasCT0 := false
	for _, c := range cookies {
		switch c.Name {
		case "auth_token":
			hasAuthToken = true
		case "ct0":
			hasCT0 = true
		}
	}
	if !hasAuthToken || !hasCT0 {
		return nil, errors.New("cookies missing auth_token/ct0, re-login required")
	}
	return cookies, nil
}

// humanPause sleeps for a random interval between lo and hi seconds, to
// avoid hammering the timeline between handles.
func humanPause(lo, hi float64) {
	s := lo + rand.Float64()*(hi-lo)
	time.Sleep(time.Duration(s * float64(time.Second)))
}
