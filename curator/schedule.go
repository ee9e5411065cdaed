package curator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"
)

// ErrDigestRunning is returned when a digest trigger arrives while a run is
// already active. Concurrent triggers are dropped, not queued.
var ErrDigestRunning = errors.New("digest run already in progress")

// PostScraper collects recent posts for the tracked handles and writes one
// JSONL record file per handle into the digest data directory.
type PostScraper interface {
	ScrapeAll(ctx context.Context) error
}

// startScheduler registers the daily digest job at the configured wall-clock
// time in the configured timezone and starts the cron runner.
func (c *Curator) startScheduler(ctx context.Context) error {
	loc, err := time.LoadLocation(c.config.Digest.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.config.Digest.Timezone, err)
	}
	c.location = loc

	postTime, err := time.Parse("15:04", c.config.Digest.PostTime)
	if err != nil {
		return fmt.Errorf("invalid post time %q: %w", c.config.Digest.PostTime, err)
	}
	schedule := fmt.Sprintf("%d %d * * *", postTime.Minute(), postTime.Hour())

	c.cron = cron.New(cron.WithLocation(loc))
	if _, err := c.cron.AddFunc(schedule, func() {
		jobCtx := WithLogger(context.Background(), c.logger)
		if runErr := c.RunDailyDigest(jobCtx); runErr != nil {
			c.logger.Error("scheduled digest run failed", tint.Err(runErr))
		}
	}); err != nil {
		return fmt.Errorf("unable to schedule daily digest: %w", err)
	}

	c.cron.Start()
	c.logger.InfoContext(
		ctx,
		"scheduled daily digest",
		"schedule", schedule,
		"timezone", c.config.Digest.Timezone,
	)
	return nil
}

// RunDailyDigest runs the full daily pipeline: scrape, then per-handle
// digest + summary posts to the KOL channel. Exactly one run may be active
// at a time; a second trigger returns [ErrDigestRunning]. Per-handle
// failures never abort the run.
func (c *Curator) RunDailyDigest(ctx context.Context) error {
	if !c.digestRunning.CompareAndSwap(false, true) {
		return ErrDigestRunning
	}
	defer c.digestRunning.Store(false)

	ctx, logger := c.getLogger(ctx)
	started := time.Now()

	if c.scraper != nil {
		if err := c.scraper.ScrapeAll(ctx); err != nil {
			// stale records are still worth digesting
			logger.ErrorContext(ctx, "scrape failed, using existing records", tint.Err(err))
		}
	}

	kolChannel := c.config.Discord.KOLChannelID
	now := time.Now().In(c.location)
	banner := fmt.Sprintf(
		"☀️☕ GM TRENDSETTERS — %s — Time to get ahead of the curve, read below the latest Bittensor news!",
		now.Format("Mon Jan 02"),
	)
	if err := c.discord.channelMessageSend(kolChannel, banner); err != nil {
		logger.ErrorContext(ctx, "error sending digest banner", tint.Err(err))
	}

	posted := 0
	for _, handle := range c.config.Digest.Handles {
		posts := c.source.PostsForHandle(handle)
		if len(posts) == 0 {
			continue
		}

		urls := digestURLSet(posts)

		result := c.summarizer.Summarize(
			ctx,
			kolPrompt(handle, joinPostTexts(posts)),
			retryMaxTokens,
		)

		if err := c.discord.channelMessageSend(
			kolChannel,
			fmt.Sprintf("**@%s**\n%s", handle, result.Display()),
		); err != nil {
			logger.ErrorContext(
				ctx,
				"error posting handle summary",
				tint.Err(err),
				"handle", handle,
			)
			continue
		}

		if len(urls) > 0 {
			linkBlock := "**Links & Media:**\n"
			for _, u := range urls {
				linkBlock += "• " + u + "\n"
			}
			if err := c.discord.channelMessageSend(kolChannel, linkBlock); err != nil {
				logger.ErrorContext(
					ctx,
					"error posting handle links",
					tint.Err(err),
					"handle", handle,
				)
			}
		}
		posted++
	}

	c.lastDigestRun.Store(time.Now())
	logger.InfoContext(
		ctx,
		"daily digest complete",
		"handles_posted", posted,
		"elapsed", time.Since(started),
	)
	return nil
}

// digestURLSet collects the link and media URLs across a handle's posts,
// deduplicated and sorted.
func digestURLSet(posts []PostRecord) []string {
	seen := map[string]struct{}{}
	for _, p := range posts {
		for _, u := range p.Links {
			if u != "" {
				seen[u] = struct{}{}
			}
		}
		for _, u := range p.MediaURLs {
			if u != "" {
				seen[u] = struct{}{}
			}
		}
	}
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// joinPostTexts flattens post texts into a single blob for the summarizer.
func joinPostTexts(posts []PostRecord) string {
	var parts []string
	for _, p := range posts {
		if t := p.Text; t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
