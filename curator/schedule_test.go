package curator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	calls   atomic.Int64
	err     error
	blockCh chan struct{}
}

func (s *stubScraper) ScrapeAll(ctx context.Context) error {
	s.calls.Add(1)
	if s.blockCh != nil {
		select {
		case <-s.blockCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func TestRunDailyDigest(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Digest.Handles = []string{"const", "silent"}

	now := time.Now().UTC()
	record := fmt.Sprintf(
		`{"content":"dtao launch next week","date":%q,"outlinks":["https://example.com/post"],"media":[{"fullUrl":"https://pbs.twimg.com/m.jpg"}]}`,
		now.Add(-time.Hour).Format(time.RFC3339),
	)
	require.NoError(
		t,
		os.WriteFile(
			filepath.Join(cfg.Digest.DataDir, "const.jsonl"),
			[]byte(record+"\n"),
			0644,
		),
	)

	c, session, client := newTestCurator(t, cfg)
	scraper := &stubScraper{}
	c.scraper = scraper

	require.NoError(t, c.RunDailyDigest(context.Background()))
	assert.Equal(t, int64(1), scraper.calls.Load())

	sends := session.sentTo(cfg.Discord.KOLChannelID)
	require.Len(t, sends, 3)
	assert.Contains(t, sends[0], "GM TRENDSETTERS")
	assert.Contains(t, sends[0], time.Now().In(time.UTC).Format("Mon Jan 02"))
	assert.Equal(t, "**@const**\nthe summary", sends[1])
	assert.Contains(t, sends[2], "**Links & Media:**")
	assert.Contains(t, sends[2], "• https://example.com/post")
	assert.Contains(t, sends[2], "• https://pbs.twimg.com/m.jpg")

	// silent handle posts nothing, including no placeholder
	for _, s := range sends {
		assert.NotContains(t, s, "@silent")
	}

	reqs := client.sawRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, retryMaxTokens, reqs[0].MaxTokens)
	assert.Contains(t, reqs[0].Messages[0].Content, "@const (KOL feed)")
	assert.Contains(t, reqs[0].Messages[0].Content, "dtao launch next week")

	lastRun, ok := c.lastDigestRun.Load().(time.Time)
	require.True(t, ok)
	assert.False(t, lastRun.IsZero())
}

func TestRunDailyDigestScrapeFailureContinues(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Digest.Handles = nil

	c, session, _ := newTestCurator(t, cfg)
	c.scraper = &stubScraper{err: errors.New("cookies expired")}

	require.NoError(t, c.RunDailyDigest(context.Background()))

	// stale records are still digested: the banner goes out regardless
	sends := session.sentTo(cfg.Discord.KOLChannelID)
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0], "GM TRENDSETTERS")
}

func TestRunDailyDigestOverlapDropped(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Digest.Handles = nil

	c, _, _ := newTestCurator(t, cfg)
	scraper := &stubScraper{blockCh: make(chan struct{})}
	c.scraper = scraper

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.RunDailyDigest(context.Background())
	}()

	require.Eventually(
		t,
		func() bool { return c.digestRunning.Load() },
		time.Second,
		5*time.Millisecond,
	)

	assert.ErrorIs(t, c.RunDailyDigest(context.Background()), ErrDigestRunning)

	close(scraper.blockCh)
	require.NoError(t, <-firstDone)
	assert.False(t, c.digestRunning.Load())
}

func TestStartScheduler(t *testing.T) {
	cfg := DefaultTestConfig(t)
	c, _, _ := newTestCurator(t, cfg)

	require.NoError(t, c.startScheduler(context.Background()))
	t.Cleanup(func() { <-c.cron.Stop().Done() })

	require.NotNil(t, c.location)
	assert.Equal(t, cfg.Digest.Timezone, c.location.String())

	entries := c.cron.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Next.IsZero())
}

func TestStartSchedulerInvalidConfig(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Digest.Timezone = "Mars/Olympus_Mons"
	c, _, _ := newTestCurator(t, cfg)
	require.Error(t, c.startScheduler(context.Background()))

	cfg = DefaultTestConfig(t)
	cfg.Digest.PostTime = "8 o'clock"
	c, _, _ = newTestCurator(t, cfg)
	require.Error(t, c.startScheduler(context.Background()))
}

func TestDigestURLSet(t *testing.T) {
	posts := []PostRecord{
		{
			Links:     []string{"https://b.example", "https://a.example", ""},
			MediaURLs: []string{"https://m.example/1.jpg"},
		},
		{Links: []string{"https://a.example"}},
	}
	assert.Equal(
		t,
		[]string{
			"https://a.example",
			"https://b.example",
			"https://m.example/1.jpg",
		},
		digestURLSet(posts),
	)
}

func TestJoinPostTexts(t *testing.T) {
	posts := []PostRecord{
		{Text: "first"},
		{Text: ""},
		{Text: "second"},
	}
	assert.Equal(t, "first\n\nsecond", joinPostTexts(posts))
}
