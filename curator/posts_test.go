package curator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecordFile(t testing.TB, dir string, handle string, lines ...string) {
	t.Helper()
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(
		t,
		os.WriteFile(
			filepath.Join(dir, handle+".jsonl"),
			[]byte(content),
			0644,
		),
	)
}

func testPostSource(t testing.TB, dir string, now time.Time) *PostSource {
	t.Helper()
	source := newPostSource(
		&DigestConfig{DataDir: dir, Lookback: 24 * time.Hour},
		slog.Default(),
	)
	source.now = func() time.Time { return now }
	return source
}

func TestPostsForHandleMissingFile(t *testing.T) {
	source := testPostSource(t, t.TempDir(), time.Now())
	assert.Empty(t, source.PostsForHandle("nobody"))
}

func TestPostsForHandle(t *testing.T) {
	tmpdir := t.TempDir()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	inWindow := now.Add(-2 * time.Hour).Format(time.RFC3339)
	outOfWindow := now.Add(-30 * time.Hour).Format(time.RFC3339)

	writeRecordFile(
		t, tmpdir, "const",
		// original post with links and media
		fmt.Sprintf(
			`{"content":"dtao incoming","date":%q,"retweetedTweet":null,"inReplyToTweetId":null,"quotedTweet":null,"outlinks":["https://example.com/a",""],"media":[{"fullUrl":"https://pbs.twimg.com/full.jpg"},{"thumbnailUrl":"https://pbs.twimg.com/thumb.jpg"},{"url":"https://pbs.twimg.com/plain.jpg"},{}]}`,
			inWindow,
		),
		// quote-post: included, flagged
		fmt.Sprintf(
			`{"content":"quoting this","date":%q,"quotedTweet":{"id":1}}`,
			inWindow,
		),
		// repost: excluded
		fmt.Sprintf(
			`{"content":"rt","date":%q,"retweetedTweet":{"id":2}}`,
			inWindow,
		),
		// reply: excluded
		fmt.Sprintf(
			`{"content":"replying","date":%q,"inReplyToTweetId":"123"}`,
			inWindow,
		),
		// outside the lookback window
		fmt.Sprintf(`{"content":"old news","date":%q}`, outOfWindow),
		// skipped without aborting the file
		`not json at all`,
		`{"content":"no date"}`,
		`{"content":"bad date","date":"yesterday-ish"}`,
	)

	posts := testPostSource(t, tmpdir, now).PostsForHandle("const")
	require.Len(t, posts, 2)

	assert.Equal(t, "dtao incoming", posts[0].Text)
	assert.Equal(t, []string{"https://example.com/a"}, posts[0].Links)
	assert.Equal(
		t,
		[]string{
			"https://pbs.twimg.com/full.jpg",
			"https://pbs.twimg.com/thumb.jpg",
			"https://pbs.twimg.com/plain.jpg",
		},
		posts[0].MediaURLs,
	)
	assert.False(t, posts[0].Quote)

	assert.Equal(t, "quoting this", posts[1].Text)
	assert.True(t, posts[1].Quote)
}

func TestMediaURLPreference(t *testing.T) {
	rec := jsonlRecord{
		Media: []map[string]string{
			{
				"fullUrl":      "https://x/full.jpg",
				"thumbnailUrl": "https://x/thumb.jpg",
				"url":          "https://x/plain.jpg",
			},
			{
				"thumbnailUrl": "https://x/thumb2.jpg",
				"url":          "https://x/plain2.jpg",
			},
			{"url": "https://x/plain3.jpg"},
		},
	}
	assert.Equal(
		t,
		[]string{
			"https://x/full.jpg",
			"https://x/thumb2.jpg",
			"https://x/plain3.jpg",
		},
		rec.mediaURLs(),
	)
}

func TestRawIsNull(t *testing.T) {
	assert.True(t, rawIsNull(nil))
	assert.True(t, rawIsNull([]byte("null")))
	assert.True(t, rawIsNull([]byte(" null ")))
	assert.False(t, rawIsNull([]byte(`{}`)))
	assert.False(t, rawIsNull([]byte(`"123"`)))
}
