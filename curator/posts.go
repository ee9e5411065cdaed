package curator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PostRecord is the normalized representation of one scraped social-media
// post, as consumed by the digest pipeline. Immutable once read.
type PostRecord struct {
	Text      string
	Date      time.Time
	Links     []string
	MediaURLs []string
	Reply     bool
	Repost    bool
	Quote     bool
}

// jsonlRecord matches the persisted record format written by the scraper:
// one JSON object per line. A non-null retweetedTweet or inReplyToTweetId
// marks a post for exclusion; a non-null quotedTweet tags an included
// quote-post.
type jsonlRecord struct {
	Content          string              `json:"content"`
	Date             *string             `json:"date"`
	RetweetedTweet   json.RawMessage     `json:"retweetedTweet"`
	InReplyToTweetID json.RawMessage     `json:"inReplyToTweetId"`
	QuotedTweet      json.RawMessage     `json:"quotedTweet"`
	Outlinks         []string            `json:"outlinks"`
	Media            []map[string]string `json:"media"`
}

var jsonNull = []byte("null")

func rawIsNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func (r jsonlRecord) mediaURLs() []string {
	urls := make([]string, 0, len(r.Media))
	for _, m := range r.Media {
		u := m["fullUrl"]
		if u == "" {
			u = m["thumbnailUrl"]
		}
		if u == "" {
			u = m["url"]
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// PostSource reads per-handle JSONL record files and returns the qualifying
// posts (originals and quote-posts, excluding replies and reposts) published
// inside the lookback window.
type PostSource struct {
	dataDir  string
	lookback time.Duration
	logger   *slog.Logger

	// now is swappable for tests; defaults to time.Now
	now func() time.Time
}

func newPostSource(config *DigestConfig, logger *slog.Logger) *PostSource {
	return &PostSource{
		dataDir:  config.DataDir,
		lookback: config.Lookback,
		logger:   logger,
		now:      time.Now,
	}
}

// PostsForHandle reads `<data_dir>/<handle>.jsonl` and returns the qualifying
// posts from the lookback window. A missing file yields an empty list.
// Unparseable lines and unparseable or windowed-out timestamps are skipped
// per line, never fatal to the file.
func (s *PostSource) PostsForHandle(handle string) []PostRecord {
	path := filepath.Join(s.dataDir, handle+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("unable to open record file", "path", path, "error", err)
		}
		return nil
	}
	defer func() {
		_ = f.Close()
	}()

	since := s.now().UTC().Add(-s.lookback)

	var posts []PostRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Date == nil {
			continue
		}
		date, err := time.Parse(time.RFC3339, *rec.Date)
		if err != nil {
			continue
		}
		if date.Before(since) {
			continue
		}
		if !rawIsNull(rec.RetweetedTweet) {
			continue
		}
		if !rawIsNull(rec.InReplyToTweetID) {
			continue
		}

		links := make([]string, 0, len(rec.Outlinks))
		for _, u := range rec.Outlinks {
			if u != "" {
				links = append(links, u)
			}
		}

		posts = append(posts, PostRecord{
			Text:      rec.Content,
			Date:      date,
			Links:     links,
			MediaURLs: rec.mediaURLs(),
			Quote:     !rawIsNull(rec.QuotedTweet),
		})
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("error scanning record file", "path", path, "error", err)
	}
	return posts
}
