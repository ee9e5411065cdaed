package curator

import (
	"fmt"
	"strings"
)

const noActivityPlaceholder = "(nothing in the last 24h — touch grass 😎)"

// digestWordCap returns the paragraph word cap for a handle by qualifying
// post count.
func digestWordCap(posts int) int {
	switch {
	case posts == 1:
		return 50
	case posts <= 3:
		return 115
	default:
		return 145
	}
}

// filterOriginals keeps originals and quote-posts, dropping replies and
// reposts.
func filterOriginals(posts []PostRecord) []PostRecord {
	items := make([]PostRecord, 0, len(posts))
	for _, p := range posts {
		if p.Reply || p.Repost {
			continue
		}
		items = append(items, p)
	}
	return items
}

// partitionLinks deduplicates URLs preserving first-seen order, then
// partitions them into allowlisted-domain links followed by all others.
func partitionLinks(urls []string, allowlist []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var safe, other []string
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		allowed := false
		lower := strings.ToLower(u)
		for _, dom := range allowlist {
			if strings.Contains(lower, dom) {
				allowed = true
				break
			}
		}
		if allowed {
			safe = append(safe, u)
		} else {
			other = append(other, u)
		}
	}
	return append(safe, other...)
}

// HandleDigest flattens a handle's qualifying posts into a single paragraph
// under the word cap (links and media excluded from the cap) plus the
// deduplicated, allowlist-first link list. Returns an empty paragraph when
// no qualifying posts remain.
func HandleDigest(posts []PostRecord, allowlist []string) (string, []string) {
	items := filterOriginals(posts)
	if len(items) == 0 {
		return "", nil
	}

	wordCap := digestWordCap(len(items))

	var sentences []string
	var linksAll []string
	for _, p := range items {
		txt := strings.TrimSpace(strings.ReplaceAll(p.Text, "\n", " "))
		if txt != "" {
			sentences = append(sentences, txt)
		}
		linksAll = append(linksAll, p.Links...)
		linksAll = append(linksAll, p.MediaURLs...)
	}

	words := strings.Fields(strings.Join(sentences, " "))
	if len(words) > wordCap {
		words = words[:wordCap]
	}
	paragraph := strings.Join(words, " ")

	return paragraph, partitionLinks(linksAll, allowlist)
}

// HandleSection formats one handle's digest block: header, paragraph (or a
// no-activity placeholder), and a bulleted link list when links exist.
func HandleSection(handle string, paragraph string, links []string) string {
	if paragraph == "" {
		return fmt.Sprintf("**@%s**\n%s", handle, noActivityPlaceholder)
	}
	section := fmt.Sprintf("**@%s**\n%s", handle, paragraph)
	if len(links) > 0 {
		bullets := make([]string, len(links))
		for i, u := range links {
			bullets[i] = "• " + u
		}
		section += "\n\nLinks & Media:\n" + strings.Join(bullets, "\n")
	}
	return section
}

// BuildDailySections builds the paragraph-mode digest block for every
// configured handle, in handle order. Handles with no qualifying posts get
// the placeholder block.
func BuildDailySections(handles []string, source *PostSource, allowlist []string) []string {
	sections := make([]string, 0, len(handles))
	for _, h := range handles {
		posts := source.PostsForHandle(h)
		paragraph, links := HandleDigest(posts, allowlist)
		sections = append(sections, HandleSection(h, paragraph, links))
	}
	return sections
}
