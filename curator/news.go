package curator

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// handleNewsUpdate auto-summarizes any message posted in the news channel:
// all readable text (content plus embed titles/descriptions/fields) and all
// discoverable links are collected, a fixed announcement prompt is sent to
// the summarizer, and the result (or inline error text) is posted back into
// the same channel. No authorization check applies here.
func (c *Curator) handleNewsUpdate(ctx context.Context, m *discordgo.Message) {
	ctx, logger := c.getLogger(ctx)

	rawText := newsMessageText(m)
	links := newsMessageLinks(m, rawText)

	logger.InfoContext(
		ctx,
		"summarizing news update",
		append([]any{"link_count", len(links)}, messageLogAttrs(m)...)...,
	)

	result := c.summarizer.Summarize(
		ctx,
		newsPrompt(rawText, links),
		newsSummaryMaxTokens,
	)

	c.replyToChannel(
		ctx,
		m.ChannelID,
		"🧾 **Announcement summary**\n"+result.Display(),
	)
}

// newsMessageText gathers every readable text part of a message: the plain
// content plus embed titles, descriptions, and field name/value pairs.
func newsMessageText(m *discordgo.Message) string {
	var parts []string
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		if e.Title != "" {
			parts = append(parts, e.Title)
		}
		if e.Description != "" {
			parts = append(parts, e.Description)
		}
		for _, f := range e.Fields {
			if f == nil {
				continue
			}
			if f.Name != "" {
				parts = append(parts, f.Name)
			}
			if f.Value != "" {
				parts = append(parts, f.Value)
			}
		}
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "\n\n")
}

// newsMessageLinks collects every discoverable URL: regex matches in the
// extracted text, attachment URLs, and embed URL/image/thumbnail URLs.
// Deduplicated via a set and returned sorted.
func newsMessageLinks(m *discordgo.Message, rawText string) []string {
	seen := map[string]struct{}{}
	add := func(u string) {
		if u != "" {
			seen[u] = struct{}{}
		}
	}

	for _, u := range urlPattern.FindAllString(rawText, -1) {
		add(u)
	}
	for _, a := range m.Attachments {
		if a != nil {
			add(a.URL)
		}
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		add(e.URL)
		if e.Image != nil {
			add(e.Image.URL)
		}
		if e.Thumbnail != nil {
			add(e.Thumbnail.URL)
		}
	}

	links := make([]string, 0, len(seen))
	for u := range seen {
		links = append(links, u)
	}
	sort.Strings(links)
	return links
}
