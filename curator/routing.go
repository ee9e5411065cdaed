package curator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const summaryBanner = "🧾 Summary:\n"

// bareSubnetPattern matches a message consisting only of a 2-3 digit number,
// optionally followed by a single separator. The number selects a routing
// destination; any trailing conversation text disqualifies the bare form and
// is instead stripped from the matched message during extraction.
var bareSubnetPattern = regexp.MustCompile(`^\s*(\d{2,3})[\s\-:.]?\s*$`)

// leadingNumberPattern strips the leading subnet number and separators from
// message text when extracting the conversation body.
var leadingNumberPattern = regexp.MustCompile(`^\s*\d{2,3}[\s\-:.]*`)

// PendingConfirmation records an unresolved routing attempt awaiting a retry
// reply, referencing the original message so a corrected subnet number can
// re-run against the originally pasted text.
type PendingConfirmation struct {
	Original *discordgo.Message
	Deadline time.Time
}

// ConfirmationStore holds at most one pending confirmation per user. Entries
// expire after the configured TTL; expired entries are dropped on read and
// on overwrite. The zero TTL disables expiry.
type ConfirmationStore struct {
	mu      sync.Mutex
	entries map[string]PendingConfirmation
	ttl     time.Duration

	// now is swappable for tests; defaults to time.Now
	now func() time.Time
}

func newConfirmationStore(ttl time.Duration) *ConfirmationStore {
	return &ConfirmationStore{
		entries: map[string]PendingConfirmation{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a pending confirmation for the user, overwriting any previous
// entry.
func (s *ConfirmationStore) Put(userID string, original *discordgo.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := PendingConfirmation{Original: original}
	if s.ttl > 0 {
		entry.Deadline = s.now().Add(s.ttl)
	}
	s.entries[userID] = entry
}

// Get returns the user's pending confirmation, dropping it first if expired.
func (s *ConfirmationStore) Get(userID string) (PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	if !ok {
		return PendingConfirmation{}, false
	}
	if !entry.Deadline.IsZero() && s.now().After(entry.Deadline) {
		delete(s.entries, userID)
		return PendingConfirmation{}, false
	}
	return entry, true
}

// Delete removes the user's pending confirmation, if any.
func (s *ConfirmationStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Len reports the number of stored entries, including any not yet swept.
func (s *ConfirmationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// matchSubnet resolves a bare subnet number against the routing table,
// returning the routing key ending in "-<number>".
func matchSubnet(subnets map[string]string, number string) (string, bool) {
	suffix := "-" + number
	for key := range subnets {
		if strings.HasSuffix(key, suffix) {
			return key, true
		}
	}
	return "", false
}

// subnetKeyList returns the routing keys in stable sorted order, for error
// messages listing valid options.
func subnetKeyList(subnets map[string]string) string {
	keys := make([]string, 0, len(subnets))
	for key := range subnets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// handleCurationMessage processes a message from the authorized user in the
// curation channel: retry replies first, then bare subnet queries. Returns
// false when the message matched neither branch and should fall through to
// command processing.
func (c *Curator) handleCurationMessage(
	ctx context.Context,
	m *discordgo.Message,
) bool {
	ctx, logger := c.getLogger(ctx)

	user := messageAuthor(m)
	if user == nil {
		return false
	}

	// A reply to one of the bot's own messages from a user holding a
	// pending confirmation is a retry, even when the body is a bare
	// number - checked first so the retry can't be swallowed by the
	// bare-query branch.
	if ref := m.ReferencedMessage; ref != nil {
		refAuthor := messageAuthor(ref)
		if refAuthor != nil && refAuthor.ID == c.discord.BotUserID() {
			if entry, ok := c.confirmations.Get(user.ID); ok {
				c.handleRetryReply(ctx, m, user.ID, entry)
				return true
			}
		}
	}

	match := bareSubnetPattern.FindStringSubmatch(m.Content)
	if match == nil {
		return false
	}
	number := match[1]

	logger.InfoContext(
		ctx,
		"bare subnet query",
		append([]any{"number", number}, messageLogAttrs(m)...)...,
	)

	subnetName, ok := matchSubnet(c.config.Digest.Subnets, number)
	if !ok {
		c.replyToChannel(
			ctx,
			m.ChannelID,
			fmt.Sprintf(
				"❌ Subnet `-%s` not found. Try one of: %s",
				number,
				subnetKeyList(c.config.Digest.Subnets),
			),
		)
		c.confirmations.Put(user.ID, m)
		return true
	}

	c.routeAndSummarize(ctx, m, m, subnetName, 0)
	return true
}

// handleRetryReply re-runs a routing attempt using the retry's subnet number
// and the original pending message's text. The pending entry is removed only
// after a destination post attempt is issued; a parse or lookup failure
// leaves it intact for another retry.
func (c *Curator) handleRetryReply(
	ctx context.Context,
	m *discordgo.Message,
	userID string,
	entry PendingConfirmation,
) {
	ctx, logger := c.getLogger(ctx)

	retryNumber := strings.TrimSpace(m.Content)
	if retryNumber == "" || !isDigits(retryNumber) {
		c.replyToChannel(
			ctx,
			m.ChannelID,
			"❌ Please reply with just the subnet number (e.g. 62).",
		)
		return
	}

	subnetName, ok := matchSubnet(c.config.Digest.Subnets, retryNumber)
	if !ok {
		c.replyToChannel(
			ctx,
			m.ChannelID,
			fmt.Sprintf("❌ Still no match for `-%s`. Please try again.", retryNumber),
		)
		return
	}

	logger.InfoContext(
		ctx,
		"retrying pending confirmation",
		"retry_number", retryNumber,
		"subnet", subnetName,
		"user_id", userID,
	)

	if posted := c.routeAndSummarize(
		ctx, entry.Original, m, subnetName, retryMaxTokens,
	); posted {
		c.confirmations.Delete(userID)
		c.replyToChannel(
			ctx,
			m.ChannelID,
			fmt.Sprintf("✅ Routed to `%s` with summarized output.", subnetName),
		)
	}
}

// routeAndSummarize extracts the conversation body from the source message,
// summarizes it with the investor prompt, and posts the result to the
// matched subnet's channel. Errors around extraction and channel resolution
// are reported on the feedback channel (the triggering message's channel);
// summarization errors become inline text in the destination post.
//
// tokenBudget of 0 selects the budget by word count. Returns true if a
// destination post attempt was issued.
func (c *Curator) routeAndSummarize(
	ctx context.Context,
	source *discordgo.Message,
	trigger *discordgo.Message,
	subnetName string,
	tokenBudget int,
) bool {
	ctx, logger := c.getLogger(ctx)

	rawText := c.extractMessageText(ctx, source)
	if rawText == "" {
		c.replyToChannel(
			ctx,
			trigger.ChannelID,
			"❌ I didn't find any text to summarize (empty message / file).",
		)
		return false
	}

	if tokenBudget <= 0 {
		tokenBudget = subnetTokenCap(wordCount(rawText))
	}

	result := c.summarizer.Summarize(
		ctx,
		investorPrompt(subnetName, rawText),
		tokenBudget,
	)

	channelID := c.config.Digest.Subnets[subnetName]
	if channelID == "" {
		c.replyToChannel(
			ctx,
			trigger.ChannelID,
			fmt.Sprintf("❌ No channel configured for `%s`.", subnetName),
		)
		return false
	}

	if err := c.discord.channelMessageSend(
		channelID,
		summaryBanner+result.Display(),
	); err != nil {
		logger.ErrorContext(
			ctx,
			"error posting summary",
			tint.Err(err),
			"subnet", subnetName,
			"channel_id", channelID,
		)
		c.replyToChannel(
			ctx,
			trigger.ChannelID,
			fmt.Sprintf("❌ Couldn't post to the `%s` channel.", subnetName),
		)
		return true
	}

	logger.InfoContext(
		ctx,
		"routed and summarized",
		"subnet", subnetName,
		"channel_id", channelID,
		"max_tokens", tokenBudget,
		"summarize_error", result.Err != nil,
	)
	return true
}

// extractMessageText returns the conversation body for a routing request:
// the content of the first attached .txt file when present, otherwise the
// message text with the leading subnet number stripped.
func (c *Curator) extractMessageText(
	ctx context.Context,
	m *discordgo.Message,
) string {
	ctx, logger := c.getLogger(ctx)

	if len(m.Attachments) > 0 {
		att := m.Attachments[0]
		if strings.HasSuffix(att.Filename, ".txt") {
			body, err := c.fetchAttachment(ctx, att.URL)
			if err != nil {
				logger.WarnContext(
					ctx,
					"unable to read attachment",
					tint.Err(err),
					"filename", att.Filename,
				)
			} else if body != "" {
				return body
			}
		}
	}

	return strings.TrimSpace(leadingNumberPattern.ReplaceAllString(m.Content, ""))
}

// fetchAttachment downloads an attachment body over HTTP.
func (c *Curator) fetchAttachment(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("attachment fetch returned %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// replyToChannel sends a short feedback message, logging rather than
// propagating failures.
func (c *Curator) replyToChannel(ctx context.Context, channelID string, content string) {
	_, logger := c.getLogger(ctx)
	if err := c.discord.channelMessageSend(channelID, content); err != nil {
		logger.ErrorContext(
			ctx,
			"error sending feedback message",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
