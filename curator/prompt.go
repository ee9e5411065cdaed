package curator

import (
	"fmt"
	"strings"
)

const (
	// newsSummaryMaxTokens is the fixed output budget for news-channel
	// auto-summaries.
	newsSummaryMaxTokens = 350

	// retryMaxTokens is the fixed output budget when re-running a routing
	// request from a confirmation retry.
	retryMaxTokens = 400
)

// subnetTokenCap returns the output token budget for a pasted conversation,
// by word count.
func subnetTokenCap(words int) int {
	switch {
	case words <= 120:
		return 50
	case words <= 400:
		return 115
	default:
		return 145
	}
}

// investorPrompt wraps pasted subnet conversations (or a KOL feed) so the
// model produces investor-style output.
func investorPrompt(sourceName string, rawText string) string {
	return fmt.Sprintf(`
You are my assistant helping me as a **Bittensor miner, DTao investor, and subnet sentiment analyst**.
I am actively looking to allocate capital, manage risk, and spot opportunities.
Your job is to give me fast, sharp, investor-grade insights from the conversation below.

Focus your summary on:
- What the miners are discussing / complaining about
- How emissions, incentives, or mechanisms are being received
- Overall sentiment & mood (fear, greed, excitement, confusion, frustration, optimism, etc.)
- Any news, announcements, timelines, or hidden alpha that could move markets
- Implications for investment, profitability, and positioning

Output format:
- Start with a **tight executive summary** (2-3 crisp sentences).
- Then give **bullet points** with key signals, risks, and opportunities.
- End with a **1-line investor take**.

Here's the copied conversation from %s:
"""%s"""
`, sourceName, strings.TrimSpace(rawText))
}

// kolPrompt labels a KOL feed as the source and reuses the investor prompt.
func kolPrompt(handle string, rawText string) string {
	return investorPrompt(fmt.Sprintf("@%s (KOL feed)", handle), rawText)
}

// newsPrompt builds the fixed announcement-summary template from extracted
// text and links.
func newsPrompt(rawText string, links []string) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are summarizing an official Bittensor announcement.

Return:
- **Executive summary** (1-2 sentences)
- **Key points** (bullets with any dates/versions)
- **Links & Media** (just the URLs)

Text:
"""%s"""

Links:
%s`, strings.TrimSpace(rawText), strings.Join(links, "\n")))
}
