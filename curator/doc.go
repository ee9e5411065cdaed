// Package curator implements a Discord bot that routes pasted community
// conversations and scraped social-media posts to a chat-completion LLM
// endpoint for summarization, and republishes the results to per-subnet
// Discord channels.
//
// The bot watches a single curation channel for "bare subnet queries"
// (a 2-3 digit number, optionally followed by conversation text or a .txt
// attachment), resolves the number against a static subnet routing table,
// and posts an investor-style summary to the matched channel. Unresolved
// queries create a per-user pending confirmation which can be retried by
// replying to the bot's error message with a corrected number.
//
// Key components of the package include:
//
//   - Curator: The main struct that encapsulates the bot's core functionality.
//   - Discord: Handles the Discord session and message processing.
//   - Summarizer: Manages requests to the OpenAI-compatible LLM endpoint.
//   - PostSource: Reads scraped post records from per-handle JSONL files.
//   - TimelineScraper: Collects recent posts from tracked public accounts.
//   - API: Provides a small status/trigger HTTP surface.
//
// A daily scheduled job runs the scraper, builds per-handle digests of the
// last 24 hours of tracked "KOL" accounts, summarizes them, and posts the
// results to a fixed output channel. The same job can be triggered on demand
// with the `!kol_now` chat command or via the status API.
package curator
