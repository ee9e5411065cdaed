package curator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Summarizer manages requests to the OpenAI-compatible chat completion
// endpoint used for all summarization. It owns the rate limiter and logging
// for the integration; prompt construction lives in prompt.go.
type Summarizer struct {
	client         SummarizerClient
	config         *SummarizerConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter
	dc             *Curator

	mu *sync.RWMutex // primarily just protects requestLimiter
}

func newSummarizer(
	d *Curator,
	httpClient *http.Client,
) *Summarizer {
	config := d.config.Summarizer
	s := &Summarizer{
		config: config,
		dc:     d,
		mu:     &sync.RWMutex{},
	}
	s.logger = slog.New(newLogHandler(config.LogLevel)).With(
		loggerNameKey, "summarizer",
	)

	if config.MaxRequestsPerSecond > 0 {
		s.requestLimiter = rate.NewLimiter(
			rate.Limit(config.MaxRequestsPerSecond),
			1,
		)
	}

	clientCfg := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	s.client = openai.NewClientWithConfig(clientCfg)

	return s
}

// SummaryResult carries either generated summary text or the error that
// prevented it. Callers render it with [SummaryResult.Display] rather than
// branching on the error: a failed summarization is reported as bot output
// text, never propagated.
type SummaryResult struct {
	Summary string
	Err     error
}

// Display returns the summary text, or an inline error string when the
// request failed.
func (r SummaryResult) Display() string {
	if r.Err != nil {
		return fmt.Sprintf("(summarizer error: %v)", r.Err)
	}
	return r.Summary
}

// Summarize sends a single-prompt completion request with the given output
// token budget. The response is free text with no guaranteed structure;
// callers must not parse it beyond displaying it.
func (s *Summarizer) Summarize(
	ctx context.Context,
	prompt string,
	maxTokens int,
) SummaryResult {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = s.logger
	}

	if err := s.waitOnRequestLimiter(ctx); err != nil {
		logger.ErrorContext(ctx, "error waiting on request limiter", tint.Err(err))
		return SummaryResult{Err: err}
	}

	req := openai.ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: s.config.Temperature,
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.ErrorContext(
			ctx,
			"completion request failed",
			tint.Err(err),
			"model", s.config.Model,
			"max_tokens", maxTokens,
		)
		return SummaryResult{Err: err}
	}

	if len(resp.Choices) == 0 {
		err = errors.New("completion response had no choices")
		logger.ErrorContext(ctx, "empty completion response", tint.Err(err))
		return SummaryResult{Err: err}
	}

	content := resp.Choices[0].Message.Content
	logger.InfoContext(
		ctx,
		"completion finished",
		"model", s.config.Model,
		"max_tokens", maxTokens,
		"prompt_words", wordCount(prompt),
		"summary_words", wordCount(content),
	)
	return SummaryResult{Summary: content}
}

func (s *Summarizer) waitOnRequestLimiter(ctx context.Context) error {
	s.mu.RLock()
	limiter := s.requestLimiter
	s.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// SummarizerClient defines the chat completion method used from
// `openai.Client`, to enable testing/mocking.
type SummarizerClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}
