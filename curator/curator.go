package curator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/RadoTSC/bittensor-assistant-bot/curator.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// Curator is the main application struct for the bot. It wires together
// the Discord session, the summarizer client, the post source, the
// timeline scraper, the daily schedule and the status API.
type Curator struct {
	config *Config

	// Standard logger. Missing loggers will try to use this,
	// and fall back to slog.Default()
	logger *slog.Logger

	// Handler to use for the above
	logHandler slog.Handler

	// Handles discord integration, sessions
	discord *Discord

	// Remote LLM client for all summarization
	summarizer *Summarizer

	// Reads scraped JSONL records from the data directory
	source *PostSource

	// Collects fresh records before each digest run. Nil disables
	// scraping; the digest then runs over whatever records exist.
	scraper PostScraper

	// Pending routing confirmations, one per user
	confirmations *ConfirmationStore

	// Serves /api/health and /api/digest
	api *API

	// Daily digest schedule
	cron     *cron.Cron
	location *time.Location

	// digestRunning is true while a digest run is in progress; concurrent
	// triggers are dropped
	digestRunning atomic.Bool

	// lastDigestRun holds the time.Time of the most recent digest run
	lastDigestRun atomic.Value

	// signalStop enables an explicit stop signal to be sent to the bot
	signalStop chan struct{}

	// signalReady has a value sent on it once Run has opened the discord
	// session and started the schedule and API
	signalReady chan struct{}

	// A signal is sent on this channel when shutdown finishes
	eventShutdown chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time
}

func (c *Curator) getLogger(ctx context.Context) (
	context.Context,
	*slog.Logger,
) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = c.logger
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

// New creates a Curator from the given config, wiring all components but
// not opening any connections. Start the bot with [Curator.Run].
func New(config *Config) (*Curator, error) {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	c := &Curator{
		config:        config,
		signalReady:   make(chan struct{}, 1),
		eventShutdown: make(chan struct{}, 1),
	}
	c.lastDigestRun.Store(time.Time{})

	c.logHandler = newLogHandler(config.LogLevel)
	c.logger = slog.New(c.logHandler)
	slog.SetDefault(c.logger)

	c.summarizer = newSummarizer(c, config.HTTPClient)

	c.config.Discord.httpClient = config.HTTPClient
	disc := newDiscord(config.Discord)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)
	disc.logger = slog.New(newLogHandler(config.Discord.LogLevel)).With(
		loggerNameKey, "discord",
	)
	c.discord = disc
	disc.dc = c

	c.source = newPostSource(
		config.Digest,
		slog.New(newLogHandler(config.Digest.LogLevel)).With(
			loggerNameKey, "post_source",
		),
	)
	c.confirmations = newConfirmationStore(config.Digest.ConfirmationTTL)

	if config.Scraper.CookiesFile != "" {
		c.scraper = NewTimelineScraper(config.Scraper, config.Digest)
	}

	if config.API.Listen != "" {
		c.api = newAPI(c, config.API)
	}

	return c, nil
}

// ValidateConfig validates the bot's configuration
func (c *Curator) ValidateConfig() error {
	return structValidator.Struct(c.config)
}

// Run starts the bot and blocks until the given context is canceled or a
// stop signal is sent, then shuts down gracefully.
func (c *Curator) Run(ctx context.Context) error {
	// prevents concurrent runs
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.signalStop = make(chan struct{}, 1)
	c.startedAt = time.Now()
	logger := c.logger

	if err := c.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", c.config))

	if c.signalReady == nil {
		c.signalReady = make(chan struct{}, 1)
	}

	// the runtime context - canceling it triggers a graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.signalStop:
			c.logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			c.logger.Warn("context canceled, sending stop signal")
			c.signalStop <- struct{}{}
		}
	}()

	if c.api != nil {
		go func() {
			if err := c.api.Serve(ctx); err != nil {
				c.logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(err))
			}
		}()
	}

	startCtx, startCancel := context.WithTimeout(ctx, c.config.StartupTimeout)
	defer startCancel()

	if err := c.initDiscordSession(startCtx, ctx); err != nil {
		logger.ErrorContext(ctx, "discord init error", tint.Err(err))
		return err
	}

	if err := c.startScheduler(ctx); err != nil {
		logger.ErrorContext(ctx, "scheduler error", tint.Err(err))
		return err
	}

	c.signalReady <- struct{}{}
	c.logger.InfoContext(ctx, "sent ready signal")

	<-ctx.Done()
	return c.shutdown(ctx)
}

// Stop sends an explicit stop signal to a running bot.
func (c *Curator) Stop() {
	if c.signalStop != nil {
		c.signalStop <- struct{}{}
	}
}

// initDiscordSession creates the gateway session, registers handlers and
// opens the connection, then runs the startup channel warm-up.
func (c *Curator) initDiscordSession(
	startCtx context.Context,
	ctx context.Context,
) error {
	if c.discord.session == nil {
		session, err := c.discord.newSession()
		if err != nil {
			return err
		}
		c.discord.session = session
	}

	c.discord.discordgoRemoveHandlerFuncs = []func(){
		c.discord.session.AddHandler(c.discord.handlerReady()),
		c.discord.session.AddHandler(c.discord.handlerConnect()),
		c.discord.session.AddHandler(c.discord.handlerDisconnect()),
		c.discord.session.AddHandler(c.handlerMessageCreate(ctx)),
	}

	if err := c.discord.session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}

	c.discord.warmChannels(
		startCtx,
		c.config.Digest.Subnets,
		map[string]string{
			"curation": c.config.Discord.CurationChannelID,
			"news":     c.config.Discord.NewsChannelID,
			"kol":      c.config.Discord.KOLChannelID,
		},
	)
	return nil
}

// handlerMessageCreate returns the gateway MessageCreate handler. Each
// message is dispatched on its own goroutine.
func (c *Curator) handlerMessageCreate(ctx context.Context) func(
	*discordgo.Session,
	*discordgo.MessageCreate,
) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil {
			return
		}
		go c.handleMessage(ctx, m.Message)
	}
}

// handleMessage routes an incoming message: the bot's own messages are
// dropped, news-channel messages are auto-summarized, curation-channel
// messages from the authorized user go through the routing workflow, and
// everything else falls through to prefix commands.
func (c *Curator) handleMessage(ctx context.Context, m *discordgo.Message) {
	ctx, logger := c.getLogger(ctx)

	author := messageAuthor(m)
	if author == nil || author.ID == c.discord.BotUserID() {
		return
	}

	logger.DebugContext(
		ctx,
		"message received",
		messageLogAttrs(m)...,
	)

	// announcements in the news channel usually arrive via webhooks or
	// relay bots, so bot authors are filtered out of the command and
	// routing paths only
	if m.ChannelID == c.config.Discord.NewsChannelID {
		c.handleNewsUpdate(ctx, m)
		if !author.Bot {
			c.processCommand(ctx, m)
		}
		return
	}

	if author.Bot {
		return
	}

	if author.ID != c.config.Discord.CuratorUserID {
		c.processCommand(ctx, m)
		return
	}

	if m.ChannelID == c.config.Discord.CurationChannelID {
		if c.handleCurationMessage(ctx, m) {
			return
		}
	}

	c.processCommand(ctx, m)
}

// processCommand handles prefix commands (`!hello`, `!kol_now`).
func (c *Curator) processCommand(ctx context.Context, m *discordgo.Message) {
	ctx, logger := c.getLogger(ctx)

	prefix := c.config.Discord.CommandPrefix
	if prefix == "" || !strings.HasPrefix(m.Content, prefix) {
		return
	}
	command := strings.Fields(strings.TrimPrefix(m.Content, prefix))
	if len(command) == 0 {
		return
	}

	logger.InfoContext(
		ctx,
		"command received",
		append([]any{"command", command[0]}, messageLogAttrs(m)...)...,
	)

	switch command[0] {
	case "hello":
		c.replyToChannel(ctx, m.ChannelID, "Hello! I'm alive 🚀")
	case "kol_now":
		c.replyToChannel(ctx, m.ChannelID, "Running KOL summary manually...")
		if err := c.RunDailyDigest(ctx); err != nil {
			if errors.Is(err, ErrDigestRunning) {
				c.replyToChannel(
					ctx,
					m.ChannelID,
					"⏳ A digest run is already in progress.",
				)
				return
			}
			logger.ErrorContext(ctx, "manual digest failed", tint.Err(err))
		}
	case "kol_preview":
		// raw paragraph-mode digest, no scrape and no LLM round-trip
		sections := BuildDailySections(
			c.config.Digest.Handles,
			c.source,
			c.config.Digest.LinkAllowlist,
		)
		for _, section := range sections {
			c.replyToChannel(ctx, m.ChannelID, section)
		}
	}
}

// shutdown closes the discord session, stops the schedule and shuts down
// the API server, honoring the configured shutdown timeout.
func (c *Curator) shutdown(ctx context.Context) error {
	c.logger.WarnContext(ctx, "shutting down")
	defer func() {
		if c.eventShutdown != nil {
			go func() {
				c.eventShutdown <- struct{}{}
			}()
		}
	}()

	closeCtx, closeCancel := context.WithTimeout(
		context.Background(),
		c.config.ShutdownTimeout,
	)
	defer closeCancel()

	if c.cron != nil {
		stopCtx := c.cron.Stop()
		select {
		case <-stopCtx.Done():
			c.logger.Info("schedule stopped")
		case <-closeCtx.Done():
			c.logger.Warn("timed out waiting for schedule to stop")
		}
	}

	for _, remove := range c.discord.discordgoRemoveHandlerFuncs {
		remove()
	}
	if c.discord.session != nil {
		if err := c.discord.session.Close(); err != nil {
			c.logger.Error("error closing discord session", tint.Err(err))
		}
	}

	if c.api != nil {
		if err := c.api.httpServer.Shutdown(closeCtx); err != nil {
			c.logger.Error("error shutting down api server", tint.Err(err))
		}
	}

	c.logger.WarnContext(ctx, "shutdown complete")
	return nil
}
