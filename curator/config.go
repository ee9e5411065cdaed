//nolint:lll // struct tags can't be split
package curator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	EnvvarSetEnvPrefix = "BAB_ENV_PREFIX"
	DefaultEnvPrefix   = "BAB"

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultSummarizerBaseURL              = "https://llm.chutes.ai/v1"
	DefaultSummarizerModel                = "moonshotai/Kimi-K2-Instruct-75k"
	DefaultSummarizerTemperature          = 0.3
	DefaultSummarizerMaxRequestsPerSecond = 1
	DefaultSummarizerLogLevel             = slog.LevelInfo

	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	DefaultDiscordLogLevel      = slog.LevelWarn
	DefaultDiscordgoLogLevel    = slog.LevelWarn
	DefaultCommandPrefix        = "!"
	DefaultDiscordCustomStatus  = "curating subnets"
	discordMaxMessageLength     = 2000
	logContentPreviewLength     = 100

	DefaultDataDir         = "."
	DefaultDigestTimezone  = "America/New_York"
	DefaultDigestPostTime  = "08:00"
	DefaultDigestLookback  = 24 * time.Hour
	DefaultConfirmationTTL = time.Hour
	DefaultDigestLogLevel  = slog.LevelInfo

	DefaultScraperCookiesFile      = "cookies.json"
	DefaultScraperMaxScanPerHandle = 60
	DefaultScraperHeadless         = true
	DefaultScraperLogLevel         = slog.LevelInfo

	DefaultAPIListen            = "127.0.0.1:5000"
	DefaultAPILogLevel          = slog.LevelInfo
	DefaultAPIReadTimeout       = 5 * time.Second
	DefaultAPIReadHeaderTimeout = 5 * time.Second
	DefaultAPIWriteTimeout      = 10 * time.Second
	DefaultAPIIdleTimeout       = 30 * time.Second
	defaultListenNetwork        = "tcp"
)

// DefaultSubnetChannels is the static routing table mapping subnet names to
// the Discord channel receiving that subnet's summaries. Lookup is by the
// numeric suffix of the key (a bare "62" resolves "ridges-62"). Overridable
// from a config file; never mutated at runtime.
var DefaultSubnetChannels = map[string]string{
	"bitcast-93":       "1409911111111222333",
	"ridges-62":        "1409922222222333444",
	"chutes-64":        "1409933333333444555",
	"flamewire-97":     "1409944444444555666",
	"taonado-113":      "1409955555555666777",
	"bitsec-60":        "1409966666666777888",
	"compute-horde-12": "1409977777777888999",
}

// DefaultKOLHandles lists the tracked public accounts, in output order for
// the daily digest.
var DefaultKOLHandles = []string{
	"TAOTemplar", "JosephJacks_", "jaltucher", "KeithSingery", "SiamKidd", "markjeffrey",
	"Taotreasuries", "here4impact", "SubnetStats", "mogmachine", "const_reborn", "shibshib89",
	"Old_Samster", "bittingthembits", "badenglishtea", "learnbittensor", "Obsessedfan5",
}

// DefaultLinkAllowlist holds the trusted link domains listed ahead of all
// other links in digest output.
var DefaultLinkAllowlist = []string{
	"youtube.com", "youtu.be", "github.com", "gitlab.com", "pypi.org",
	"docs.google.com", "drive.google.com", "readthedocs.io", "bittensor.com",
	"medium.com", "substack.com", "mirror.xyz",
}

type Config struct {
	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Summarizer configures the LLM endpoint integration
	Summarizer *SummarizerConfig `yaml:"summarizer" mapstructure:"summarizer" json:"summarizer"`

	// Digest configures the KOL digest pipeline and subnet routing
	Digest *DigestConfig `yaml:"digest" mapstructure:"digest" json:"digest"`

	// Scraper configures the timeline scraper
	Scraper *ScraperConfig `yaml:"scraper" mapstructure:"scraper" json:"scraper"`

	// API configures the status/trigger HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id"`

	// CuratorUserID is the single user ID authorized to use the routing
	// workflow and operator commands
	CuratorUserID string `yaml:"curator_user_id" mapstructure:"curator_user_id" json:"curator_user_id" binding:"required"`

	// CurationChannelID is the channel watched for bare subnet queries
	CurationChannelID string `yaml:"curation_channel_id" mapstructure:"curation_channel_id" json:"curation_channel_id" binding:"required"`

	// NewsChannelID is the channel whose every message is auto-summarized.
	// Empty disables the news handler.
	NewsChannelID string `yaml:"news_channel_id" mapstructure:"news_channel_id" json:"news_channel_id"`

	// KOLChannelID receives the daily digest output
	KOLChannelID string `yaml:"kol_channel_id" mapstructure:"kol_channel_id" json:"kol_channel_id" binding:"required"`

	// CommandPrefix for chat commands such as `!hello`
	CommandPrefix string `yaml:"command_prefix" mapstructure:"command_prefix" json:"command_prefix"`

	// CustomStatus shown on the bot user
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

// SummarizerConfig configures the OpenAI-compatible chat completion endpoint.
//
//nolint:lll // can't break tags
type SummarizerConfig struct {
	// API token for the summarization service
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// BaseURL of the OpenAI-compatible API
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url" binding:"required,url"`

	// Model name sent with each completion request
	Model string `yaml:"model" mapstructure:"model" json:"model" binding:"required"`

	// Temperature for completion requests
	Temperature float32 `yaml:"temperature" mapstructure:"temperature" json:"temperature" binding:"gte=0,lte=2"`

	// MaxRequestsPerSecond limits the completion request rate
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second" binding:"gt=0"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DigestConfig configures the digest pipeline: where scraped records live,
// which handles are tracked, and when/where the daily digest posts.
//
//nolint:lll // can't break tags
type DigestConfig struct {
	// DataDir holds the per-handle JSONL record files
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" json:"data_dir" binding:"required"`

	// Handles is the ordered list of tracked accounts
	Handles []string `yaml:"handles" mapstructure:"handles" json:"handles"`

	// LinkAllowlist holds trusted domains, listed first in link output
	LinkAllowlist []string `yaml:"link_allowlist" mapstructure:"link_allowlist" json:"link_allowlist"`

	// Subnets maps subnet names (keyed by numeric suffix) to channel IDs
	Subnets map[string]string `yaml:"subnets" mapstructure:"subnets" json:"subnets"`

	// Timezone for the daily post time (IANA name)
	Timezone string `yaml:"timezone" mapstructure:"timezone" json:"timezone" binding:"required"`

	// PostTime is the daily wall-clock post time, "HH:MM"
	PostTime string `yaml:"post_time" mapstructure:"post_time" json:"post_time" binding:"required"`

	// Lookback is the window for "recent" posts
	Lookback time.Duration `yaml:"lookback" mapstructure:"lookback" json:"lookback" binding:"required"`

	// ConfirmationTTL is how long an unresolved routing confirmation stays
	// retryable
	ConfirmationTTL time.Duration `yaml:"confirmation_ttl" mapstructure:"confirmation_ttl" json:"confirmation_ttl"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// ScraperConfig configures the headless-browser timeline scraper.
//
//nolint:lll // can't break tags
type ScraperConfig struct {
	// CookiesFile is the path to the stored x.com session cookies
	CookiesFile string `yaml:"cookies_file" mapstructure:"cookies_file" json:"cookies_file"`

	// Headless controls whether the browser runs headless
	Headless bool `yaml:"headless" mapstructure:"headless" json:"headless"`

	// MaxScanPerHandle caps how many timeline posts are scanned per handle
	MaxScanPerHandle int `yaml:"max_scan_per_handle" mapstructure:"max_scan_per_handle" json:"max_scan_per_handle" binding:"gt=0"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// APIConfig configures the status/trigger HTTP server.
//
//nolint:lll // can't break tags
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	// Empty disables the server.
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"omitempty,oneof=tcp tcp4 tcp6 unix"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	summarizerLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	digestLogLevel := &slog.LevelVar{}
	scraperLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	summarizerLogLevel.Set(DefaultSummarizerLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	digestLogLevel.Set(DefaultDigestLogLevel)
	scraperLogLevel.Set(DefaultScraperLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	handles := make([]string, len(DefaultKOLHandles))
	copy(handles, DefaultKOLHandles)

	allowlist := make([]string, len(DefaultLinkAllowlist))
	copy(allowlist, DefaultLinkAllowlist)

	subnets := make(map[string]string, len(DefaultSubnetChannels))
	for k, v := range DefaultSubnetChannels {
		subnets[k] = v
	}

	return &Config{
		LogLevel:        mainLogLevel,
		StartupTimeout:  DefaultStartupTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			CommandPrefix:     DefaultCommandPrefix,
			CustomStatus:      DefaultDiscordCustomStatus,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Summarizer: &SummarizerConfig{
			BaseURL:              DefaultSummarizerBaseURL,
			Model:                DefaultSummarizerModel,
			Temperature:          DefaultSummarizerTemperature,
			MaxRequestsPerSecond: DefaultSummarizerMaxRequestsPerSecond,
			LogLevel:             summarizerLogLevel,
		},
		Digest: &DigestConfig{
			DataDir:         DefaultDataDir,
			Handles:         handles,
			LinkAllowlist:   allowlist,
			Subnets:         subnets,
			Timezone:        DefaultDigestTimezone,
			PostTime:        DefaultDigestPostTime,
			Lookback:        DefaultDigestLookback,
			ConfirmationTTL: DefaultConfirmationTTL,
			LogLevel:        digestLogLevel,
		},
		Scraper: &ScraperConfig{
			CookiesFile:      DefaultScraperCookiesFile,
			Headless:         DefaultScraperHeadless,
			MaxScanPerHandle: DefaultScraperMaxScanPerHandle,
			LogLevel:         scraperLogLevel,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultAPIReadTimeout,
			ReadHeaderTimeout: DefaultAPIReadHeaderTimeout,
			WriteTimeout:      DefaultAPIWriteTimeout,
			IdleTimeout:       DefaultAPIIdleTimeout,
		},
	}
}
