package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RadoTSC/bittensor-assistant-bot/curator"
	"github.com/bwmarrin/discordgo"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Save the original environment
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)

	// Clear the environment before the test
	os.Clearenv()

	tmpdir := t.TempDir()

	// Set up the test environment file
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General config

BAB_LOG_LEVEL=INFO
BAB_STARTUP_TIMEOUT=30s
BAB_SHUTDOWN_TIMEOUT=60s

# Discord bot config

BAB_DISCORD_TOKEN=your-discord-bot-token
BAB_DISCORD_CURATOR_USER_ID=111111111111111111
BAB_DISCORD_CURATION_CHANNEL_ID=222222222222222222
BAB_DISCORD_NEWS_CHANNEL_ID=333333333333333333
BAB_DISCORD_KOL_CHANNEL_ID=444444444444444444
BAB_DISCORD_COMMAND_PREFIX=!
BAB_DISCORD_LOG_LEVEL=WARN
BAB_DISCORD_DISCORDGO_LOG_LEVEL=WARN
BAB_DISCORD_GATEWAY_INTENTS=3243773

# Summarizer config

BAB_SUMMARIZER_TOKEN=your-llm-api-token
BAB_SUMMARIZER_BASE_URL=https://llm.chutes.ai/v1
BAB_SUMMARIZER_MODEL=moonshotai/Kimi-K2-Instruct-75k
BAB_SUMMARIZER_LOG_LEVEL=INFO

# Digest config

BAB_DIGEST_DATA_DIR=/home/foo/data
BAB_DIGEST_TIMEZONE=America/New_York
BAB_DIGEST_POST_TIME=08:00
BAB_DIGEST_LOOKBACK=24h
BAB_DIGEST_CONFIRMATION_TTL=1h
BAB_DIGEST_LOG_LEVEL=INFO

# Scraper config

BAB_SCRAPER_COOKIES_FILE=/home/foo/cookies.json
BAB_SCRAPER_HEADLESS=true
BAB_SCRAPER_MAX_SCAN_PER_HANDLE=60
BAB_SCRAPER_LOG_LEVEL=INFO

# API server

BAB_API_LISTEN=127.0.0.1:5000
BAB_API_LOG_LEVEL=DEBUG
BAB_API_READ_TIMEOUT=5s
BAB_API_READ_HEADER_TIMEOUT=5s
BAB_API_WRITE_TIMEOUT=10s
BAB_API_IDLE_TIMEOUT=30s
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	assert.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assertLogLevel(t, slog.LevelInfo, viper.Get("log_level"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("startup_timeout"))
	assert.Equal(t, 60*time.Second, viper.GetDuration("shutdown_timeout"))

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assert.Equal(
		t,
		"111111111111111111",
		viper.GetString("discord.curator_user_id"),
	)
	assert.Equal(
		t,
		"222222222222222222",
		viper.GetString("discord.curation_channel_id"),
	)
	assert.Equal(
		t,
		"333333333333333333",
		viper.GetString("discord.news_channel_id"),
	)
	assert.Equal(
		t,
		"444444444444444444",
		viper.GetString("discord.kol_channel_id"),
	)
	assert.Equal(t, "!", viper.GetString("discord.command_prefix"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.log_level"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.discordgo_log_level"))
	assert.Equal(t, 3243773, viper.GetInt("discord.gateway_intents"))

	assert.Equal(t, "your-llm-api-token", viper.GetString("summarizer.token"))
	assert.Equal(
		t,
		"https://llm.chutes.ai/v1",
		viper.GetString("summarizer.base_url"),
	)
	assert.Equal(
		t,
		"moonshotai/Kimi-K2-Instruct-75k",
		viper.GetString("summarizer.model"),
	)
	assertLogLevel(t, slog.LevelInfo, viper.Get("summarizer.log_level"))

	assert.Equal(t, "/home/foo/data", viper.GetString("digest.data_dir"))
	assert.Equal(t, "America/New_York", viper.GetString("digest.timezone"))
	assert.Equal(t, "08:00", viper.GetString("digest.post_time"))
	assert.Equal(t, 24*time.Hour, viper.GetDuration("digest.lookback"))
	assert.Equal(t, time.Hour, viper.GetDuration("digest.confirmation_ttl"))

	assert.Equal(
		t,
		"/home/foo/cookies.json",
		viper.GetString("scraper.cookies_file"),
	)
	assert.True(t, viper.GetBool("scraper.headless"))
	assert.Equal(t, 60, viper.GetInt("scraper.max_scan_per_handle"))

	assert.Equal(t, "127.0.0.1:5000", viper.GetString("api.listen"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("api.log_level"))
	assert.Equal(t, slog.LevelDebug, cfg.API.LogLevel.Level())
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_timeout"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_header_timeout"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("api.write_timeout"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("api.idle_timeout"))

	// Unmarshal the configuration into a curator.Config struct
	var config curator.Config
	err = viper.Unmarshal(
		&config, viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	assert.NoError(t, err)

	// Verify some key fields in the Config struct
	assert.Equal(t, slog.LevelInfo, config.LogLevel.Level())
	assert.Equal(t, 30*time.Second, config.StartupTimeout)
	assert.Equal(t, 60*time.Second, config.ShutdownTimeout)

	assert.Equal(t, "your-discord-bot-token", config.Discord.Token)
	assert.Equal(t, "111111111111111111", config.Discord.CuratorUserID)
	assert.Equal(t, "222222222222222222", config.Discord.CurationChannelID)
	assert.Equal(t, "333333333333333333", config.Discord.NewsChannelID)
	assert.Equal(t, "444444444444444444", config.Discord.KOLChannelID)
	assert.Equal(t, slog.LevelWarn, config.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelWarn, config.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, discordgo.Intent(3243773), config.Discord.GatewayIntents)

	assert.Equal(t, "your-llm-api-token", config.Summarizer.Token)
	assert.Equal(t, "https://llm.chutes.ai/v1", config.Summarizer.BaseURL)
	assert.Equal(t, "moonshotai/Kimi-K2-Instruct-75k", config.Summarizer.Model)
	assert.Equal(t, slog.LevelInfo, config.Summarizer.LogLevel.Level())

	assert.Equal(t, "/home/foo/data", config.Digest.DataDir)
	assert.Equal(t, "America/New_York", config.Digest.Timezone)
	assert.Equal(t, "08:00", config.Digest.PostTime)
	assert.Equal(t, 24*time.Hour, config.Digest.Lookback)
	assert.Equal(t, time.Hour, config.Digest.ConfirmationTTL)

	assert.Equal(t, "/home/foo/cookies.json", config.Scraper.CookiesFile)
	assert.True(t, config.Scraper.Headless)
	assert.Equal(t, 60, config.Scraper.MaxScanPerHandle)

	assert.Equal(t, "127.0.0.1:5000", config.API.Listen)
	assert.Equal(t, slog.LevelDebug, config.API.LogLevel.Level())
	assert.Equal(t, 5*time.Second, config.API.ReadTimeout)
	assert.Equal(t, 5*time.Second, config.API.ReadHeaderTimeout)
	assert.Equal(t, 10*time.Second, config.API.WriteTimeout)
	assert.Equal(t, 30*time.Second, config.API.IdleTimeout)
}
