package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/RadoTSC/bittensor-assistant-bot/curator"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = curator.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "bittensor-assistant-bot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("log_level", curator.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", curator.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", curator.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.curator_user_id", "")
	viper.SetDefault("discord.curation_channel_id", "")
	viper.SetDefault("discord.news_channel_id", "")
	viper.SetDefault("discord.kol_channel_id", "")
	viper.SetDefault("discord.command_prefix", curator.DefaultCommandPrefix)
	viper.SetDefault("discord.custom_status", curator.DefaultDiscordCustomStatus)
	viper.SetDefault(
		"discord.gateway_intents",
		curator.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.log_level",
		curator.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		curator.DefaultDiscordgoLogLevel.String(),
	)

	// Summarizer config
	viper.SetDefault("summarizer.token", "")
	viper.SetDefault("summarizer.base_url", curator.DefaultSummarizerBaseURL)
	viper.SetDefault("summarizer.model", curator.DefaultSummarizerModel)
	viper.SetDefault(
		"summarizer.temperature",
		curator.DefaultSummarizerTemperature,
	)
	viper.SetDefault(
		"summarizer.max_requests_per_second",
		curator.DefaultSummarizerMaxRequestsPerSecond,
	)
	viper.SetDefault(
		"summarizer.log_level",
		curator.DefaultSummarizerLogLevel.String(),
	)

	// Digest config
	viper.SetDefault("digest.data_dir", curator.DefaultDataDir)
	viper.SetDefault("digest.handles", curator.DefaultKOLHandles)
	viper.SetDefault("digest.link_allowlist", curator.DefaultLinkAllowlist)
	viper.SetDefault("digest.timezone", curator.DefaultDigestTimezone)
	viper.SetDefault("digest.post_time", curator.DefaultDigestPostTime)
	viper.SetDefault("digest.lookback", curator.DefaultDigestLookback)
	viper.SetDefault(
		"digest.confirmation_ttl",
		curator.DefaultConfirmationTTL,
	)
	viper.SetDefault("digest.log_level", curator.DefaultDigestLogLevel.String())

	// Scraper config
	viper.SetDefault("scraper.cookies_file", curator.DefaultScraperCookiesFile)
	viper.SetDefault("scraper.headless", curator.DefaultScraperHeadless)
	viper.SetDefault(
		"scraper.max_scan_per_handle",
		curator.DefaultScraperMaxScanPerHandle,
	)
	viper.SetDefault(
		"scraper.log_level",
		curator.DefaultScraperLogLevel.String(),
	)

	// API config
	viper.SetDefault("api.listen", curator.DefaultAPIListen)
	viper.SetDefault("api.read_timeout", curator.DefaultAPIReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		curator.DefaultAPIReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", curator.DefaultAPIWriteTimeout)
	viper.SetDefault("api.idle_timeout", curator.DefaultAPIIdleTimeout)
	viper.SetDefault("api.log_level", curator.DefaultAPILogLevel.String())

	envPrefix := os.Getenv(curator.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = curator.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"digest.handles",
		viper.GetStringSlice("digest.handles"),
	)
	viper.Set(
		"digest.link_allowlist",
		viper.GetStringSlice("digest.link_allowlist"),
	)

	for _, key := range []string{
		"log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"summarizer.log_level",
		"digest.log_level",
		"scraper.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
