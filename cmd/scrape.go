package cmd

import (
	"log"

	"github.com/RadoTSC/bittensor-assistant-bot/curator"
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the timeline scraper once and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		scraper := curator.NewTimelineScraper(cfg.Scraper, cfg.Digest)
		if err := scraper.ScrapeAll(ctx); err != nil {
			log.Fatalf("scrape failed: %s", err.Error())
		}
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(scrapeCmd)
}
