package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jswatch/jswatch/internal/extract"
)

const (
	defaultCrawlDepth       = 2
	defaultCrawlMaxPages    = 50
	defaultCrawlMaxScripts  = 200
	defaultCrawlRateLimit   = 5
	defaultCycleConcurrency = 4
	defaultIntervalMinutes  = 30
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Targets []string
	Crawl   CrawlRuntimeConfig
	Notify  NotifyRuntimeConfig

	SimilarityThreshold   float64
	MaxSectionLines       int
	MaxFilesPerDomain     int
	MaxEndpointsPerDomain int
	CustomPatterns        []extract.CustomPattern
}

// CrawlRuntimeConfig consolidates flag-driven crawl settings.
type CrawlRuntimeConfig struct {
	MaxDepth        int
	MaxPages        int
	MaxScripts      int
	SameHostOnly    bool
	RateLimit       int
	Concurrency     int
	IntervalMinutes int
}

// NotifyRuntimeConfig groups outbound notification options.
type NotifyRuntimeConfig struct {
	WebhookURL      string
	MinIntervalMins int
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Crawl: CrawlRuntimeConfig{
			MaxDepth:        defaultCrawlDepth,
			MaxPages:        defaultCrawlMaxPages,
			MaxScripts:      defaultCrawlMaxScripts,
			SameHostOnly:    true,
			RateLimit:       defaultCrawlRateLimit,
			Concurrency:     defaultCycleConcurrency,
			IntervalMinutes: defaultIntervalMinutes,
		},
	}
}

// applyConfigDefaults merges config file values into the runtime config when
// the user did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	if viper.IsSet("targets") {
		cliConfig.Targets = viper.GetStringSlice("targets")
	}

	if viper.IsSet("crawl.max_depth") {
		applyIntDefault(monitorCmd.Flags(), "depth", viper.GetInt("crawl.max_depth"), func(v int) {
			cliConfig.Crawl.MaxDepth = v
		})
	}
	if viper.IsSet("crawl.max_pages") {
		cliConfig.Crawl.MaxPages = viper.GetInt("crawl.max_pages")
	}
	if viper.IsSet("crawl.max_scripts") {
		cliConfig.Crawl.MaxScripts = viper.GetInt("crawl.max_scripts")
	}
	if viper.IsSet("crawl.rate_limit") {
		applyIntDefault(monitorCmd.Flags(), "rate", viper.GetInt("crawl.rate_limit"), func(v int) {
			cliConfig.Crawl.RateLimit = v
		})
	}
	if viper.IsSet("crawl.concurrency") {
		applyIntDefault(monitorCmd.Flags(), "concurrency", viper.GetInt("crawl.concurrency"), func(v int) {
			cliConfig.Crawl.Concurrency = v
		})
	}
	if viper.IsSet("crawl.interval_minutes") {
		cliConfig.Crawl.IntervalMinutes = viper.GetInt("crawl.interval_minutes")
	}

	if viper.IsSet("notify.webhook_url") {
		setStringFlagIfUnset(monitorCmd.Flags(), "webhook", viper.GetString("notify.webhook_url"))
		cliConfig.Notify.WebhookURL = viper.GetString("notify.webhook_url")
	}
	if viper.IsSet("notify.min_interval_minutes") {
		cliConfig.Notify.MinIntervalMins = viper.GetInt("notify.min_interval_minutes")
	}

	if viper.IsSet("analysis.similarity_threshold") {
		cliConfig.SimilarityThreshold = viper.GetFloat64("analysis.similarity_threshold")
	}
	if viper.IsSet("analysis.max_section_lines") {
		cliConfig.MaxSectionLines = viper.GetInt("analysis.max_section_lines")
	}
	if viper.IsSet("analysis.max_files_per_domain") {
		cliConfig.MaxFilesPerDomain = viper.GetInt("analysis.max_files_per_domain")
	}
	if viper.IsSet("analysis.max_endpoints_per_domain") {
		cliConfig.MaxEndpointsPerDomain = viper.GetInt("analysis.max_endpoints_per_domain")
	}
	if viper.IsSet("analysis.custom_patterns") {
		var patterns []extract.CustomPattern
		if err := viper.UnmarshalKey("analysis.custom_patterns", &patterns); err == nil {
			cliConfig.CustomPatterns = patterns
		} else if logger != nil {
			logger.Warnw("invalid custom_patterns in config", "error", err)
		}
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
