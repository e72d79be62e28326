package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jswatch/jswatch/internal/monitor"
	"github.com/jswatch/jswatch/internal/notify"
	"github.com/jswatch/jswatch/internal/storage"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [targets...]",
	Short: "Crawl targets, track JavaScript changes and report new endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := args
		if len(targets) == 0 {
			targets = cliConfig.Targets
		}
		if len(targets) == 0 {
			return fmt.Errorf("no targets given (pass arguments or set targets in the config file)")
		}

		once, _ := cmd.Flags().GetBool("once")
		webhookURL, _ := cmd.Flags().GetString("webhook")
		depth, _ := cmd.Flags().GetInt("depth")
		rateLimit, _ := cmd.Flags().GetInt("rate")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		store, err := storage.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening content store: %w", err)
		}
		defer store.Close()

		var transport notify.Transport
		if webhookURL != "" {
			transport = notify.NewWebhookTransport(webhookURL, 0)
		}
		minInterval := time.Duration(cliConfig.Notify.MinIntervalMins) * time.Minute
		aggregator := notify.NewAggregator(transport, minInterval, logger)

		engine := monitor.NewEngine(store, aggregator, logger, monitor.Config{
			SimilarityThreshold:   cliConfig.SimilarityThreshold,
			MaxSectionLines:       cliConfig.MaxSectionLines,
			MaxFilesPerDomain:     cliConfig.MaxFilesPerDomain,
			MaxEndpointsPerDomain: cliConfig.MaxEndpointsPerDomain,
			CustomPatterns:        cliConfig.CustomPatterns,
		})

		driver := monitor.NewHTTPDriver(monitor.CrawlOptions{
			MaxDepth:     depth,
			MaxPages:     cliConfig.Crawl.MaxPages,
			MaxScripts:   cliConfig.Crawl.MaxScripts,
			SameHostOnly: cliConfig.Crawl.SameHostOnly,
			RateLimit:    rateLimit,
		}, logger)

		runner := monitor.NewRunner(engine, driver, concurrency, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if once {
			report, err := runner.RunCycle(ctx, targets)
			if err != nil {
				return err
			}
			printCycleReport(report)
			return nil
		}

		interval := time.Duration(cliConfig.Crawl.IntervalMinutes) * time.Minute
		fmt.Printf("%s monitoring %d target(s) every %s\n", colorInfo("jswatch:"), len(targets), interval)
		err = runner.RunLoop(ctx, targets, interval)
		if err != nil && ctx.Err() != nil {
			// Clean shutdown on signal.
			fmt.Println(colorInfo("monitor stopped"))
			return nil
		}
		return err
	},
}

func printCycleReport(report monitor.CycleReport) {
	fmt.Println(colorSuccess("Cycle complete."))
	fmt.Printf("%s %s\n", colorInfo("Cycle:"), report.CycleID)
	fmt.Printf("  files analyzed: %d\n", report.Files)
	fmt.Printf("  new:            %s\n", colorWarn(fmt.Sprintf("%d", report.NewFiles)))
	fmt.Printf("  changed:        %s\n", colorWarn(fmt.Sprintf("%d", report.Changed)))
	if report.Errors > 0 {
		fmt.Printf("  errors:         %s\n", colorError(fmt.Sprintf("%d", report.Errors)))
	}
	fmt.Printf("  notified:       %v\n", report.Flushed)
	fmt.Printf("  duration:       %s\n", report.Duration.Round(time.Millisecond))
}

func init() {
	monitorCmd.Flags().Bool("once", false, "run a single cycle and exit")
	monitorCmd.Flags().String("webhook", "", "webhook URL for change notifications")
	monitorCmd.Flags().Int("depth", defaultCrawlDepth, "maximum crawl depth per target")
	monitorCmd.Flags().Int("rate", defaultCrawlRateLimit, "max requests per second per target")
	monitorCmd.Flags().Int("concurrency", defaultCycleConcurrency, "targets crawled in parallel")
}
