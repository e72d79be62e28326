package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jswatch/jswatch/internal/extract"
	"github.com/jswatch/jswatch/internal/storage"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints <domain>",
	Short: "List endpoints discovered for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]
		minConfidence, _ := cmd.Flags().GetString("min-confidence")

		store, err := storage.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening content store: %w", err)
		}
		defer store.Close()

		recs, err := store.ListEndpoints(domain)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println(colorWarn("no endpoints stored for " + domain))
			return nil
		}

		endpoints := make([]extract.Endpoint, 0, len(recs))
		for _, rec := range recs {
			ep := extract.Endpoint{
				URL:        rec.Endpoint,
				Method:     rec.Method,
				Category:   extract.Category(rec.Category),
				Confidence: extract.Confidence(rec.Confidence),
				SourceFile: rec.SourceFile,
				Line:       rec.Line,
			}
			if !meetsConfidence(ep.Confidence, minConfidence) {
				continue
			}
			endpoints = append(endpoints, ep)
		}

		fmt.Printf("%s %s: %d endpoint(s)\n", colorInfo("Domain:"), domain, len(endpoints))
		for _, ep := range endpoints {
			line := fmt.Sprintf("  [%s] %s", formatConfidence(ep.Confidence), ep.URL)
			if ep.Method != "" {
				line += fmt.Sprintf(" (%s)", ep.Method)
			}
			fmt.Printf("%s  %s\n", line, ep.SourceFile)
		}

		summary := extract.Summarize(endpoints)
		fmt.Printf("%s high=%d medium=%d low=%d\n", colorInfo("Confidence:"),
			summary.ByConfidence[string(extract.ConfidenceHigh)],
			summary.ByConfidence[string(extract.ConfidenceMedium)],
			summary.ByConfidence[string(extract.ConfidenceLow)])
		return nil
	},
}

func meetsConfidence(c extract.Confidence, minimum string) bool {
	switch minimum {
	case "high":
		return c == extract.ConfidenceHigh
	case "medium":
		return c == extract.ConfidenceHigh || c == extract.ConfidenceMedium
	default:
		return true
	}
}

func init() {
	endpointsCmd.Flags().String("min-confidence", "", "only show endpoints at this confidence or above (high|medium)")
}
