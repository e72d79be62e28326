package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jswatch/jswatch/internal/extract"
	"github.com/jswatch/jswatch/internal/fingerprint"
)

const analyzeFetchLimit = 4 * 1024 * 1024

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file-or-url>",
	Short: "Extract endpoints and a structural fingerprint from one JavaScript file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		content, err := readSource(cmd, source)
		if err != nil {
			return err
		}

		extractor := extract.NewExtractor(logger)
		endpoints, err := extractor.Extract(cmd.Context(), string(content), source, cliConfig.CustomPatterns)
		if err != nil {
			return fmt.Errorf("extracting endpoints: %w", err)
		}

		fp := fingerprint.Compute(string(content))

		fmt.Printf("%s %s (%d bytes)\n", colorInfo("Analyzed:"), source, len(content))
		fmt.Printf("  signatures: %d  imports: %d  hash: %s\n",
			len(fp.Signatures), len(fp.Imports), fp.NormalizedHash[:12])

		if len(endpoints) == 0 {
			fmt.Println(colorWarn("no endpoints found"))
			return nil
		}

		fmt.Printf("%s %d endpoint(s)\n", colorSuccess("Found:"), len(endpoints))
		for _, ep := range endpoints {
			line := fmt.Sprintf("  [%s] %s", formatConfidence(ep.Confidence), ep.URL)
			if ep.Method != "" {
				line += fmt.Sprintf(" (%s)", ep.Method)
			}
			line += fmt.Sprintf("  %s:%d", ep.Category, ep.Line)
			fmt.Println(line)
		}

		summary := extract.Summarize(endpoints)
		fmt.Printf("%s high=%d medium=%d low=%d\n", colorInfo("Confidence:"),
			summary.ByConfidence[string(extract.ConfidenceHigh)],
			summary.ByConfidence[string(extract.ConfidenceMedium)],
			summary.ByConfidence[string(extract.ConfidenceLow)])
		return nil
	},
}

func readSource(cmd *cobra.Command, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		timeout, _ := cmd.Flags().GetInt("timeout")
		client := &http.Client{Timeout: time.Duration(timeout) * time.Second}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("fetching %s: unexpected status %d", source, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, analyzeFetchLimit))
	}
	return os.ReadFile(source)
}

func init() {
	analyzeCmd.Flags().Int("timeout", 10, "fetch timeout in seconds for URL sources")
}
