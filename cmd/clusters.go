package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jswatch/jswatch/internal/fingerprint"
	"github.com/jswatch/jswatch/internal/monitor"
	"github.com/jswatch/jswatch/internal/storage"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters [domain]",
	Short: "Show groups of stored files that look like renamed or moved copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening content store: %w", err)
		}
		defer store.Close()

		domains := args
		if len(domains) == 0 {
			domains, err = store.Domains()
			if err != nil {
				return err
			}
		}
		if len(domains) == 0 {
			fmt.Println(colorWarn("no stored domains yet, run monitor first"))
			return nil
		}

		engine := monitor.NewEngine(store, nil, logger, monitor.Config{
			SimilarityThreshold: cliConfig.SimilarityThreshold,
		})

		for _, domain := range domains {
			result, err := engine.ClusterDomain(domain)
			if err != nil {
				logger.Warnw("clustering failed", "domain", domain, "error", err)
				continue
			}
			printClusters(domain, result)
		}
		return nil
	},
}

func printClusters(domain string, result fingerprint.Result) {
	fmt.Printf("%s %s\n", colorInfo("Domain:"), domain)
	if len(result.Clusters) == 0 {
		fmt.Printf("  %d file(s), no similar groups\n", len(result.Singletons))
		return
	}
	for i, cluster := range result.Clusters {
		fmt.Printf("  %s %d (%s)\n", colorSuccess("cluster"), i+1, cluster.Reason)
		for _, member := range cluster.MemberURLs {
			fmt.Printf("    %s\n", member)
		}
	}
	if len(result.Singletons) > 0 {
		fmt.Printf("  singletons: %d\n", len(result.Singletons))
	}
}
