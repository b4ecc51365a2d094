package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

func lookupCmd() *cobra.Command {
	var asJSON bool
	var showCandidates bool
	cmd := &cobra.Command{
		Use:   "lookup <mention> [mention...]",
		Short: "Resolve product mentions against the catalog",
		Long:  "Resolve one or more free-text product mentions to available catalog items. Mentions may also be given as a single comma-separated argument.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			mentions := splitMentions(args)
			if showCandidates {
				for _, m := range mentions {
					fmt.Printf("%s:\n", m)
					for _, c := range rt.scorer.Rank(m, rt.resolver.Resolve(ctx, m)) {
						fmt.Printf("  %8.2f  %s  %s\n", c.Score, c.Identifier, c.DisplayName)
					}
				}
				return nil
			}

			results := rt.dispatcher.Resolve(ctx, mentions)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			fmt.Println(catalog.FormatBatch(results))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&showCandidates, "candidates", false, "print ranked candidates instead of resolving availability")
	return cmd
}

// splitMentions flattens args, splitting on commas and dropping blanks.
func splitMentions(args []string) []string {
	var out []string
	for _, a := range args {
		for _, m := range strings.Split(a, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}
