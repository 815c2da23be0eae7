package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgitdev/ai-assistant/internal/config"
	"github.com/rgitdev/ai-assistant/internal/search"
	"github.com/rgitdev/ai-assistant/internal/storage"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		rawCategory, _ := cmd.Flags().GetString("category")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		svc, err := buildServices(cfg)
		if err != nil {
			return err
		}
		defer svc.store.Close()

		ctx := context.Background()
		opts := search.Options{
			TopK:     resolveLimit(limit, cfg.Retrieval.TopK),
			MinScore: float32(cfg.Retrieval.MinScore),
		}

		var memories []storage.MemoryRecord
		if rawCategory != "" {
			category, ok := storage.ParseCategory(rawCategory)
			if !ok {
				return fmt.Errorf("unknown category %q", rawCategory)
			}
			memories, err = svc.search.SearchMemoriesByCategory(ctx, category, args[0], opts)
		} else {
			memories, err = svc.search.SearchMemories(ctx, args[0], opts)
		}
		if err != nil {
			return err
		}

		if len(memories) == 0 {
			printWarning("no memories found")
			return nil
		}
		for _, m := range memories {
			printStatus(string(m.Category), "%s", m.Title)
			fmt.Fprintf(out, "    %s\n", m.Content)
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run the indexing passes once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		memorize, _ := cmd.Flags().GetBool("memorize")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		svc, err := buildServices(cfg)
		if err != nil {
			return err
		}
		defer svc.store.Close()

		ctx := context.Background()
		printStep("indexing memories")
		if err := svc.indexer.IndexMemories(ctx); err != nil {
			return err
		}
		printStep("indexing conversations")
		if err := svc.indexer.IndexConversations(ctx); err != nil {
			return err
		}
		if memorize {
			printStep("memorizing conversations")
			if err := svc.indexer.MemorizeConversations(ctx); err != nil {
				return err
			}
		}
		printSuccess("indexing complete")
		return nil
	},
}

// resolveLimit applies the configured retrieval top-k when --limit was
// not given on the command line.
func resolveLimit(flagValue, configured int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configured
}

func init() {
	searchCmd.Flags().Int("limit", 0, "maximum number of results (default: configured top-k)")
	searchCmd.Flags().String("category", "", "restrict search to one category")
	indexCmd.Flags().Bool("memorize", false, "also derive memories from conversations (needs an LLM provider)")
}
