package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codescout/internal/search"
)

var flagTopK int

var searchCmd = &cobra.Command{
	Use:   "search <repo> <query>",
	Short: "Search an indexed repository with a natural language query",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRef := args[0]
		query := strings.Join(args[1:], " ")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		engine := search.New(a.catalog, a.store, a.embedder, a.log, search.Options{
			MinScore: a.cfg.Search.MinScore,
		})

		topK := flagTopK
		if topK <= 0 {
			topK = a.cfg.Search.TopK
		}

		results, err := engine.Search(cmd.Context(), repoRef, query, topK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results. Has the repository been indexed?")
			return nil
		}

		for i, r := range results {
			fmt.Printf("%d. %s:%d-%d  (%.3f)\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
			if r.Name != "" {
				fmt.Printf("   %s %s\n", r.Kind, r.Name)
			}
			fmt.Println(indent(r.Snippet, "   "))
		}
		return nil
	},
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	searchCmd.Flags().IntVarP(&flagTopK, "top", "k", 0, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
