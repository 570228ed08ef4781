package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codescout/internal/index"
)

var (
	flagName    string
	flagWorkers int
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a repository for search (incremental on re-run)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		if info, err := os.Stat(root); err != nil {
			return fmt.Errorf("repository path: %w", err)
		} else if !info.IsDir() {
			return fmt.Errorf("repository path %s is not a directory", root)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.catalog.EnsureRepo(root, flagName)
		if err != nil {
			return err
		}

		idx := index.New(a.catalog, a.store, a.embedder, a.registry, a.log, index.Config{
			Workers:     flagWorkers,
			MaxFileSize: a.cfg.Index.MaxFileSize,
		})

		fmt.Printf("Indexing %s (%s)...\n", repo.Name, repo.Root)
		start := time.Now()
		stats, err := idx.Run(cmd.Context(), repo)
		elapsed := time.Since(start)

		if stats != nil {
			fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
			fmt.Printf("  Files:   %d added, %d modified, %d deleted, %d unchanged, %d skipped\n",
				stats.FilesAdded, stats.FilesModified, stats.FilesDeleted,
				stats.FilesUnchanged, stats.FilesSkipped)
			fmt.Printf("  Chunks:  %d indexed, %d removed\n", stats.ChunksIndexed, stats.ChunksDeleted)
		}
		return err
	},
}

func init() {
	indexCmd.Flags().StringVar(&flagName, "name", "", "display name (default: directory basename)")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel workers (default: NumCPU)")
	rootCmd.AddCommand(indexCmd)
}
