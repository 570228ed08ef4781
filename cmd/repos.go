package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage indexed repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repos, err := a.catalog.ListRepos()
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories indexed.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFILES\tCHUNKS\tMODEL\tINDEXED\tROOT")
		for _, r := range repos {
			model := r.Model
			if model == "" {
				model = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				r.ID, r.Name, r.FileCount, r.ChunkCount, model,
				r.IndexedAt.Format("2006-01-02 15:04"), r.Root)
		}
		return w.Flush()
	},
}

var reposRemoveCmd = &cobra.Command{
	Use:   "remove <repo>",
	Short: "Remove a repository's index and vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.catalog.GetRepo(args[0])
		if err != nil {
			return err
		}
		if err := a.store.DropNamespace(cmd.Context(), repo.Namespace); err != nil {
			return err
		}
		if err := a.catalog.RemoveRepo(repo.ID); err != nil {
			return err
		}
		fmt.Printf("Removed %s (%s)\n", repo.Name, repo.ID)
		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposRemoveCmd)
	rootCmd.AddCommand(reposCmd)
}
