package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"codescout/internal/index"
	"codescout/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing repository indexing and search tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	engine := search.New(a.catalog, a.store, a.embedder, a.log, search.Options{
		MinScore: a.cfg.Search.MinScore,
	})
	idx := index.New(a.catalog, a.store, a.embedder, a.registry, a.log, index.Config{
		Workers:     a.cfg.Index.Workers,
		MaxFileSize: a.cfg.Index.MaxFileSize,
	})

	s := mcpserver.NewMCPServer("codescout", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(indexRepositoryTool(), makeIndexHandler(a, idx))
	s.AddTool(searchCodeTool(), makeSearchHandler(a, engine))
	s.AddTool(listRepositoriesTool(), makeListReposHandler(a))
	s.AddTool(removeRepositoryTool(), makeRemoveRepoHandler(a))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func indexRepositoryTool() mcp.Tool {
	return mcp.NewTool("index_repository",
		mcp.WithDescription("Index (or incrementally re-index) a local repository for semantic search. Only files added, modified, or deleted since the last run are processed."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(true),
			OpenWorldHint:   mcp.ToBoolPtr(false),
		}),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path to the repository root directory"),
		),
		mcp.WithString("name",
			mcp.Description("Optional display name (default: directory basename)"),
		),
	)
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool("search_code",
		mcp.WithDescription("Semantically search an indexed repository using a natural language query. Returns relevant code chunks with file paths, line numbers, and similarity scores."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("repository",
			mcp.Required(),
			mcp.Description("Repository ID or name as shown by list_repositories"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query describing the code to find"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of chunks to return (default 10)"),
		),
	)
}

func listRepositoriesTool() mcp.Tool {
	return mcp.NewTool("list_repositories",
		mcp.WithDescription("List all indexed repositories with file and chunk counts, embedding model, and last index time."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func removeRepositoryTool() mcp.Tool {
	return mcp.NewTool("remove_repository",
		mcp.WithDescription("Remove a repository's index and all of its stored vectors. The source files are not touched."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(false),
			DestructiveHint: mcp.ToBoolPtr(true),
			IdempotentHint:  mcp.ToBoolPtr(true),
			OpenWorldHint:   mcp.ToBoolPtr(false),
		}),
		mcp.WithString("repository",
			mcp.Required(),
			mcp.Description("Repository ID or name to remove"),
		),
	)
}

// --- Handler factories ---

func makeIndexHandler(a *app, idx *index.Indexer) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not a readable directory", path)), nil
		}

		repo, err := a.catalog.EnsureRepo(path, req.GetString("name", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("register repository: %v", err)), nil
		}

		stats, err := idx.Run(ctx, repo)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("index failed: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(
			"Indexed %s (id %s)\nFiles: %d added, %d modified, %d deleted, %d unchanged, %d skipped\nChunks: %d indexed, %d removed",
			repo.Name, repo.ID,
			stats.FilesAdded, stats.FilesModified, stats.FilesDeleted,
			stats.FilesUnchanged, stats.FilesSkipped,
			stats.ChunksIndexed, stats.ChunksDeleted)), nil
	}
}

func makeSearchHandler(a *app, engine *search.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoRef := req.GetString("repository", "")
		query := req.GetString("query", "")
		if repoRef == "" || query == "" {
			return mcp.NewToolResultError("repository and query are required"), nil
		}
		k := req.GetInt("k", 10)
		if k <= 0 {
			k = 10
		}

		results, err := engine.Search(ctx, repoRef, query, k)
		if err != nil {
			if errors.Is(err, search.ErrModelMismatch) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatSearchResults(query, results)), nil
	}
}

func makeListReposHandler(a *app) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repos, err := a.catalog.ListRepos()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list repositories failed: %v", err)), nil
		}
		if len(repos) == 0 {
			return mcp.NewToolResultText("No repositories indexed. Call index_repository with a path first."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Indexed repositories (%d)\n\n", len(repos))
		for _, r := range repos {
			model := r.Model
			if model == "" {
				model = "not yet indexed"
			}
			fmt.Fprintf(&sb, "- **%s** (id `%s`): %d files, %d chunks, model %s, last indexed %s\n  %s\n",
				r.Name, r.ID, r.FileCount, r.ChunkCount, model,
				r.IndexedAt.Format("2006-01-02 15:04"), r.Root)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeRemoveRepoHandler(a *app) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repoRef := req.GetString("repository", "")
		if repoRef == "" {
			return mcp.NewToolResultError("repository is required"), nil
		}

		repo, err := a.catalog.GetRepo(repoRef)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("repository %q not found, call list_repositories to see available repositories", repoRef)), nil
		}
		if err := a.store.DropNamespace(ctx, repo.Namespace); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("drop vectors failed: %v", err)), nil
		}
		if err := a.catalog.RemoveRepo(repo.ID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("remove repository failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Removed %s (id %s) and all of its vectors.", repo.Name, repo.ID)), nil
	}
}

// --- Formatting helpers ---

func formatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d chunks)\n\n", query, len(results))

	for i, r := range results {
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, r.Path)
		fmt.Fprintf(&sb, "**Kind:** %s  \n**Name:** %s  \n**Lines:** %d-%d  \n**Score:** %.3f\n\n",
			r.Kind, r.Name, r.StartLine, r.EndLine, r.Score)
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", strings.ToLower(r.Language), r.Snippet)
	}

	return sb.String()
}
