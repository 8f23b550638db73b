package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ghclient "github.com/mike-a-ellis/docqa/internal/github"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/service"
)

func (c *cli) uploadCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Index one or more PDF, text or Markdown files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var failed int
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				doc, err := c.app.Service.Upload(cmd.Context(), c.userID, indexer.Upload{
					Filename:    filepath.Base(path),
					ContentType: contentType,
					Data:        data,
				})
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %s\n", path, describe(err))
					continue
				}
				fmt.Fprintf(out, "%s: uploaded as %s (%d chunks)\n", path, doc.ID, doc.ChunkCount)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "content type to declare instead of guessing from the extension")
	return cmd
}

func (c *cli) askCmd() *cobra.Command {
	var docIDs []string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from your documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ans, err := c.app.Service.Ask(cmd.Context(), c.userID, service.AskRequest{
				Question:    strings.Join(args, " "),
				DocumentIDs: docIDs,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Answer)
			if len(ans.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for i, s := range ans.Sources {
					fmt.Fprintf(out, "  [%d] %s (%s)\n      %s\n", i+1, s.Document, s.DocumentID, oneLine(s.Excerpt))
				}
			}
			for _, s := range ans.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: document %s skipped: %s\n", s.DocumentID, s.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&docIDs, "doc", nil, "restrict the search to this document id (repeatable)")
	return cmd
}

func (c *cli) docsCmd() *cobra.Command {
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Manage uploaded documents",
	}

	docs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.app.Service.ListDocuments(cmd.Context(), c.userID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents uploaded yet.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILENAME\tTYPE\tSIZE\tCHUNKS\tUPLOADED")
			for _, d := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					d.ID, d.Filename, d.ContentType, d.Size, d.ChunkCount, d.UploadedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	})

	docs.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents and their indexes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := c.app.Service.DeleteDocument(cmd.Context(), c.userID, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	})
	return docs
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show your recent questions and answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chats, err := c.app.Service.History(cmd.Context(), c.userID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ch := range chats {
				fmt.Fprintf(out, "%s  Q: %s\n", ch.CreatedAt.Local().Format(time.DateTime), ch.Question)
				fmt.Fprintf(out, "%s  A: %s\n\n", strings.Repeat(" ", len(time.DateTime)), oneLine(ch.Answer))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of conversations to show (default 50)")
	return cmd
}

func (c *cli) importGitHubCmd() *cobra.Command {
	var ref string
	var extensions []string
	cmd := &cobra.Command{
		Use:   "import-github <owner> <repo> [path]",
		Short: "Import Markdown and text files from a GitHub repository",
		Long: `Fetches every matching file under path (default: repository root) and
indexes it as one document. Files that fail to import are reported and skipped.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			basePath := ""
			if len(args) == 3 {
				basePath = args[2]
			}

			gh, err := ghclient.NewClient(c.cfg.GitHubToken)
			if err != nil {
				return fmt.Errorf("failed to create GitHub client: %w", err)
			}
			fetcher := ghclient.NewFetcher(gh, args[0], args[1], basePath, ref, extensions...)

			result, err := c.app.Pipeline.IngestAll(cmd.Context(), c.userID, fetcher)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Import complete!")
			fmt.Fprintf(out, "  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
			fmt.Fprintf(out, "  Chunks: %d\n", result.TotalChunks)
			fmt.Fprintf(out, "  Commit: %s\n", result.CommitSHA)
			fmt.Fprintf(out, "  Duration: %s\n", time.Since(start).Round(time.Second))
			if len(result.FailedDocs) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Failed documents:")
				for _, f := range result.FailedDocs {
					fmt.Fprintf(out, "  - %s: %s\n", f.Path, f.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "branch, tag or commit to import (default: repository default branch)")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "file extensions to import (default .md,.markdown,.txt)")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove index files that no registered document owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Pipeline.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d artifact sets, removed %d\n", res.Scanned, len(res.Removed))
			for _, k := range res.Removed {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", k)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d artifact sets could not be removed", len(res.Failed))
			}
			return nil
		},
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
