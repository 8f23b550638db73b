// Package main provides the docqa CLI for uploading documents and asking questions.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/logging"
)

// cli carries state shared by every command of one invocation.
type cli struct {
	cfg    *config.Config
	app    *app.App
	userID string
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about your documents",
		Long: `docqa indexes PDF, text and Markdown files and answers questions from them.

Configuration is read from .env, an optional TOML file (DOCQA_CONFIG,
default ./docqa.toml) and the environment. Common variables:
  DOCQA_DATA_DIR             registry and index location (default ./data)
  DOCQA_STORE                file, qdrant or pgvector (default file)
  DOCQA_EMBEDDING_PROVIDER   hugot, openai or hash (default hugot)
  DOCQA_GENERATION_PROVIDER  extractive or openai (default extractive)
  OPENAI_API_KEY             required by the openai providers
  GITHUB_TOKEN               optional, raises GitHub rate limits`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			if c.userID == "" {
				c.userID = cfg.UserID
			}

			logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.userID, "user", "", "user id to act as (default DOCQA_USER_ID)")

	root.AddCommand(
		c.uploadCmd(),
		c.askCmd(),
		c.docsCmd(),
		c.historyCmd(),
		c.importGitHubCmd(),
		c.sweepCmd(),
	)
	return root
}

func main() {
	c := &cli{}
	err := newRootCmd(c).ExecuteContext(context.Background())
	// cobra skips post-run hooks when a command fails.
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// describe prefers the user-facing message for classified errors.
func describe(err error) string {
	if domain.KindOf(err) == domain.KindInternal {
		return err.Error()
	}
	msg := domain.UserMessage(err)
	if strings.HasPrefix(err.Error(), msg) {
		return err.Error()
	}
	return msg + " (" + err.Error() + ")"
}
