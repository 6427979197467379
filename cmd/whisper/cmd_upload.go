package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/entrepreneur-whisperer/site/server/internal/config"
	"github.com/entrepreneur-whisperer/site/server/internal/knowledgebase"
	"github.com/entrepreneur-whisperer/site/server/internal/service"
)

const defaultKnowledgeDir = "knowledgebase_clean"

func newUploadCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "upload [dir]",
		Short: "Upload a folder of Markdown files into a new vector store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := defaultKnowledgeDir
			if len(args) == 1 {
				dir = args[0]
			}

			cfg := config.Load()
			if cfg.OpenAIAPIKey == "" {
				return errors.New("missing OPENAI_API_KEY")
			}
			name := cfg.VectorStoreName
			if name == "" {
				name = knowledgebase.DefaultName(time.Now())
			}

			log := zap.NewNop()
			if verbose {
				var err error
				if log, err = zap.NewDevelopment(); err != nil {
					return err
				}
				defer log.Sync()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			up := knowledgebase.NewUploader(service.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), log)
			res, err := up.Upload(ctx, dir, name)
			if err != nil {
				if res.VectorStoreID != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "vector store %s was created but not indexed\n", res.VectorStoreID)
				}
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "indexed %d files\n", res.Files)
			fmt.Fprintf(cmd.OutOrStdout(), "OPENAI_VECTOR_STORE_ID=%s\n", res.VectorStoreID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log upload progress")
	return cmd
}
