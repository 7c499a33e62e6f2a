package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"dubber/internal/api"
	"dubber/internal/blobstore"
	"dubber/internal/config"
	"dubber/internal/ingest"
	"dubber/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		userID      string
		lang        string
		contentType string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Upload a video and start dubbing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			localPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			return ctx.withStore(func(cfg *config.Config, store *jobs.Store) error {
				blobs, err := blobstore.New(cfg.Paths.BlobDir)
				if err != nil {
					return fmt.Errorf("open object store: %w", err)
				}
				defer blobs.Close()
				errOut := cmd.ErrOrStderr()
				svc := ingest.New(store, blobs,
					ingest.WithLogger(ctx.cliLogger()),
					ingest.WithObserver(func(evt ingest.Event) {
						if evt.Kind == ingest.EventProgress && !asJSON {
							fmt.Fprintf(errOut, "upload %s: %.0f%%\n", evt.ObjectPath, evt.Percent)
						}
					}),
				)
				record, err := svc.Submit(cmd.Context(), ingest.Request{
					UserID:        userID,
					LocalPath:     localPath,
					LanguageToDub: lang,
					ContentType:   contentType,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromRecord(record))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted job %s\n", record.ID)
				fmt.Fprintf(out, "Object:   %s\n", record.FilePath)
				fmt.Fprintf(out, "Language: %s\n", record.LanguageToDub)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner of the job")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language code (see `dubber languages`)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the detected video content type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the created job as JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}
