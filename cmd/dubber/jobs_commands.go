package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"dubber/internal/api"
	"dubber/internal/config"
	"dubber/internal/jobs"
	"dubber/internal/services"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect job records",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		userID   string
		statuses []string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := jobs.Filter{UserID: userID, Limit: limit}
			for _, value := range statuses {
				status, err := jobs.ParseStatus(value)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, store *jobs.Store) error {
				items, err := api.NewJobService(store).List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					if items == nil {
						items = []api.JobItem{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.UserID,
						item.Status,
						item.LanguageToDub,
						item.UpdatedAt,
						truncate(item.Failure, 60),
					})
				}
				writeRows(out, []string{"ID", "User", "Status", "Language", "Updated", "Failure"}, rows, nil)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only show jobs owned by this user")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show jobs with these statuses")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withStore(func(_ *config.Config, store *jobs.Store) error {
				record, err := store.Get(cmd.Context(), id)
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("job %s not found", id)
				}
				if err != nil {
					return err
				}
				item := api.FromRecord(record)
				if asJSON {
					return writeJSON(cmd, item)
				}
				renderJob(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderJob(w io.Writer, item api.JobItem) {
	fields := []struct {
		label string
		value string
	}{
		{"ID", item.ID},
		{"User", item.UserID},
		{"Status", item.Status},
		{"Version", fmt.Sprint(item.Version)},
		{"Original", item.FilePath},
		{"Language", item.LanguageToDub},
		{"Detected", item.DetectedLanguage},
		{"Transcript", item.TranscriptPath},
		{"Synthesized", item.SynthesizedAudioPath},
		{"Aligned", item.AlignedAudioPath},
		{"Created", item.CreatedAt},
		{"Updated", item.UpdatedAt},
		{"Error", item.Error},
		{"Translation error", item.TranslationError},
		{"Synthesis error", item.SynthesisError},
		{"Alignment error", item.AlignmentError},
		{"Compensation error", item.CompensationError},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(w, "%-19s %s\n", f.label+":", f.value)
	}
	if item.Transcript != "" {
		fmt.Fprintf(w, "\nTranscript:\n%s\n", item.Transcript)
	}
	if item.Translation != "" {
		fmt.Fprintf(w, "\nTranslation:\n%s\n", item.Translation)
	}
}
