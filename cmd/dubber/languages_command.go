package main

import (
	"github.com/spf13/cobra"

	"dubber/internal/language"
)

func newLanguagesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported dubbing languages and their voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			all := language.NewTable(cfg.Synthesis.Voices).All()
			if asJSON {
				return writeJSON(cmd, all)
			}
			rows := make([][]string, 0, len(all))
			for _, lang := range all {
				rows = append(rows, []string{lang.Code, lang.Name, lang.VoiceID})
			}
			writeRows(cmd.OutOrStdout(), []string{"Code", "Language", "Voice"}, rows, nil)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
