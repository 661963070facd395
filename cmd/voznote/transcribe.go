package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voznote/internal/infra/audio"
)

var transcribeNoSave bool

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [file]",
	Short: "Transcribe and summarize an audio file into a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rec, err := audio.ReadRecording(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		note, err := a.pipeline.Process(ctx, rec)
		if err != nil {
			return err
		}

		if !transcribeNoSave {
			if err := a.notes.Upsert(ctx, *note); err != nil {
				return fmt.Errorf("saving note: %w", err)
			}
		}
		printNote(*note)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
	transcribeCmd.Flags().BoolVar(&transcribeNoSave, "no-save", false, "print the note without storing it")
}
