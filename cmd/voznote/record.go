package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voznote/internal/application"
	"voznote/internal/domain"
)

var recordNoSave bool

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone until Enter or Ctrl-C, then transcribe and summarize",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		a.pipeline.Subscribe(func(ev application.Event) {
			switch ev.State {
			case application.StateTranscribing:
				fmt.Fprintln(os.Stderr, "Transcrevendo...")
			case application.StateSummarizing:
				fmt.Fprintln(os.Stderr, "Resumindo...")
			}
		})

		if err := a.pipeline.Start(ctx); err != nil {
			return err
		}

		waitForStop(ctx, func() {
			fmt.Fprintf(os.Stderr, "\rGravando %s  (Enter para parar)", domain.FormatDuration(a.pipeline.Elapsed()))
		})
		fmt.Fprintln(os.Stderr)

		note, err := a.pipeline.Stop(ctx)
		if err != nil {
			return err
		}

		if !recordNoSave {
			if err := a.notes.Upsert(ctx, *note); err != nil {
				return fmt.Errorf("saving note: %w", err)
			}
		}
		printNote(*note)
		return nil
	},
}

// waitForStop blocks until Enter, SIGINT or SIGTERM, calling tick every second.
func waitForStop(ctx context.Context, tick func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			return
		case <-enter:
			return
		case <-ticker.C:
			tick()
		}
	}
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().BoolVar(&recordNoSave, "no-save", false, "print the note without storing it")
}
