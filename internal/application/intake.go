package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voznote/internal/domain"
)

const (
	busyRetryInterval   = time.Second
	defaultErrorBackoff = 2 * time.Second
)

// Intake feeds recordings that arrive without a user at the screen (a watched
// inbox directory) through the pipeline and stores the resulting notes.
type Intake struct {
	source   AudioSource
	pipeline *Pipeline
	notes    NoteRepository
	logger   *slog.Logger
	backoff  time.Duration
}

func NewIntake(source AudioSource, pipeline *Pipeline, notes NoteRepository, logger *slog.Logger) *Intake {
	return &Intake{
		source:   source,
		pipeline: pipeline,
		notes:    notes,
		logger:   logger,
		backoff:  defaultErrorBackoff,
	}
}

// SetErrorBackoff sets the pause after a failed recording.
func (a *Intake) SetErrorBackoff(d time.Duration) {
	a.backoff = d
}

func (a *Intake) Run(ctx context.Context) error {
	a.logger.Info("starting audio source", "source", a.source.Name())
	if err := a.source.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer a.source.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := a.processOne(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				a.logger.Error("processing recording", "error", err)

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(a.backoff):
				}
			}
		}
	}
}

func (a *Intake) processOne(ctx context.Context) error {
	rec, err := a.source.NextRecording(ctx)
	if err != nil {
		return fmt.Errorf("getting audio: %w", err)
	}
	if rec == nil || rec.Size() == 0 {
		return nil
	}

	a.logger.Info("received audio", "bytes", rec.Size(), "mime", rec.MimeType)

	var note *domain.Note
	for {
		note, err = a.pipeline.Process(ctx, rec)
		if !errors.Is(err, domain.ErrBusy) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyRetryInterval):
		}
	}
	if err != nil {
		return fmt.Errorf("processing: %w", err)
	}

	if err := a.notes.Upsert(ctx, *note); err != nil {
		return fmt.Errorf("storing note: %w", err)
	}
	a.logger.Info("note stored from inbox", "id", note.ID, "title", note.Title)
	return nil
}
