package main

import (
	"context"
	"fmt"
	"log/slog"

	"voznote/config"
	"voznote/internal/application"
	"voznote/internal/infra"
	"voznote/internal/infra/anthropic"
	"voznote/internal/infra/audio"
	"voznote/internal/infra/gemini"
	"voznote/internal/infra/openai"
	"voznote/internal/infra/pushover"
	"voznote/internal/store"
)

// app holds the wired application layer shared by every command.
type app struct {
	blobs     store.BlobStore
	notes     *store.NoteStore
	favorites *store.FavoriteStore
	pipeline  *application.Pipeline
	view      *application.ViewController
	quotes    *application.QuoteExplorer
	logger    *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	blobs, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	notes, err := store.LoadNotes(ctx, blobs, logger)
	if err != nil {
		blobs.Close()
		return nil, fmt.Errorf("loading notes: %w", err)
	}
	favorites, err := store.LoadFavorites(ctx, blobs, logger)
	if err != nil {
		blobs.Close()
		return nil, fmt.Errorf("loading favorites: %w", err)
	}

	retry, err := retryConfig(cfg.Retry)
	if err != nil {
		blobs.Close()
		return nil, err
	}

	geminiClient := gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.ImageModel)
	geminiClient.SetRetryConfig(retry)

	opts := application.DefaultPipelineOptions()
	opts.Capture = application.CaptureOptions{
		BitsPerSecond: cfg.Audio.Bitrate,
		SampleRate:    cfg.Audio.SampleRate,
	}

	pipeline := application.NewPipeline(
		newDevice(cfg.Audio, logger),
		newSpeech(cfg, geminiClient, retry),
		newSummarizer(cfg, geminiClient, retry),
		newNotifier(cfg.Pushover),
		logger,
		opts,
	)

	view := application.NewViewController(notes, logger)
	pipeline.Subscribe(view.HandleEvent)

	logger.Debug("application wired",
		"storage", cfg.Storage.Driver,
		"speech", cfg.AI.Speech,
		"summary", cfg.AI.Summary,
		"notes", len(notes.List()),
	)

	return &app{
		blobs:     blobs,
		notes:     notes,
		favorites: favorites,
		pipeline:  pipeline,
		view:      view,
		quotes:    application.NewQuoteExplorer(geminiClient, geminiClient, favorites, logger),
		logger:    logger,
	}, nil
}

func (a *app) Close() error {
	return a.blobs.Close()
}

func retryConfig(cfg config.RetryConfig) (infra.RetryConfig, error) {
	delay, err := cfg.Delay()
	if err != nil {
		return infra.RetryConfig{}, err
	}
	retry := infra.DefaultRetryConfig()
	retry.Retries = cfg.Retries
	retry.InitialDelay = delay
	return retry, nil
}

func newDevice(cfg config.AudioConfig, logger *slog.Logger) application.CaptureDevice {
	if cfg.Source == "none" {
		return nil
	}
	return audio.NewMicrophoneDevice(logger)
}

func newSpeech(cfg *config.Config, g *gemini.Client, retry infra.RetryConfig) application.SpeechToText {
	switch cfg.AI.Speech {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return &application.NoopSTT{}
		}
		c := openai.NewWhisperClient(cfg.OpenAI.APIKey, cfg.OpenAI.Language)
		c.SetRetryConfig(retry)
		return c
	default:
		if cfg.Gemini.APIKey == "" {
			return &application.NoopSTT{}
		}
		return g
	}
}

func newSummarizer(cfg *config.Config, g *gemini.Client, retry infra.RetryConfig) application.Summarizer {
	switch cfg.AI.Summary {
	case "anthropic":
		c := anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		c.SetRetryConfig(retry)
		return c
	default:
		return g
	}
}

func newNotifier(cfg config.PushoverConfig) application.Notifier {
	if cfg.Enabled {
		return pushover.NewClient(cfg.Token, cfg.UserKey)
	}
	return &application.NoopNotifier{}
}
