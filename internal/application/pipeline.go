package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voznote/internal/domain"
)

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateFinalizing   State = "finalizing"
	StateTranscribing State = "transcribing"
	StateSummarizing  State = "summarizing"
	StateDone         State = "done"
	StateError        State = "error"
)

var ErrNotRecording = errors.New("no recording in progress")

// Event is published to observers on every state transition.
type Event struct {
	State   State
	Elapsed time.Duration
	Note    *domain.Note
	Err     error
}

type PipelineOptions struct {
	Capture       CaptureOptions
	MaxAudioBytes int
	Now           func() time.Time
	NewTicker     func(d time.Duration) Ticker
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Capture:       DefaultCaptureOptions(),
		MaxAudioBytes: domain.MaxAudioBytes,
		Now:           time.Now,
		NewTicker:     newRealTicker,
	}
}

// Pipeline turns microphone audio into a summarized note. Only one recording
// or processing run is active at a time.
type Pipeline struct {
	device     CaptureDevice
	stt        SpeechToText
	summarizer Summarizer
	notifier   Notifier
	logger     *slog.Logger
	opts       PipelineOptions

	mu        sync.Mutex
	state     State
	cur       *capture
	observers []func(Event)
}

// capture holds the state of one open recording. chunks is written only by
// the collector goroutine until collected is closed.
type capture struct {
	session    CaptureSession
	ticker     Ticker
	quit       chan struct{}
	tickerDone chan struct{}
	collected  chan struct{}
	chunks     [][]byte
	elapsed    atomic.Int64
	startedAt  time.Time
	stopTimer  sync.Once
	release    sync.Once
}

func NewPipeline(
	device CaptureDevice,
	stt SpeechToText,
	summarizer Summarizer,
	notifier Notifier,
	logger *slog.Logger,
	opts PipelineOptions,
) *Pipeline {
	defaults := DefaultPipelineOptions()
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = defaults.MaxAudioBytes
	}
	if opts.Capture.BitsPerSecond <= 0 {
		opts.Capture.BitsPerSecond = defaults.Capture.BitsPerSecond
	}
	if opts.Capture.SampleRate <= 0 {
		opts.Capture.SampleRate = defaults.Capture.SampleRate
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}
	if opts.NewTicker == nil {
		opts.NewTicker = defaults.NewTicker
	}
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	return &Pipeline{
		device:     device,
		stt:        stt,
		summarizer: summarizer,
		notifier:   notifier,
		logger:     logger,
		opts:       opts,
		state:      StateIdle,
	}
}

// Subscribe registers fn to receive every state transition.
func (p *Pipeline) Subscribe(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Elapsed is the wall-clock length of the current recording.
func (p *Pipeline) Elapsed() time.Duration {
	p.mu.Lock()
	c := p.cur
	p.mu.Unlock()
	if c == nil {
		return 0
	}
	return time.Duration(c.elapsed.Load()) * time.Second
}

func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle && p.state != StateDone {
		p.mu.Unlock()
		return domain.ErrBusy
	}

	if p.device == nil {
		p.mu.Unlock()
		return p.fail(ctx, domain.NewError(domain.KindDeviceAccess, "", errors.New("no capture device configured")))
	}

	session, err := p.device.Open(ctx, p.opts.Capture)
	if err != nil {
		p.state = StateIdle
		p.mu.Unlock()
		if domain.KindOf(err) != domain.KindDeviceAccess {
			err = domain.NewError(domain.KindDeviceAccess, "", err)
		}
		return p.fail(ctx, err)
	}

	c := &capture{
		session:    session,
		ticker:     p.opts.NewTicker(time.Second),
		quit:       make(chan struct{}),
		tickerDone: make(chan struct{}),
		collected:  make(chan struct{}),
		startedAt:  p.opts.Now(),
	}
	go c.collect()
	go c.tick()

	p.cur = c
	p.state = StateRecording
	p.mu.Unlock()

	p.logger.Info("recording started",
		"device", p.device.Name(),
		"bitrate", p.opts.Capture.BitsPerSecond,
	)
	p.emit(Event{State: StateRecording})
	return nil
}

func (c *capture) collect() {
	defer close(c.collected)
	for chunk := range c.session.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		c.chunks = append(c.chunks, chunk)
	}
}

func (c *capture) tick() {
	defer close(c.tickerDone)
	for {
		select {
		case <-c.quit:
			return
		case <-c.ticker.C():
			c.elapsed.Add(1)
		}
	}
}

// cancelTimer stops the ticker exactly once and waits for its goroutine.
func (c *capture) cancelTimer() {
	c.stopTimer.Do(func() {
		c.ticker.Stop()
		close(c.quit)
	})
	<-c.tickerDone
}

// releaseWhenCollected releases the device once the session has closed its
// chunk channel. The session may still be writing until then.
func (c *capture) releaseWhenCollected(logger *slog.Logger) {
	<-c.collected
	c.releaseDevice(logger)
}

func (c *capture) releaseDevice(logger *slog.Logger) {
	c.release.Do(func() {
		if err := c.session.Release(); err != nil {
			logger.Warn("releasing capture device", "error", err)
		}
	})
}

// Stop finalizes the recording and runs it through transcription and
// summarization. The returned note is not yet stored.
func (p *Pipeline) Stop(ctx context.Context) (*domain.Note, error) {
	p.mu.Lock()
	if p.state != StateRecording || p.cur == nil {
		p.mu.Unlock()
		return nil, ErrNotRecording
	}
	c := p.cur
	p.state = StateFinalizing
	p.mu.Unlock()

	elapsed := time.Duration(c.elapsed.Load()) * time.Second
	p.emit(Event{State: StateFinalizing, Elapsed: elapsed})

	finalizeErr := c.session.Finalize()
	c.cancelTimer()
	elapsed = time.Duration(c.elapsed.Load()) * time.Second

	if finalizeErr != nil {
		c.releaseDevice(p.logger)
		p.clearCapture()
		return nil, p.fail(ctx, domain.NewError(domain.KindDeviceAccess, "", fmt.Errorf("finalizing capture: %w", finalizeErr)))
	}

	select {
	case <-c.collected:
	case <-ctx.Done():
		go c.releaseWhenCollected(p.logger)
		p.clearCapture()
		return nil, p.fail(ctx, ctx.Err())
	}

	data := bytes.Join(c.chunks, nil)
	if w, ok := c.session.(Container); ok {
		data = w.Wrap(data)
	}
	c.releaseDevice(p.logger)
	p.clearCapture()

	rec := &domain.Recording{
		Data:       data,
		MimeType:   c.session.MimeType(),
		Duration:   elapsed,
		CapturedAt: c.startedAt,
	}

	p.logger.Info("recording finalized",
		"chunks", len(c.chunks),
		"bytes", len(data),
		"duration", domain.FormatDuration(elapsed),
	)

	return p.process(ctx, rec)
}

// Cancel abandons the current recording without processing it.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	c := p.cur
	if p.state != StateRecording || c == nil {
		p.mu.Unlock()
		return
	}
	p.cur = nil
	p.state = StateIdle
	p.mu.Unlock()

	if err := c.session.Finalize(); err != nil {
		p.logger.Warn("finalizing abandoned capture", "error", err)
	}
	c.cancelTimer()
	go c.releaseWhenCollected(p.logger)
	p.logger.Info("recording abandoned")
	p.emit(Event{State: StateIdle})
}

// Process runs an already assembled recording through the guard, transcription
// and summarization stages.
func (p *Pipeline) Process(ctx context.Context, rec *domain.Recording) (*domain.Note, error) {
	p.mu.Lock()
	if p.state != StateIdle && p.state != StateDone {
		p.mu.Unlock()
		return nil, domain.ErrBusy
	}
	p.state = StateFinalizing
	p.mu.Unlock()

	if rec.MimeType == "" {
		rec.MimeType = domain.DefaultAudioMimeType
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = p.opts.Now()
	}
	return p.process(ctx, rec)
}

func (p *Pipeline) process(ctx context.Context, rec *domain.Recording) (*domain.Note, error) {
	if rec.Size() > p.opts.MaxAudioBytes {
		return nil, p.fail(ctx, domain.NewError(domain.KindOversize, "",
			fmt.Errorf("audio is %d bytes, limit is %d", rec.Size(), p.opts.MaxAudioBytes)))
	}

	p.setState(StateTranscribing)
	p.emit(Event{State: StateTranscribing, Elapsed: rec.Duration})

	text, err := p.stt.Transcribe(ctx, rec.Data, rec.MimeType)
	if err != nil {
		return nil, p.fail(ctx, classify(err, domain.KindConnection))
	}
	if strings.TrimSpace(text) == "" {
		return nil, p.fail(ctx, domain.NewError(domain.KindEmptyResult, "", errors.New("empty transcription")))
	}

	p.logger.Info("transcribed", "chars", len(text))

	p.setState(StateSummarizing)
	p.emit(Event{State: StateSummarizing, Elapsed: rec.Duration})

	// A failed summary discards the transcription as well.
	summary, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		return nil, p.fail(ctx, classify(err, domain.KindSummarization))
	}

	note := domain.NewNote(rec, text, summary)

	p.setState(StateDone)
	p.logger.Info("note ready", "id", note.ID, "duration", note.DurationFormatted)
	p.emit(Event{State: StateDone, Elapsed: rec.Duration, Note: note})

	if err := p.notifier.Notify(ctx, fmt.Sprintf("Nota pronta: %s (%s)", note.Title, note.DurationFormatted)); err != nil {
		p.logger.Error("notifying result", "error", err)
	}

	return note, nil
}

// classify makes sure err carries a kind, using fallback when it does not.
func classify(err error, fallback domain.ErrorKind) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if domain.KindOf(err) == domain.KindUnknown {
		return domain.NewError(fallback, "", err)
	}
	return err
}

// fail surfaces err and unwinds the pipeline to Idle.
func (p *Pipeline) fail(ctx context.Context, err error) error {
	p.logger.Error("pipeline failed", "kind", domain.KindOf(err), "error", err)

	p.setState(StateError)
	p.emit(Event{State: StateError, Err: err})
	p.setState(StateIdle)
	p.emit(Event{State: StateIdle})

	if errors.Is(err, context.Canceled) {
		return err
	}
	if notifyErr := p.notifier.Notify(ctx, "Erro: "+domain.UserMessage(err)); notifyErr != nil {
		p.logger.Error("notifying error", "error", notifyErr)
	}
	return err
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) clearCapture() {
	p.mu.Lock()
	p.cur = nil
	p.mu.Unlock()
}

func (p *Pipeline) emit(ev Event) {
	p.mu.Lock()
	observers := make([]func(Event), len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}
