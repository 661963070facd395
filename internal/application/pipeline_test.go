package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voznote/internal/application"
	"voznote/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTicker struct {
	ch    chan time.Time
	stops atomic.Int32
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stops.Add(1) }

type fakeSession struct {
	chunks    chan []byte
	finalized atomic.Int32
	released  atomic.Int32
	closeOnce sync.Once
}

func (s *fakeSession) Chunks() <-chan []byte { return s.chunks }
func (s *fakeSession) MimeType() string      { return "audio/webm" }

func (s *fakeSession) Finalize() error {
	s.finalized.Add(1)
	s.closeOnce.Do(func() { close(s.chunks) })
	return nil
}

func (s *fakeSession) Release() error {
	s.released.Add(1)
	return nil
}

// lingeringSession keeps delivering chunks after Finalize until the test
// closes it, and records whether Release came before that.
type lingeringSession struct {
	chunks        chan []byte
	closed        atomic.Bool
	released      atomic.Int32
	releasedEarly atomic.Bool
}

func (s *lingeringSession) Chunks() <-chan []byte { return s.chunks }
func (s *lingeringSession) MimeType() string      { return "audio/webm" }
func (s *lingeringSession) Finalize() error       { return nil }

func (s *lingeringSession) Release() error {
	if !s.closed.Load() {
		s.releasedEarly.Store(true)
	}
	s.released.Add(1)
	return nil
}

func (s *lingeringSession) close() {
	s.closed.Store(true)
	close(s.chunks)
}

type lingeringDevice struct{ session *lingeringSession }

func (d *lingeringDevice) Name() string { return "lingering" }

func (d *lingeringDevice) Open(context.Context, application.CaptureOptions) (application.CaptureSession, error) {
	return d.session, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeDevice struct {
	session *fakeSession
	openErr error
	opts    application.CaptureOptions
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Open(_ context.Context, opts application.CaptureOptions) (application.CaptureSession, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opts = opts
	d.session = &fakeSession{chunks: make(chan []byte)}
	return d.session, nil
}

type mockSTT struct {
	text  string
	err   error
	calls int
	got   []byte
}

func (m *mockSTT) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	m.calls++
	m.got = audio
	return m.text, m.err
}

type mockSummarizer struct {
	summary string
	err     error
	calls   int
}

func (m *mockSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.summary, m.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func newTestPipeline(device application.CaptureDevice, stt application.SpeechToText, sum application.Summarizer, ticker *fakeTicker) (*application.Pipeline, *[]application.State) {
	opts := application.DefaultPipelineOptions()
	opts.Now = func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) }
	if ticker != nil {
		opts.NewTicker = func(time.Duration) application.Ticker { return ticker }
	}
	p := application.NewPipeline(device, stt, sum, &recordingNotifier{}, discardLogger(), opts)

	var mu sync.Mutex
	states := &[]application.State{}
	p.Subscribe(func(ev application.Event) {
		mu.Lock()
		defer mu.Unlock()
		*states = append(*states, ev.State)
	})
	return p, states
}

func TestPipeline_RecordTranscribeSummarize(t *testing.T) {
	device := &fakeDevice{}
	ticker := newFakeTicker()
	stt := &mockSTT{text: "Hello world"}
	sum := &mockSummarizer{summary: "Topics: greeting."}

	p, states := newTestPipeline(device, stt, sum, ticker)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != application.StateRecording {
		t.Fatalf("state: got %s, want recording", p.State())
	}
	if device.opts.BitsPerSecond != application.VoiceBitrate {
		t.Errorf("bitrate: got %d, want %d", device.opts.BitsPerSecond, application.VoiceBitrate)
	}

	device.session.chunks <- []byte("abc")
	device.session.chunks <- []byte("def")
	for i := 0; i < 5; i++ {
		ticker.ch <- time.Now()
	}

	note, err := p.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if note.DurationFormatted != "00:05" {
		t.Errorf("duration: got %s, want 00:05", note.DurationFormatted)
	}
	if note.Title == "" {
		t.Error("title should not be empty")
	}
	if note.Transcription != "Hello world" || note.Summary != "Topics: greeting." {
		t.Errorf("texts: got %q / %q", note.Transcription, note.Summary)
	}
	if string(stt.got) != "abcdef" {
		t.Errorf("chunks should be concatenated in order, got %q", stt.got)
	}
	if note.Audio == nil || string(note.Audio.Data) != "abcdef" {
		t.Error("note should carry the transient audio")
	}

	if n := ticker.stops.Load(); n != 1 {
		t.Errorf("ticker stops: got %d, want 1", n)
	}
	if n := device.session.released.Load(); n != 1 {
		t.Errorf("device releases: got %d, want 1", n)
	}

	want := []application.State{
		application.StateRecording,
		application.StateFinalizing,
		application.StateTranscribing,
		application.StateSummarizing,
		application.StateDone,
	}
	if len(*states) != len(want) {
		t.Fatalf("states: got %v, want %v", *states, want)
	}
	for i := range want {
		if (*states)[i] != want[i] {
			t.Errorf("state %d: got %s, want %s", i, (*states)[i], want[i])
		}
	}
}

func TestPipeline_StopReleasesOnceRegardlessOfChunks(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		device := &fakeDevice{}
		ticker := newFakeTicker()
		p, _ := newTestPipeline(device, &mockSTT{text: "x"}, &mockSummarizer{summary: "y"}, ticker)

		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		for i := 0; i < n; i++ {
			device.session.chunks <- []byte{byte(i)}
		}

		_, _ = p.Stop(context.Background())

		if got := ticker.stops.Load(); got != 1 {
			t.Errorf("chunks=%d: ticker stops got %d, want 1", n, got)
		}
		if got := device.session.released.Load(); got != 1 {
			t.Errorf("chunks=%d: releases got %d, want 1", n, got)
		}
		if got := device.session.finalized.Load(); got != 1 {
			t.Errorf("chunks=%d: finalize calls got %d, want 1", n, got)
		}
	}
}

func TestPipeline_StopTimeoutReleasesAfterCollector(t *testing.T) {
	session := &lingeringSession{chunks: make(chan []byte)}
	p, _ := newTestPipeline(&lingeringDevice{session: session}, &mockSTT{text: "x"}, &mockSummarizer{summary: "y"}, newFakeTicker())

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Stop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stop: got %v, want context.Canceled", err)
	}
	if p.State() != application.StateIdle {
		t.Errorf("state: got %s, want idle", p.State())
	}

	// A late chunk still reaches the collector, not a released device.
	session.chunks <- []byte{1}
	if session.released.Load() != 0 {
		t.Fatal("device released while the session was still delivering chunks")
	}

	session.close()
	waitFor(t, func() bool { return session.released.Load() == 1 })
	if session.releasedEarly.Load() {
		t.Error("device released before the chunk channel closed")
	}
}

func TestPipeline_DeviceAccessDenied(t *testing.T) {
	device := &fakeDevice{openErr: errors.New("permission denied")}
	p, _ := newTestPipeline(device, &mockSTT{}, &mockSummarizer{}, nil)

	err := p.Start(context.Background())
	if domain.KindOf(err) != domain.KindDeviceAccess {
		t.Errorf("kind: got %s, want device_access", domain.KindOf(err))
	}
	if p.State() != application.StateIdle {
		t.Errorf("state: got %s, want idle", p.State())
	}
}

func TestPipeline_SizeGuard(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		wantKind domain.ErrorKind
		wantCall bool
	}{
		{"empty-ish", 1, "", true},
		{"at limit", domain.MaxAudioBytes, "", true},
		{"over limit", domain.MaxAudioBytes + 1, domain.KindOversize, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stt := &mockSTT{text: "ok"}
			p, _ := newTestPipeline(nil, stt, &mockSummarizer{summary: "s"}, nil)

			_, err := p.Process(context.Background(), &domain.Recording{Data: make([]byte, tt.size)})

			if tt.wantKind == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantKind != "" && domain.KindOf(err) != tt.wantKind {
				t.Fatalf("kind: got %s, want %s", domain.KindOf(err), tt.wantKind)
			}
			if (stt.calls > 0) != tt.wantCall {
				t.Errorf("remote call attempted: %v, want %v", stt.calls > 0, tt.wantCall)
			}
		})
	}
}

func TestPipeline_EmptyTranscriptionFails(t *testing.T) {
	sum := &mockSummarizer{summary: "never"}
	p, states := newTestPipeline(nil, &mockSTT{text: "   "}, sum, nil)

	_, err := p.Process(context.Background(), &domain.Recording{Data: []byte("a")})
	if domain.KindOf(err) != domain.KindEmptyResult {
		t.Errorf("kind: got %s, want empty_result", domain.KindOf(err))
	}
	if sum.calls != 0 {
		t.Error("summarizer should not be called")
	}
	if p.State() != application.StateIdle {
		t.Errorf("state: got %s, want idle", p.State())
	}
	last := (*states)[len(*states)-1]
	if last != application.StateIdle {
		t.Errorf("last event: got %s, want idle", last)
	}
}

func TestPipeline_SummaryFailureDropsTranscription(t *testing.T) {
	p, _ := newTestPipeline(nil, &mockSTT{text: "Hello"}, &mockSummarizer{err: errors.New("boom")}, nil)

	note, err := p.Process(context.Background(), &domain.Recording{Data: []byte("a")})
	if note != nil {
		t.Error("no note should be produced")
	}
	if domain.KindOf(err) != domain.KindSummarization {
		t.Errorf("kind: got %s, want summarization", domain.KindOf(err))
	}
}

func TestPipeline_TranscribeErrorKeepsKind(t *testing.T) {
	stt := &mockSTT{err: domain.NewError(domain.KindAuth, "", nil)}
	p, _ := newTestPipeline(nil, stt, &mockSummarizer{}, nil)

	_, err := p.Process(context.Background(), &domain.Recording{Data: []byte("a")})
	if domain.KindOf(err) != domain.KindAuth {
		t.Errorf("kind: got %s, want auth", domain.KindOf(err))
	}

	stt.err = errors.New("socket closed")
	_, err = p.Process(context.Background(), &domain.Recording{Data: []byte("a")})
	if domain.KindOf(err) != domain.KindConnection {
		t.Errorf("kind: got %s, want connection", domain.KindOf(err))
	}
}

func TestPipeline_SingleActiveRecording(t *testing.T) {
	device := &fakeDevice{}
	p, _ := newTestPipeline(device, &mockSTT{text: "x"}, &mockSummarizer{summary: "y"}, newFakeTicker())

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Cancel()

	if err := p.Start(context.Background()); !errors.Is(err, domain.ErrBusy) {
		t.Errorf("second Start: got %v, want ErrBusy", err)
	}
	if _, err := p.Process(context.Background(), &domain.Recording{Data: []byte("a")}); !errors.Is(err, domain.ErrBusy) {
		t.Errorf("Process while recording: got %v, want ErrBusy", err)
	}
}

func TestPipeline_CancelReleasesDevice(t *testing.T) {
	device := &fakeDevice{}
	ticker := newFakeTicker()
	p, _ := newTestPipeline(device, &mockSTT{}, &mockSummarizer{}, ticker)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Cancel()
	p.Cancel()

	if p.State() != application.StateIdle {
		t.Errorf("state: got %s, want idle", p.State())
	}
	waitFor(t, func() bool { return device.session.released.Load() == 1 })
	if device.session.released.Load() != 1 || ticker.stops.Load() != 1 {
		t.Error("cancel should stop the ticker and release the device once")
	}
	if _, err := p.Stop(context.Background()); !errors.Is(err, application.ErrNotRecording) {
		t.Errorf("Stop after cancel: got %v, want ErrNotRecording", err)
	}
}
