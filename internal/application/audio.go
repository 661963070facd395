package application

import (
	"context"
	"time"

	"voznote/internal/domain"
)

// VoiceBitrate trades fidelity for size: recordings may be long.
const VoiceBitrate = 48000

type CaptureOptions struct {
	BitsPerSecond int
	SampleRate    int
}

func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		BitsPerSecond: VoiceBitrate,
		SampleRate:    16000,
	}
}

// CaptureDevice acquires the microphone. Open fails when access is denied or
// no device exists.
type CaptureDevice interface {
	Open(ctx context.Context, opts CaptureOptions) (CaptureSession, error)
	Name() string
}

// CaptureSession is an open microphone stream being recorded into chunks.
// Chunks is closed after Finalize once the last chunk has been delivered.
type CaptureSession interface {
	Chunks() <-chan []byte
	Finalize() error
	Release() error
	MimeType() string
}

// Container is implemented by sessions whose chunks are raw samples that need
// a header once the total length is known.
type Container interface {
	Wrap(payload []byte) []byte
}

// AudioSource yields recordings that arrive already assembled, such as files
// dropped into an inbox directory.
type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextRecording(ctx context.Context) (*domain.Recording, error)
	Name() string
}

// Ticker is the wall-clock timer driving the elapsed-seconds counter.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
