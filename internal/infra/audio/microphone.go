//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voznote/internal/application"
	"voznote/internal/domain"
)

const framesPerBuffer = 1024

// MicrophoneDevice records from the default input through PortAudio.
type MicrophoneDevice struct {
	logger *slog.Logger
}

func NewMicrophoneDevice(logger *slog.Logger) *MicrophoneDevice {
	return &MicrophoneDevice{logger: logger}
}

func (m *MicrophoneDevice) Name() string {
	return "microphone"
}

func (m *MicrophoneDevice) Open(_ context.Context, opts application.CaptureOptions) (application.CaptureSession, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, domain.NewError(domain.KindDeviceAccess, "", fmt.Errorf("initializing portaudio: %w", err))
	}

	sampleRate, bits := pcmFormat(opts)
	buffer := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, domain.NewError(domain.KindDeviceAccess, "", fmt.Errorf("opening stream: %w", err))
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, domain.NewError(domain.KindDeviceAccess, "", fmt.Errorf("starting stream: %w", err))
	}

	s := &micSession{
		stream:     stream,
		buffer:     buffer,
		sampleRate: sampleRate,
		bits:       bits,
		chunks:     make(chan []byte, 64),
		quit:       make(chan struct{}),
		logger:     m.logger,
	}
	go s.read()

	m.logger.Info("microphone started",
		"sampleRate", sampleRate,
		"bitsPerSample", bits,
		"bitsPerSecond", sampleRate*bits,
		"requested", opts.BitsPerSecond,
	)
	return s, nil
}

type micSession struct {
	stream     *portaudio.Stream
	buffer     []int16
	sampleRate int
	bits       int
	chunks     chan []byte
	quit       chan struct{}
	quitOnce   sync.Once
	logger     *slog.Logger
}

func (s *micSession) read() {
	defer close(s.chunks)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			s.logger.Warn("reading from stream", "error", err)
			return
		}
		s.chunks <- samplesToPCM(s.buffer, s.bits)
	}
}

func (s *micSession) Chunks() <-chan []byte {
	return s.chunks
}

func (s *micSession) Finalize() error {
	s.quitOnce.Do(func() { close(s.quit) })
	return nil
}

func (s *micSession) Release() error {
	s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

func (s *micSession) MimeType() string {
	return "audio/wav"
}

func (s *micSession) Wrap(pcm []byte) []byte {
	return encodeWAV(pcm, s.sampleRate, s.bits)
}
