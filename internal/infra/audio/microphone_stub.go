//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"errors"
	"log/slog"

	"voznote/internal/application"
	"voznote/internal/domain"
)

// MicrophoneDevice stub when portaudio is not available
type MicrophoneDevice struct {
	logger *slog.Logger
}

func NewMicrophoneDevice(logger *slog.Logger) *MicrophoneDevice {
	return &MicrophoneDevice{logger: logger}
}

func (m *MicrophoneDevice) Name() string {
	return "microphone"
}

func (m *MicrophoneDevice) Open(_ context.Context, _ application.CaptureOptions) (application.CaptureSession, error) {
	return nil, domain.NewError(domain.KindDeviceAccess,
		"Captura de microfone indisponível nesta versão: recompile com -tags portaudio.",
		errors.New("portaudio not compiled in"))
}
