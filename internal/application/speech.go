package application

import (
	"context"
	"fmt"

	"voznote/internal/domain"
)

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcription string) (string, error)
}

// NoopSTT is used when no speech backend is configured.
// It returns an error if called with actual audio data.
type NoopSTT struct{}

func (n *NoopSTT) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return "", domain.NewError(domain.KindAuth, "Transcrição não configurada: defina gemini.api_key ou openai.api_key.",
		fmt.Errorf("no speech backend"))
}

// SummaryFallback is used when the backend answers with no text at all.
const SummaryFallback = "Não foi possível gerar o resumo."

const TranscriptionInstruction = "Transcreva este áudio para Português do Brasil com precisão. " +
	"Identifique falantes diferentes e utilize pontuação correta. " +
	"Retorne apenas a transcrição do que foi falado."

// SummaryPrompt builds the executive-summary instruction shared by every summarizer backend.
func SummaryPrompt(transcription string) string {
	return `Atue como um assistente executivo sênior. Resuma a seguinte transcrição de reunião em Português do Brasil de forma estruturada e profissional.
Estruture o resumo com:
- Título Descritivo
- Principais Tópicos (Bullet points)
- Decisões Tomadas
- Próximos Passos (Action Items)

Transcrição: ` + transcription
}
