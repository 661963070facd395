package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voznote/internal/domain"
	"voznote/internal/infra"
)

type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	language   string
	retry      infra.RetryConfig
}

func NewWhisperClient(apiKey, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, language, "https://api.openai.com/v1")
}

func NewWhisperClientWithURL(apiKey, language, baseURL string) *WhisperClient {
	return &WhisperClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		language:   language,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *WhisperClient) SetRetryConfig(cfg infra.RetryConfig) {
	c.retry = cfg
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

var extensions = map[string]string{
	"audio/webm": "webm",
	"audio/wav":  "wav",
	"audio/mpeg": "mp3",
	"audio/mp4":  "m4a",
	"audio/ogg":  "ogg",
	"audio/flac": "flac",
}

func filename(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if ext, ok := extensions[base]; ok {
		return "audio." + ext
	}
	return "audio.webm"
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	result, err := infra.Do(ctx, c.retry, func() (transcriptionResponse, error) {
		var result transcriptionResponse

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", filename(mimeType))
		if err != nil {
			return result, fmt.Errorf("creating form file: %w", err)
		}

		if _, err = part.Write(audio); err != nil {
			return result, fmt.Errorf("writing audio: %w", err)
		}

		if err = writer.WriteField("model", "whisper-1"); err != nil {
			return result, fmt.Errorf("writing model field: %w", err)
		}

		if c.language != "" {
			if err = writer.WriteField("language", c.language); err != nil {
				return result, fmt.Errorf("writing language field: %w", err)
			}
		}

		if err = writer.Close(); err != nil {
			return result, fmt.Errorf("closing writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return result, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result, infra.TransportError("whisper", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			var apiErr errorResponse
			_ = json.Unmarshal(respBody, &apiErr)
			kind := infra.ClassifyHTTPStatus(resp.StatusCode, "")
			return result, domain.NewError(kind, "", fmt.Errorf("whisper API error %d: %s", resp.StatusCode, apiErr.Error.Message))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return result, domain.NewError(domain.KindConnection, "", fmt.Errorf("decoding response: %w", err))
		}

		return result, nil
	})

	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindPayloadTooLarge, domain.KindAuth:
			return "", err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", domain.NewError(domain.KindConnection, "", err)
	}

	if strings.TrimSpace(result.Text) == "" {
		return "", domain.NewError(domain.KindEmptyResult, "", errors.New("whisper returned no transcription"))
	}
	return result.Text, nil
}
