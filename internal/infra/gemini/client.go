package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"voznote/internal/application"
	"voznote/internal/domain"
	"voznote/internal/infra"
)

const (
	defaultModel      = "gemini-3-flash-preview"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultVisual     = "Moody cinematic philosophical atmosphere, shadows and soft light"
	imageAspectRatio  = "9:16"
)

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	imageModel string
	retry      infra.RetryConfig
	pick       func(n int) int
}

func NewClient(apiKey, model, imageModel string) *Client {
	return NewClientWithURL(apiKey, model, imageModel, "https://generativelanguage.googleapis.com/v1beta")
}

func NewClientWithURL(apiKey, model, imageModel, baseURL string) *Client {
	if model == "" {
		model = defaultModel
	}
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		model:      model,
		imageModel: imageModel,
		retry:      infra.DefaultRetryConfig(),
		pick:       rand.IntN,
	}
}

func (c *Client) SetRetryConfig(cfg infra.RetryConfig) {
	c.retry = cfg
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type schema struct {
	Type       string             `json:"type"`
	Items      *schema            `json:"items,omitempty"`
	Properties map[string]*schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio"`
}

type generationConfig struct {
	ResponseMimeType   string       `json:"responseMimeType,omitempty"`
	ResponseSchema     *schema      `json:"responseSchema,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type request struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

func (r *response) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

func (r *response) image() *inlineData {
	if len(r.Candidates) == 0 {
		return nil
	}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData
		}
	}
	return nil
}

func quoteSchema() *schema {
	return &schema{
		Type: "OBJECT",
		Properties: map[string]*schema{
			"quote":  {Type: "STRING"},
			"author": {Type: "STRING"},
		},
		Required: []string{"quote", "author"},
	}
}

func textRequest(text string) request {
	return request{Contents: []content{{Role: "user", Parts: []part{{Text: text}}}}}
}

// Transcribe fails with an empty-result, payload-too-large, auth or
// connection error.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = domain.DefaultAudioMimeType
	}

	req := request{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
				{Text: application.TranscriptionInstruction},
			},
		}},
	}

	resp, err := c.generate(ctx, c.model, req)
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

	text := resp.text()
	if text == "" {
		return "", domain.NewError(domain.KindEmptyResult, "", errors.New("gemini returned no transcription"))
	}
	return text, nil
}

// Summarize collapses every failure into a summarization error.
func (c *Client) Summarize(ctx context.Context, transcription string) (string, error) {
	resp, err := c.generate(ctx, c.model, textRequest(application.SummaryPrompt(transcription)))
	if err != nil {
		return "", domain.NewError(domain.KindSummarization, "", err)
	}
	if text := resp.text(); text != "" {
		return text, nil
	}
	return application.SummaryFallback, nil
}

type rawQuote struct {
	Quote  string `json:"quote"`
	Author string `json:"author"`
}

func (c *Client) GenerateQuotes(ctx context.Context, theme string) ([]domain.Quote, error) {
	req := textRequest(fmt.Sprintf("Gere um array JSON com 3 citações curtas e profundas em Português sobre o tema '%s'. Use filósofos reais.", theme))
	req.GenerationConfig = &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   &schema{Type: "ARRAY", Items: quoteSchema()},
	}

	resp, err := c.generate(ctx, c.model, req)
	if err != nil {
		return nil, err
	}

	var raw []rawQuote
	if err := decodeJSONText(resp.text(), &raw); err != nil {
		return nil, err
	}

	quotes := make([]domain.Quote, 0, len(raw))
	for _, q := range raw {
		quotes = append(quotes, domain.Quote{ID: uuid.NewString(), Text: q.Quote, Author: q.Author})
	}
	return quotes, nil
}

func (c *Client) RandomQuote(ctx context.Context) (domain.Quote, error) {
	req := textRequest("Gere uma citação filosófica aleatória curta e impactante em Português. Formato JSON.")
	req.GenerationConfig = &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   quoteSchema(),
	}

	resp, err := c.generate(ctx, c.model, req)
	if err != nil {
		return domain.Quote{}, err
	}

	var raw rawQuote
	if err := decodeJSONText(resp.text(), &raw); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{ID: uuid.NewString(), Text: raw.Quote, Author: raw.Author}, nil
}

// SynthesizeImage first turns the quote into a visual prompt with a fixed
// aesthetic, then renders it. Any failure yields a fallback image.
func (c *Client) SynthesizeImage(ctx context.Context, quoteText string) string {
	analysis, err := c.generate(ctx, c.model, textRequest(visualPrompt(quoteText)))
	if err != nil {
		return c.fallbackImage()
	}

	visual := analysis.text()
	if visual == "" {
		visual = defaultVisual
	}

	req := textRequest(fmt.Sprintf("Cinematic photography of %s. Moody lighting, deep contrast, ethereal shadows, "+
		"high resolution, 8k, grainy film texture, minimalist composition. 9:16 vertical aspect ratio.", visual))
	req.GenerationConfig = &generationConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig:        &imageConfig{AspectRatio: imageAspectRatio},
	}

	img, err := c.generate(ctx, c.imageModel, req)
	if err != nil {
		return c.fallbackImage()
	}

	data := img.image()
	if data == nil {
		return c.fallbackImage()
	}
	mime := data.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + data.Data
}

func visualPrompt(quoteText string) string {
	return fmt.Sprintf(`Analise o significado da frase: "%s".
Crie um prompt visual em inglês para uma imagem que represente essa ideia de forma Intimista e Cinematográfica.
EXIJA: Estilo Chiaroscuro (luz e sombra dramática), tons profundos (deep teals, rich browns, charcoal), luz direcional suave.
EVITE: Brancos chapados ou claridade excessiva.
CENÁRIO: Natureza sublime, arquitetura clássica sob meia-luz ou texturas abstratas orgânicas.
NÃO USE PESSOAS. Apenas o prompt.`, quoteText)
}

func (c *Client) fallbackImage() string {
	return domain.FallbackImages[c.pick(len(domain.FallbackImages))]
}

func (c *Client) generate(ctx context.Context, model string, body request) (*response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	return infra.Do(ctx, c.retry, func() (*response, error) {
		url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, infra.TransportError("gemini", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, infra.TransportError("gemini", err)
		}

		var result response
		if resp.StatusCode != http.StatusOK {
			_ = json.Unmarshal(respBody, &result)
			return nil, classify(resp.StatusCode, result.Error, respBody)
		}

		if err = json.Unmarshal(respBody, &result); err != nil {
			return nil, domain.NewError(domain.KindConnection, "", fmt.Errorf("decoding response: %w", err))
		}
		if result.Error != nil {
			return nil, classify(result.Error.Code, result.Error, respBody)
		}

		return &result, nil
	})
}

func classify(statusCode int, e *apiError, body []byte) error {
	status, msg := "", string(body)
	if e != nil {
		status, msg = e.Status, e.Message
	}
	kind := infra.ClassifyHTTPStatus(statusCode, status)
	return domain.NewError(kind, "", fmt.Errorf("gemini API error %d: %s", statusCode, msg))
}

func decodeJSONText(text string, v any) error {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return domain.NewError(domain.KindEmptyResult, "", errors.New("gemini returned no JSON"))
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return domain.NewError(domain.KindConnection, "", fmt.Errorf("parsing quote JSON (%s): %w", text, err))
	}
	return nil
}
