package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voznote/internal/application"
	"voznote/internal/domain"
	"voznote/internal/infra"
	"voznote/internal/infra/gemini"
)

func textResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func newTestClient(url string) *gemini.Client {
	c := gemini.NewClientWithURL("test-key", "text-model", "image-model", url)
	c.SetRetryConfig(infra.RetryConfig{
		Retries:      3,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	})
	return c
}

func TestClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/text-model:generateContent" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "no key", http.StatusForbidden)
			return
		}

		var body struct {
			Contents []struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		inline := body.Contents[0].Parts[0].InlineData
		if inline == nil || inline.MimeType != "audio/webm" || inline.Data == "" {
			http.Error(w, "missing audio", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(textResponse("Hello world"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	text, err := client.Transcribe(context.Background(), []byte("audio"), "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text: got %q, want Hello world", text)
	}
}

func TestClient_TranscribeErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.ErrorKind
	}{
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`, domain.KindEmptyResult},
		{"too large", http.StatusRequestEntityTooLarge, `{}`, domain.KindPayloadTooLarge},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`, domain.KindAuth},
		{"bad request", http.StatusBadRequest, `{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`, domain.KindConnection},
		{"overloaded after retries", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`, domain.KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Transcribe(context.Background(), []byte("a"), "")
			if domain.KindOf(err) != tt.want {
				t.Errorf("kind: got %s, want %s (%v)", domain.KindOf(err), tt.want, err)
			}
		})
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		json.NewEncoder(w).Encode(textResponse("Topics: greeting."))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if summary != "Topics: greeting." {
		t.Errorf("summary: got %q", summary)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestClient_SummarizeCollapsesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "x")
	if domain.KindOf(err) != domain.KindSummarization {
		t.Errorf("kind: got %s, want summarization", domain.KindOf(err))
	}
}

func TestClient_SummarizeEmptyUsesFallbackText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "x")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if summary != application.SummaryFallback {
		t.Errorf("summary: got %q", summary)
	}
}

func TestClient_GenerateQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		cfg, _ := body["generationConfig"].(map[string]any)
		if cfg["responseMimeType"] != "application/json" {
			http.Error(w, "schema missing", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(textResponse("```json\n" +
			`[{"quote":"Conhece-te a ti mesmo.","author":"Sócrates"},{"quote":"Penso, logo existo.","author":"Descartes"}]` +
			"\n```"))
	}))
	defer server.Close()

	quotes, err := newTestClient(server.URL).GenerateQuotes(context.Background(), "sabedoria")
	if err != nil {
		t.Fatalf("GenerateQuotes error: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("quotes: got %d, want 2", len(quotes))
	}
	if quotes[0].Author != "Sócrates" || quotes[0].ID == "" || quotes[0].ID == quotes[1].ID {
		t.Errorf("unexpected quotes: %+v", quotes)
	}
}

func TestClient_RandomQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(textResponse(`{"quote":"Tudo flui.","author":"Heráclito"}`))
	}))
	defer server.Close()

	q, err := newTestClient(server.URL).RandomQuote(context.Background())
	if err != nil {
		t.Fatalf("RandomQuote error: %v", err)
	}
	if q.Text != "Tudo flui." || q.Author != "Heráclito" {
		t.Errorf("quote: got %+v", q)
	}
}

func TestClient_SynthesizeImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "image-model") {
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{"parts": []map[string]any{
						{"text": "here you go"},
						{"inlineData": map[string]string{"mimeType": "image/png", "data": "aW1n"}},
					}},
				}},
			})
			return
		}
		json.NewEncoder(w).Encode(textResponse("stone columns at dusk"))
	}))
	defer server.Close()

	url := newTestClient(server.URL).SynthesizeImage(context.Background(), "Tudo flui.")
	if url != "data:image/png;base64,aW1n" {
		t.Errorf("image: got %q", url)
	}
}

func TestClient_SynthesizeImageFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"analysis fails", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"no inline image", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(textResponse("only text"))
		}},
		{"image stage fails", func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "image-model") {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode(textResponse("prompt"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			url := newTestClient(server.URL).SynthesizeImage(context.Background(), "x")
			if url == "" || !domain.IsFallbackImage(url) {
				t.Errorf("expected a fallback image, got %q", url)
			}
		})
	}
}

func TestClient_SynthesizeImageNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	got := newTestClient(url).SynthesizeImage(context.Background(), "x")
	if !domain.IsFallbackImage(got) {
		t.Errorf("expected a fallback image, got %q", got)
	}
}
