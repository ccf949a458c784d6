package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/prompt"
)

var testNow = time.Date(2024, 10, 22, 14, 5, 9, 0, time.UTC)

func keys(m map[string]string) KeySource {
	return func(name string) string { return m[name] }
}

func testOptions(srv *httptest.Server, key string) Options {
	return Options{
		BaseURL:    srv.URL,
		Keys:       keys(map[string]string{"ANTHROPIC_API_KEY": key, "GROK_API_KEY": key, "OPENAI_API_KEY": key, "GEMINI_API_KEY": key}),
		HTTPClient: srv.Client(),
		Base:       "BASE",
	}
}

func wantKind(t *testing.T, err error, kind llmerr.Kind) {
	t.Helper()
	var e *llmerr.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not an *llmerr.Error", err)
	}
	if e.Kind != kind {
		t.Fatalf("kind = %s, want %s (%v)", e.Kind, kind, err)
	}
}

func TestClaudeComplete(t *testing.T) {
	var got AnthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"  "},{"type":"text","text":"It is 2:05 PM."}],"usage":{"input_tokens":12,"output_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewClaude(testOptions(srv, "secret"))
	text, err := c.Complete(context.Background(), prompt.Build("What time is it?", "Be brief.", testNow))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "It is 2:05 PM." {
		t.Errorf("text = %q", text)
	}
	if got.MaxTokens != MaxOutputTokens {
		t.Errorf("max_tokens = %d", got.MaxTokens)
	}
	if got.System != "BASE\n\nBe brief." {
		t.Errorf("system = %q", got.System)
	}
	if len(got.Messages) != 1 || !strings.HasPrefix(got.Messages[0].Content, "Current date and time: ") {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestClaudeMissingKeyIsAuthError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewClaude(testOptions(srv, "")).Complete(context.Background(), prompt.Build("hi", "", testNow))
	wantKind(t, err, llmerr.KindAuth)
	if called {
		t.Error("request sent without a credential")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   llmerr.Kind
	}{
		{http.StatusUnauthorized, llmerr.KindAuth},
		{http.StatusForbidden, llmerr.KindAuth},
		{http.StatusTooManyRequests, llmerr.KindRateLimited},
		{http.StatusInternalServerError, llmerr.KindProvider},
		{http.StatusBadRequest, llmerr.KindProvider},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"upstream detail"}`, tt.status)
		}))
		_, err := NewGrok(testOptions(srv, "k")).Complete(context.Background(), prompt.Build("hi", "", testNow))
		srv.Close()
		wantKind(t, err, tt.kind)
	}
}

func TestMalformedBodyIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClaude(testOptions(srv, "k")).Complete(context.Background(), prompt.Build("hi", "", testNow))
	wantKind(t, err, llmerr.KindProvider)
}

func TestUnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	opts := testOptions(srv, "k")
	srv.Close()

	_, err := NewGrok(opts).Complete(context.Background(), prompt.Build("hi", "", testNow))
	wantKind(t, err, llmerr.KindTransport)
}

func TestEmptyTextIsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"   "},"done":true}`))
	}))
	defer srv.Close()

	_, err := NewOllama(testOptions(srv, "")).Complete(context.Background(), prompt.Build("hi", "", testNow))
	wantKind(t, err, llmerr.KindEmptyResponse)
}

func TestGrokRequestShape(t *testing.T) {
	g := NewGrok(Options{Base: "BASE"})
	req := g.Request(prompt.Build("hi", "", testNow))
	if req.Model != "grok-2-latest" || req.MaxTokens != MaxOutputTokens {
		t.Errorf("req = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0]["role"] != "system" || req.Messages[0]["content"] != "BASE" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestOllamaComplete(t *testing.T) {
	var got OllamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"llama3:latest","message":{"role":"assistant","content":"hello"},"done":true,"prompt_eval_count":3,"eval_count":1}`))
	}))
	defer srv.Close()

	text, err := NewOllama(testOptions(srv, "")).Complete(context.Background(), prompt.Build("hi", "", testNow))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
	if got.Stream || got.Options.NumPredict != MaxOutputTokens {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAIComplete(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hey"},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":1,"total_tokens":5}}`))
	}))
	defer srv.Close()

	text, err := NewOpenAI(testOptions(srv, "k")).Complete(context.Background(), prompt.Build("hi", "", testNow))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hey" {
		t.Errorf("text = %q", text)
	}
	if body["max_tokens"] != float64(MaxOutputTokens) {
		t.Errorf("max_tokens = %v", body["max_tokens"])
	}
}

func TestOpenAIRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(testOptions(srv, "k")).Complete(context.Background(), prompt.Build("hi", "", testNow))
	wantKind(t, err, llmerr.KindRateLimited)
}

func TestGeminiFlatPrompt(t *testing.T) {
	g := NewGemini(Options{Base: "BASE"})
	p := prompt.Build("hi", "Talk like a pirate.", testNow)
	got := g.Prompt(p)
	want := "BASE\n\nAdditional instructions:\nTalk like a pirate.\n\n" + p.User
	if got != want {
		t.Errorf("Prompt = %q, want %q", got, want)
	}
}

func TestGeminiMissingKeyIsAuthError(t *testing.T) {
	g := NewGemini(Options{Keys: keys(nil)})
	_, err := g.Complete(context.Background(), prompt.Build("hi", "", testNow))
	wantKind(t, err, llmerr.KindAuth)
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry("claude", NewClaude(Options{}), NewGemini(Options{}), NewOllama(Options{}))

	a, err := r.Resolve("")
	if err != nil || a.Name() != "claude" {
		t.Fatalf("Resolve(\"\") = %v, %v", a, err)
	}
	a, err = r.Resolve(" Gemini ")
	if err != nil || a.Name() != "gemini" {
		t.Fatalf("Resolve(Gemini) = %v, %v", a, err)
	}
	if _, err := r.Resolve("unknown-model"); !llmerr.IsValidation(err) {
		t.Fatalf("Resolve(unknown-model) err = %v, want validation", err)
	}
	if got := strings.Join(r.Names(), ","); got != "claude,gemini,ollama" {
		t.Errorf("Names = %s", got)
	}
	if r.Default() != "claude" {
		t.Errorf("Default = %s", r.Default())
	}
	if a, ok := r.Get("GEMINI"); !ok || a.Name() != "gemini" {
		t.Errorf("Get(GEMINI) = %v, %v", a, ok)
	}
	if _, ok := r.Get(""); ok {
		t.Error("Get(\"\") found an adapter")
	}
}

func TestGeminiComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/v1beta/models/gemini-1.5-flash:generateContent") {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"It is 2:05 PM."}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`))
	}))
	defer srv.Close()

	g := NewGemini(testOptions(srv, "k"))
	text, err := g.Complete(context.Background(), prompt.Build("What time is it?", "", testNow))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "It is 2:05 PM." {
		t.Errorf("text = %q", text)
	}
	gc, _ := got["generationConfig"].(map[string]any)
	if gc["maxOutputTokens"] != float64(MaxOutputTokens) {
		t.Errorf("generationConfig = %v", got["generationConfig"])
	}
	if !strings.Contains(mustJSON(t, got["contents"]), "Current date and time: ") {
		t.Errorf("contents = %v", got["contents"])
	}
}

func TestGeminiStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   llmerr.Kind
	}{
		{http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`, llmerr.KindRateLimited},
		{http.StatusUnauthorized, `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`, llmerr.KindAuth},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		}))
		_, err := NewGemini(testOptions(srv, "k")).Complete(context.Background(), prompt.Build("hi", "", testNow))
		srv.Close()
		wantKind(t, err, tc.want)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
