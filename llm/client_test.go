package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/flowgate/logger"
)

func TestClient_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		var body struct {
			Model          string    `json:"model"`
			Messages       []Message `json:"messages"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "gpt-test" || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("request = %+v", body)
		}
		if body.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %q", body.ResponseFormat.Type)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"{\"price\":3}"}}],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Dialect: "openai", BaseURL: srv.URL + "/v1", Model: "gpt-test"}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Complete(context.Background(), "sk-test", CompletionRequest{
		SystemPrompt: "extract",
		Messages:     []Message{{Role: "user", Content: "<p>3</p>"}},
		JSON:         true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != `{"price":3}` || resp.Usage.TotalTokens != 14 {
		t.Errorf("response = %+v", resp)
	}
}

func TestClient_Ollama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("unexpected authorization header")
		}
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"ok"},"prompt_eval_count":3,"eval_count":1}`))
	}))
	defer srv.Close()

	c, err := New(Config{Dialect: "ollama", BaseURL: srv.URL}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Complete(context.Background(), "", CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" || resp.Usage.TotalTokens != 4 {
		t.Errorf("response = %+v", resp)
	}
}

func TestClient_ProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Complete(context.Background(), "bad", CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfig_UnknownDialect(t *testing.T) {
	if _, err := New(Config{Dialect: "telepathy"}, logger.NewNop()); err == nil {
		t.Fatal("expected unknown dialect error")
	}
	if got := Dialects(); len(got) < 2 || got[0] != "ollama" || got[1] != "openai" {
		t.Errorf("dialects = %v", got)
	}
}

func TestOpenAI_ParseResponseWithoutChoices(t *testing.T) {
	if _, err := (OpenAI{}).ParseResponse([]byte(`{"choices":[]}`)); err == nil {
		t.Fatal("expected error")
	}
}
