package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"formfill-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model          string                 `json:"model"`
	Messages       []Message              `json:"messages"`
	Temperature    float64                `json:"temperature"`
	MaxTokens      int                    `json:"max_tokens"`
	ResponseFormat map[string]interface{} `json:"response_format"`
}

func chatServer(t *testing.T, status int, content string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  captured.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"total_tokens": 12},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestComplete_SendsJSONModeAndReturnsContent(t *testing.T) {
	srv, captured := chatServer(t, http.StatusOK, `{"fields":{}}`)
	c := NewClient(config.LLMConfig{
		APIKey:     "k",
		BaseURL:    srv.URL + "/",
		Model:      "gpt-4o-mini",
		Generation: config.LLMGenerationConfig{Temperature: 0.2, MaxTokens: 300},
	})

	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "fill"},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, `{"fields":{}}`, out)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Len(t, captured.Messages, 2)
	assert.Equal(t, "json_object", captured.ResponseFormat["type"])
	assert.InDelta(t, 0.2, captured.Temperature, 1e-6)
	assert.Equal(t, 300, captured.MaxTokens)
}

func TestComplete_ExplicitParamsOverrideConfig(t *testing.T) {
	srv, captured := chatServer(t, http.StatusOK, `{}`)
	c := NewClient(config.LLMConfig{
		BaseURL:    srv.URL,
		Model:      "m",
		Generation: config.LLMGenerationConfig{Temperature: 0.9, MaxTokens: 999},
	})
	temp := 0.0
	maxTokens := 50

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, &GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})

	require.NoError(t, err)
	assert.Equal(t, 50, captured.MaxTokens)
	assert.Zero(t, captured.Temperature)
}

func TestComplete_ProviderError(t *testing.T) {
	srv, _ := chatServer(t, http.StatusInternalServerError, "")
	c := NewClient(config.LLMConfig{BaseURL: srv.URL, Model: "m"})

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)

	assert.Error(t, err)
}
