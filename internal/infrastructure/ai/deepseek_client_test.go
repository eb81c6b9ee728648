package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *DeepseekClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewDeepseekClient(model.SummarizationConfig{APIUrl: srv.URL, APIKey: "secret", Model: "test-model"})
	require.NoError(t, err)
	return client
}

func TestCompleteSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.Equal(t, 256, req.MaxTokens)
		require.Equal(t, "digest text", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  summary \n"}}],"usage":{"total_tokens":12}}`))
	})

	text, err := client.Complete(context.Background(), "digest text", 256)
	require.NoError(t, err)
	require.Equal(t, "summary", text)
	require.EqualValues(t, 1, client.Calls())
}

func TestCompleteErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"限流", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true},
		{"服务端错误", http.StatusBadGateway, "bad gateway", true},
		{"认证失败", http.StatusUnauthorized, `{"error":{"message":"invalid key"}}`, false},
		{"空结果", http.StatusOK, `{"choices":[]}`, false},
		{"响应格式错误", http.StatusOK, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Complete(context.Background(), "x", 10)
			require.Error(t, err)
			require.Equal(t, tt.transient, model.IsTransient(err))
		})
	}
}

func TestCompleteRateLimitedSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.Complete(context.Background(), "x", 10)
	require.ErrorIs(t, err, model.ErrRateLimited)
}

func TestNewDeepseekClientRejectsBadEndpoint(t *testing.T) {
	_, err := NewDeepseekClient(model.SummarizationConfig{APIUrl: "ftp://example.com"})
	require.Error(t, err)

	client, err := NewDeepseekClient(model.SummarizationConfig{})
	require.NoError(t, err)
	require.Equal(t, defaultEndpoint, client.endpoint)
	require.Equal(t, "deepseek-chat", client.config.Model)
}
