package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grantmatch/internal/config"
)

func TestNew_ProviderSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AIConfig
		wantErr error
		wantT   any
	}{
		{name: "default is ollama", cfg: config.AIConfig{}, wantT: &OllamaClient{}},
		{name: "openai without key", cfg: config.AIConfig{Provider: "openai"}, wantErr: ErrMissingAPIKey},
		{name: "gemini without key", cfg: config.AIConfig{Provider: "gemini"}, wantErr: ErrMissingAPIKey},
		{name: "gemini with key", cfg: config.AIConfig{Provider: "gemini", APIKey: "k"}, wantT: &OpenAIClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantT, p)
		})
	}

	_, err := New(config.AIConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestOllamaClient_GenerateCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"tags":[]}`, Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "", "test-model")
	out, err := c.GenerateCompletion(context.Background(), "hello", true)
	require.NoError(t, err)
	assert.Equal(t, `{"tags":[]}`, out)
}

func TestOllamaClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "", "")
	_, err := c.GenerateEmbedding(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCleanResponse(t *testing.T) {
	tests := map[string]string{
		"  web3, dao  ":                    "web3, dao",
		"```\nweb3, dao\n```":              "web3, dao",
		"```json\n{\"tags\":[\"a\"]}\n```": `{"tags":["a"]}`,
		"```web3, dao```":                  "web3, dao",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanResponse(in), "input %q", in)
	}
}

type stubGenerator struct {
	resp string
	err  error
}

func (s stubGenerator) GenerateCompletion(context.Context, string, bool) (string, error) {
	return s.resp, s.err
}

func TestSuggestTags(t *testing.T) {
	allowed := []string{"Web3", "Women", "Climate"}

	tags, err := SuggestTags(context.Background(), stubGenerator{resp: "Sure! {\"tags\": [\"web3\", \"Invented\", \"WEB3\", \"women\"]}"}, "t", "d", allowed)
	require.NoError(t, err)
	assert.Equal(t, []string{"Web3", "Women"}, tags)

	_, err = SuggestTags(context.Background(), stubGenerator{resp: "no json here"}, "t", "d", allowed)
	require.Error(t, err)

	boom := errors.New("boom")
	_, err = SuggestTags(context.Background(), stubGenerator{err: boom}, "t", "d", allowed)
	require.ErrorIs(t, err, boom)
}

type deadlineRecorder struct {
	hadDeadline bool
}

func (d *deadlineRecorder) GenerateCompletion(ctx context.Context, _ string, _ bool) (string, error) {
	_, d.hadDeadline = ctx.Deadline()
	return "ok", nil
}

func (d *deadlineRecorder) GenerateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	_, d.hadDeadline = ctx.Deadline()
	return []float32{1}, nil
}

func TestWithTimeout(t *testing.T) {
	rec := &deadlineRecorder{}
	p := WithTimeout(rec, time.Second)

	_, err := p.GenerateCompletion(context.Background(), "x", false)
	require.NoError(t, err)
	assert.True(t, rec.hadDeadline)

	rec.hadDeadline = false
	_, err = p.GenerateEmbedding(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, rec.hadDeadline)

	assert.Same(t, rec, WithTimeout(rec, 0))
	assert.Nil(t, WithTimeout(nil, time.Second))
}

func TestStatusCode(t *testing.T) {
	wrapped := fmt.Errorf("reason call: %w", &openai.Error{StatusCode: http.StatusTooManyRequests})
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(wrapped))
	assert.Zero(t, StatusCode(errors.New("connection refused")))
	assert.Zero(t, StatusCode(nil))
}
