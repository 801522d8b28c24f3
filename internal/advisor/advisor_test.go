package advisor_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/chadsvasc/internal/advisor"
	"github.com/Skufu/chadsvasc/internal/risktable"
)

type stubChat struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
	models  []string
}

func (s *stubChat) Complete(_ context.Context, model string, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.models = append(s.models, model)
	return s.reply, s.err
}

type memCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newMemCache() *memCache { return &memCache{values: map[string]string{}} }

func (m *memCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", advisor.ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func TestRecommend_NotConfigured(t *testing.T) {
	a := advisor.New(nil)
	assert.False(t, a.Enabled())

	_, err := a.Recommend(context.Background(), 3, "Male")
	assert.ErrorIs(t, err, advisor.ErrNotConfigured)

	_, err = a.AskRisk(context.Background(), 3, risktable.Ischemic)
	assert.ErrorIs(t, err, advisor.ErrNotConfigured)
}

func TestRecommend_UsesSharedTemplate(t *testing.T) {
	chat := &stubChat{reply: "Anticoagulation is recommended."}
	a := advisor.New(chat, advisor.WithModel("gpt-3.5-turbo"))

	ans, err := a.Recommend(context.Background(), 4, "female")
	require.NoError(t, err)
	assert.Equal(t, "Anticoagulation is recommended.", ans.Text)
	assert.Equal(t, advisor.SourceLLM, ans.Source)
	assert.Equal(t, "gpt-3.5-turbo", ans.Model)

	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "CHA2DS2-VASc Score: 4")
	assert.Contains(t, chat.prompts[0], "Sex: Female")
	assert.Contains(t, chat.prompts[0], "Limit your response to one sentence.")
}

func TestRecommend_RejectsBadInput(t *testing.T) {
	chat := &stubChat{reply: "x"}
	a := advisor.New(chat)

	_, err := a.Recommend(context.Background(), 10, "Male")
	assert.Error(t, err)
	_, err = a.Recommend(context.Background(), 2, "other")
	assert.Error(t, err)
	assert.Zero(t, chat.calls)
}

func TestRecommend_CachesAnswers(t *testing.T) {
	chat := &stubChat{reply: "Anticoagulation is not recommended."}
	cache := newMemCache()
	a := advisor.New(chat, advisor.WithCache(cache, time.Hour))

	first, err := a.Recommend(context.Background(), 0, "Male")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := a.Recommend(context.Background(), 0, "male")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, chat.calls)
}

func TestForModel(t *testing.T) {
	chat := &stubChat{reply: "Anticoagulation is recommended."}
	cache := newMemCache()
	a := advisor.New(chat, advisor.WithCache(cache, time.Hour))

	same, err := a.ForModel("")
	require.NoError(t, err)
	assert.Same(t, a, same)
	assert.Equal(t, []string{"gpt-4", "gpt-3.5-turbo"}, a.Models())

	turbo, err := a.ForModel("gpt-3.5-turbo")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", turbo.Model())
	assert.Equal(t, advisor.DefaultModel, a.Model())

	ans, err := turbo.Recommend(context.Background(), 3, "Male")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", ans.Model)
	assert.False(t, ans.Cached)

	// Answers are cached per model.
	ans, err = a.Recommend(context.Background(), 3, "Male")
	require.NoError(t, err)
	assert.False(t, ans.Cached)
	assert.Equal(t, []string{"gpt-3.5-turbo", "gpt-4"}, chat.models)

	_, err = a.ForModel("gpt-5-preview")
	assert.ErrorIs(t, err, advisor.ErrUnsupportedModel)
}

func TestForModel_KeepsConfiguredModel(t *testing.T) {
	a := advisor.New(&stubChat{}, advisor.WithModel("gpt-4o"))
	got, err := a.ForModel("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model())
	assert.Equal(t, []string{"gpt-4o", "gpt-4", "gpt-3.5-turbo"}, a.Models())
}

func TestRecommend_CacheReadFailureStillAnswers(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	cache := newMemCache()
	cache.getErr = errors.New("connection refused")
	a := advisor.New(chat, advisor.WithCache(cache, 0))

	ans, err := a.Recommend(context.Background(), 2, "Male")
	require.NoError(t, err)
	assert.Equal(t, "ok", ans.Text)
}

func TestRecommend_PropagatesModelError(t *testing.T) {
	a := advisor.New(&stubChat{err: errors.New("boom")})
	_, err := a.Recommend(context.Background(), 2, "Male")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAskRisk(t *testing.T) {
	chat := &stubChat{reply: "2.9% per year."}
	a := advisor.New(chat)

	ans, err := a.AskRisk(context.Background(), 2, risktable.Embolic)
	require.NoError(t, err)
	assert.Equal(t, "2.9% per year.", ans.Text)
	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "risk of Embolic stroke for a score of 2")
	assert.Contains(t, chat.prompts[0], risktable.EmbolicColumn)

	_, err = a.AskRisk(context.Background(), 12, risktable.Ischemic)
	assert.ErrorIs(t, err, risktable.ErrScoreNotFound)
}

func TestGuidelineRecommendation(t *testing.T) {
	tests := []struct {
		score  int
		female bool
		want   string
	}{
		{0, false, "not recommended"},
		{1, true, "not recommended"},
		{1, false, "can be considered"},
		{2, true, "can be considered"},
		{2, false, "is recommended"},
		{3, true, "is recommended"},
		{9, true, "is recommended"},
	}
	for _, tt := range tests {
		got := advisor.GuidelineRecommendation(tt.score, tt.female)
		assert.Contains(t, got, tt.want, "score %d female %v", tt.score, tt.female)
	}
}

func TestLookupAnswer(t *testing.T) {
	got, err := advisor.LookupAnswer(risktable.Default(), 5, risktable.Embolic)
	require.NoError(t, err)
	assert.Equal(t, "10.0% per year (Risk of stroke/TIA/systemic embolism, score 5).", got)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body["model"])
		assert.EqualValues(t, 0, body["temperature"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Anticoagulation is recommended. "}}]}`))
	}))
	defer srv.Close()

	client := advisor.NewOpenAIClient(srv.URL, "sk-test", 2*time.Second, nil)
	got, err := client.Complete(context.Background(), "gpt-4", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Anticoagulation is recommended.", got)
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := advisor.NewOpenAIClient(srv.URL, "bad", 2*time.Second, nil)
	_, err := client.Complete(context.Background(), "gpt-4", "prompt")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Incorrect API key"), err.Error())
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := advisor.NewOpenAIClient(srv.URL, "k", 2*time.Second, nil)
	_, err := client.Complete(context.Background(), "gpt-4", "prompt")
	assert.Error(t, err)
}

func TestDialRedis_BadURL(t *testing.T) {
	_, err := advisor.DialRedis(context.Background(), "memcached://localhost:11211")
	assert.Error(t, err)
}
